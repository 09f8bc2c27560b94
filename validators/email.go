// Package validators holds request validation shared by the HTTP handlers:
// password strength, email shape and the custom binding tags.
package validators

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailEmpty   = errors.New("no email address provided")
	ErrEmailInvalid = errors.New("please provide a valid email address")
)

// EmailValidator accepts a bare address with a dotted domain. Display names
// ("Bob <bob@x.com>") are rejected.
func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	a, err := mail.ParseAddress(e)
	if err != nil || a.Address != e || a.Name != "" {
		return ErrEmailInvalid
	}

	at := strings.LastIndexByte(e, '@')
	domain := e[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return ErrEmailInvalid
	}

	return nil
}
