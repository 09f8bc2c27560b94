package validators

import (
	"errors"
	"strings"
	"unicode"
)

// PasswordSpecials are the symbols that satisfy the special character rule
const PasswordSpecials = "@$!%*?&"

var (
	ErrPasswordEmpty     = errors.New("password is required")
	ErrPasswordTooShort  = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong   = errors.New("password must be at most 72 bytes long")
	ErrPasswordNoLower   = errors.New("password must contain at least one lowercase letter")
	ErrPasswordNoUpper   = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoDigit   = errors.New("password must contain at least one number")
	ErrPasswordNoSpecial = errors.New("password must contain at least one special character (" + PasswordSpecials + ")")
)

// PasswordValidator returns the first strength rule p breaks. The upper
// bound is bcrypt's input limit.
func PasswordValidator(p string) error {
	if p == "" {
		return ErrPasswordEmpty
	}

	if len([]rune(p)) < 8 {
		return ErrPasswordTooShort
	}

	if len(p) > 72 {
		return ErrPasswordTooLong
	}

	var lower, upper, digit, special bool
	for _, r := range p {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSpecials, r):
			special = true
		}
	}

	switch {
	case !lower:
		return ErrPasswordNoLower
	case !upper:
		return ErrPasswordNoUpper
	case !digit:
		return ErrPasswordNoDigit
	case !special:
		return ErrPasswordNoSpecial
	}

	return nil
}
