// Package apperr defines the typed errors shared by the stores, the token
// issuer and the account lifecycle. Every error carries a stable code and
// the HTTP status it maps to, so the boundary never inspects messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicate
	KindAuthentication
	KindAuthorization
	KindLocked
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindLocked:
		return "locked"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a domain failure that is safe to report to the caller.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	// Extra fields merged into the response body, e.g. lockedUntil
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by code, which lets callers compare against
// the exported sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Code == e.Code
}

func newErr(kind Kind, status int, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Status: status}
}

// Sentinels. Use errors.Is against these; constructors below return fresh
// copies when the error needs extra details.
var (
	ErrDuplicateEmail = newErr(KindDuplicate, http.StatusConflict, "EMAIL_EXISTS", "User with this email already exists")

	ErrNoToken      = newErr(KindAuthentication, http.StatusUnauthorized, "NO_TOKEN", "Authentication required")
	ErrInvalidToken = newErr(KindAuthentication, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
	ErrTokenExpired = newErr(KindAuthentication, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired")
	ErrUserNotFound = newErr(KindAuthentication, http.StatusUnauthorized, "USER_NOT_FOUND", "Invalid token - user not found")
	ErrNoUser       = newErr(KindAuthentication, http.StatusUnauthorized, "NO_USER", "Authentication required")

	ErrInvalidCredentials       = newErr(KindAuthentication, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	ErrNoRefreshToken           = newErr(KindAuthentication, http.StatusUnauthorized, "NO_REFRESH_TOKEN", "Refresh token required")
	ErrInvalidRefreshToken      = newErr(KindAuthentication, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid or expired refresh token")
	ErrInvalidOrExpiredRefresh  = newErr(KindAuthentication, http.StatusUnauthorized, "INVALID_OR_EXPIRED_REFRESH_TOKEN", "Invalid or expired refresh token")
	ErrUserInactive             = newErr(KindAuthentication, http.StatusUnauthorized, "USER_INACTIVE", "User not found or inactive")
	ErrAccountInactive          = newErr(KindAuthorization, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is not active. Please contact support.")
	ErrEmailNotVerified         = newErr(KindAuthorization, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email address before logging in")
	ErrInsufficientPermissions  = newErr(KindAuthorization, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "Insufficient permissions")
	ErrAccountLocked            = newErr(KindLocked, http.StatusLocked, "ACCOUNT_LOCKED", "Account temporarily locked due to too many failed login attempts. Please try again later.")
	ErrInvalidResetToken        = newErr(KindNotFound, http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired password reset token")
	ErrInvalidVerificationToken = newErr(KindNotFound, http.StatusBadRequest, "INVALID_VERIFICATION_TOKEN", "Invalid or expired verification token")
	ErrAlreadyVerified          = newErr(KindValidation, http.StatusBadRequest, "ALREADY_VERIFIED", "Email is already verified")
	ErrInvalidCurrentPassword   = newErr(KindValidation, http.StatusBadRequest, "INVALID_CURRENT_PASSWORD", "Current password is incorrect")
	ErrNotFound                 = newErr(KindNotFound, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrTooManyRequests          = newErr(KindValidation, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many attempts, please try again later.")
	ErrInternal                 = newErr(KindInternal, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
)

// AccountLocked reports the lock expiry alongside ErrAccountLocked.
func AccountLocked(until time.Time) *Error {
	e := *ErrAccountLocked
	e.Details = map[string]any{"lockedUntil": until.UTC()}
	return &e
}

// InsufficientPermissions reports the required and actual roles.
func InsufficientPermissions(required []string, current string) *Error {
	e := *ErrInsufficientPermissions
	e.Details = map[string]any{"required": required, "current": current}
	return &e
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validation creates a 400 VALIDATION_ERROR carrying per-field details.
func Validation(fields ...FieldError) *Error {
	e := newErr(KindValidation, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed")
	e.Details = map[string]any{"details": fields}
	return e
}

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error) *Error {
	e := *ErrInternal
	e.Err = err
	return &e
}

// Wrap attaches a cause to a sentinel without changing its code.
func Wrap(sentinel *Error, err error) *Error {
	e := *sentinel
	e.Err = err
	return &e
}

// From converts any error into an *Error. Unknown errors become internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Internal(err)
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	return From(err).Kind
}
