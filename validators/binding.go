package validators

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"helpinghands/api/internal/apperr"
	"helpinghands/api/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Roles a user may pick at sign up. Admins are created out of band.
var SignupRoles = []model.Role{model.RoleSponsor, model.RoleChild, model.RoleNGO}

var registerOnce sync.Once

// Register installs the custom tags on gin's validator engine and makes
// field errors report json names. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}

			return name
		})

		_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return PasswordValidator(fl.Field().String()) == nil
		})

		_ = v.RegisterValidation("signuprole", func(fl validator.FieldLevel) bool {
			r := model.Role(fl.Field().String())
			for _, allowed := range SignupRoles {
				if r == allowed {
					return true
				}
			}

			return false
		})

		_ = v.RegisterValidation("accepted", func(fl validator.FieldLevel) bool {
			return fl.Field().Kind() == reflect.Bool && fl.Field().Bool()
		})

		_ = v.RegisterValidation("realemail", func(fl validator.FieldLevel) bool {
			return EmailValidator(fl.Field().String()) == nil
		})
	})
}

// Details turns a binding error into per-field messages. Anything that is
// not a validation error means the body itself could not be decoded.
func Details(err error) []apperr.FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []apperr.FieldError{{Field: "body", Message: "Invalid request body"}}
	}

	out := make([]apperr.FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, apperr.FieldError{Field: fe.Field(), Message: message(fe)})
	}

	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email", "realemail":
		return "Please provide a valid email address"
	case "strongpassword":
		s, _ := fe.Value().(string)
		if err := PasswordValidator(s); err != nil {
			return capitalize(err.Error())
		}

		return "Password is too weak"
	case "eqfield":
		return "Password confirmation does not match password"
	case "signuprole":
		names := make([]string, len(SignupRoles))
		for i, r := range SignupRoles {
			names[i] = string(r)
		}

		return "Role must be one of: " + strings.Join(names, ", ")
	case "accepted":
		return "You must accept the terms and conditions"
	case "min", "max", "len":
		return fmt.Sprintf("Invalid %s format", fe.Field())
	default:
		return fmt.Sprintf("Invalid value for %s", fe.Field())
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
