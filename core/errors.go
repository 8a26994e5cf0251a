package core

import "github.com/pkg/errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("user not authenticated")
	ErrForbidden          = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// ConstraintViolation is returned by repositories when a write would break an entity invariant.
type ConstraintViolation struct {
	Field  string
	Reason string
}

func NewConstraintViolation(field, reason string) error {
	return &ConstraintViolation{Field: field, Reason: reason}
}

func (cv ConstraintViolation) Error() string {
	return "constraint violation: " + cv.Field + ": " + cv.Reason
}

// IsConstraintViolation reports whether the cause of err is a *ConstraintViolation.
func IsConstraintViolation(err error) bool {
	_, ok := errors.Cause(err).(*ConstraintViolation)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
