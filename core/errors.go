package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports invalid input, either as a whole (Err) or field by field.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) > 0 {
		return err.Fields[0].Field + ": " + err.Fields[0].Error
	}
	return ""
}

// FieldMap indexes the field errors by field name; nil when the error is not about fields.
func (err ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	m := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		m[f.Field] = f.Error
	}
	return m
}

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindPermissionDenied
	kindShutdown
)

// kindError is a plain message tagged with what went wrong, so that callers can tell errors apart
// once they have been wrapped.
type kindError struct {
	kind    errorKind
	message string
}

func (e *kindError) Error() string {
	return e.message
}

func isKind(err error, kind errorKind) bool {
	e, ok := errors.Cause(err).(*kindError)
	return ok && e.kind == kind
}

// NewNotFoundError returns an error reporting that the given resource does not exist.
func NewNotFoundError(resource string) error {
	return &kindError{kind: kindNotFound, message: resource + " not found"}
}

func IsNotFound(err error) bool {
	return isKind(err, kindNotFound)
}

func NewPermissionError(msg string) error {
	if msg == "" {
		msg = "permission denied"
	}
	return &kindError{kind: kindPermissionDenied, message: msg}
}

func IsPermissionDenied(err error) bool {
	return isKind(err, kindPermissionDenied)
}

// NewShutdownError returns an error asking the API to stop.
func NewShutdownError(msg string) error {
	return &kindError{kind: kindShutdown, message: msg}
}

func IsShutdown(err error) bool {
	return isKind(err, kindShutdown)
}
