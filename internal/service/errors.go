package service

import "errors"

// Domain Errors
var (
	ErrTestNotFound       = errors.New("test not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrForbidden          = errors.New("caller lacks the required role")
	ErrInvalidTest        = errors.New("invalid test definition")
	ErrInvalidAnswers     = errors.New("invalid answer payload")
	ErrPersistence        = errors.New("submission could not be persisted")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role")
)

// FieldError is a validation failure tied to one request field.
type FieldError struct {
	Err    error
	Fields map[string]string
}

func (e *FieldError) Error() string {
	for f, msg := range e.Fields {
		return e.Err.Error() + ": " + f + " " + msg
	}
	return e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldError(err error, field, msg string) *FieldError {
	return &FieldError{Err: err, Fields: map[string]string{field: msg}}
}
