package domain

import (
	"errors"
	"fmt"
)

// ErrValidation marks input that was rejected before any external call was made.
var ErrValidation = errors.New("validation failed")

// FieldError reports a single invalid field. It matches ErrValidation with errors.Is.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}

func fieldError(field, message string) error {
	return &FieldError{Field: field, Message: message}
}
