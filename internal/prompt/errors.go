package prompt

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaValidation matches any *SchemaValidationError.
	ErrSchemaValidation = errors.New("model response did not match output schema")
	// ErrModelUnavailable matches any *ModelUnavailableError.
	ErrModelUnavailable = errors.New("language model unavailable")
)

// SchemaValidationError means the model answered but the answer is unusable.
type SchemaValidationError struct {
	Prompt string
	Path   string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("prompt %s: invalid model response: %s", e.Prompt, e.Reason)
	}
	return fmt.Sprintf("prompt %s: invalid model response at %s: %s", e.Prompt, e.Path, e.Reason)
}

func (e *SchemaValidationError) Is(target error) bool { return target == ErrSchemaValidation }

// ModelUnavailableError wraps transport, timeout and configuration failures.
type ModelUnavailableError struct {
	Prompt string
	Err    error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("prompt %s: model unavailable: %v", e.Prompt, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }
