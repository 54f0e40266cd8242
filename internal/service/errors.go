package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrGenerationFailed is returned when the model could not produce an answer.
	// The turn is not committed and the same input may be retried.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrPolicyViolation marks an answer rejected before delivery, e.g. a
	// recommendation without the disclaimer.
	ErrPolicyViolation = errors.New("policy violation")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation failure with errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
