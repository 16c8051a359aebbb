package models

import "errors"

// ErrValidation represents a validation error in the domain layer.
// It abstracts away database implementation details from callers.
var ErrValidation = errors.New("validation error")

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
