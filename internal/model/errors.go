package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is wrapped by every rejected status change
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError marks a malformed request. Callers map it to a client error.
type ValidationError struct {
	error
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{fmt.Errorf(format, args...)}
}

func (e *ValidationError) Unwrap() error {
	return e.error
}

// IsValidationError reports whether err carries a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateTransition returns nil when from -> to is a legal edge of the
// bulk operation state machine
func ValidateTransition(from, to OperationStatus) error {
	switch from {
	case StatusPending:
		if to == StatusProcessing || to == StatusCancelled {
			return nil
		}
	case StatusProcessing:
		if to == StatusCompleted || to == StatusFailed || to == StatusCancelled {
			return nil
		}
	case StatusFailed:
		if to == StatusPending {
			return nil
		}
	}
	return fmt.Errorf("%w %s -> %s", ErrInvalidTransition, from, to)
}

// SourcesFor returns every status from which to can be reached
func SourcesFor(to OperationStatus) []OperationStatus {
	var out []OperationStatus
	for _, from := range AllStatuses {
		if ValidateTransition(from, to) == nil {
			out = append(out, from)
		}
	}
	return out
}
