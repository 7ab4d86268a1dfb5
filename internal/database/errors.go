package database

import "errors"

var (
	ErrOperationNotFound = errors.New("bulk operation not found")
	ErrPromptNotFound    = errors.New("prompt not found")

	// ErrStatusConflict means the record exists but its status did not match
	// the guard of a conditional write
	ErrStatusConflict = errors.New("bulk operation status changed concurrently")
)
