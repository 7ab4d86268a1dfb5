package processor

import (
	"fmt"
	"promptbank/internal/model"
)

// StatusError is the outcome of applying one item. Success and not found
// outcomes count as successful items.
type StatusError interface {
	Error() string
	Status() model.OutcomeStatus
	Message() string
	ItemID() string
}

type statusError struct {
	status  model.OutcomeStatus
	message string
	id      string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.status, e.message)
}

func (e *statusError) Status() model.OutcomeStatus {
	return e.status
}

func (e *statusError) Message() string {
	return e.message
}

func (e *statusError) ItemID() string {
	return e.id
}

// Succeeded reports whether the outcome counts towards successful items
func Succeeded(e StatusError) bool {
	return e.Status() == model.OutcomeSuccess || e.Status() == model.OutcomeNotFound
}

func NewSuccess(id string) StatusError {
	return &statusError{status: model.OutcomeSuccess, message: "ok", id: id}
}

func NewFailure(id string, err error) StatusError {
	return &statusError{status: model.OutcomeFailed, message: err.Error(), id: id}
}

func NewNotFound(id string) StatusError {
	return &statusError{status: model.OutcomeNotFound, message: "prompt not found", id: id}
}
