package notify

import (
	"context"
	"promptbank/internal/model"
	"time"
)

// EventType names a bulk operation lifecycle event
type EventType string

const (
	EventStarted   EventType = "bulk_operation.started"
	EventCompleted EventType = "bulk_operation.completed"
	EventFailed    EventType = "bulk_operation.failed"
)

// Summary carries the counters of an operation at event time
type Summary struct {
	TotalItems      int `json:"total_items"`
	ProcessedItems  int `json:"processed_items"`
	SuccessfulItems int `json:"successful_items"`
	FailedItems     int `json:"failed_items"`
	ErrorCount      int `json:"error_count"`
}

// EventData is the payload handed to the notification subsystem
type EventData struct {
	OperationID   string                `json:"operation_id"`
	OperationType model.OperationType   `json:"operation_type"`
	Status        model.OperationStatus `json:"status"`
	CreatedBy     string                `json:"created_by"`
	Summary       Summary               `json:"summary"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// NewEventData snapshots op for an event
func NewEventData(op *model.BulkOperation) EventData {
	return EventData{
		OperationID:   op.ID,
		OperationType: op.OperationType,
		Status:        op.Status,
		CreatedBy:     op.CreatedBy,
		Summary: Summary{
			TotalItems:      op.TotalItems,
			ProcessedItems:  op.ProcessedItems,
			SuccessfulItems: op.SuccessfulItems,
			FailedItems:     op.FailedItems,
			ErrorCount:      len(op.Errors),
		},
		OccurredAt: time.Now().UTC(),
	}
}

// NotificationResult reports how many deliveries the subsystem accepted
type NotificationResult struct {
	NotificationsSent int `json:"notifications_sent"`
}

// Emitter hands lifecycle events to the notification subsystem. Callers treat
// delivery as fire-and-forget: errors are logged, never propagated.
type Emitter interface {
	NotifyEvent(ctx context.Context, eventType EventType, data EventData) (NotificationResult, error)
}
