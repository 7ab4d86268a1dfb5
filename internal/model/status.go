package model

import "time"

// EstimatedDuration is a linear extrapolation of the remaining run time.
// It is a heuristic, never a guarantee.
type EstimatedDuration time.Duration

// Seconds returns the estimate in whole seconds
func (d EstimatedDuration) Seconds() float64 {
	return time.Duration(d).Seconds()
}

// OperationStatusView is the polling view of a bulk operation
type OperationStatusView struct {
	Operation          *BulkOperation     `json:"operation"`
	ProgressPercentage float64            `json:"progress_percentage"`
	TimeEstimate       *EstimatedDuration `json:"-"`
	IsComplete         bool               `json:"is_complete"`
	HasErrors          bool               `json:"has_errors"`
}

// TimeEstimateSeconds is the JSON shape of the estimate
func (v OperationStatusView) TimeEstimateSeconds() *float64 {
	if v.TimeEstimate == nil {
		return nil
	}
	s := v.TimeEstimate.Seconds()
	return &s
}

// ProgressPercentage is processed/total*100, 0 for empty operations
func ProgressPercentage(op *BulkOperation) float64 {
	if op.TotalItems == 0 {
		return 0
	}
	return float64(op.ProcessedItems) / float64(op.TotalItems) * 100
}

// EstimateRemaining extrapolates (elapsed/processed)*(total-processed).
// Only defined while processing with at least one processed item.
func EstimateRemaining(op *BulkOperation, now time.Time) *EstimatedDuration {
	if op.Status != StatusProcessing || op.ProcessedItems <= 0 {
		return nil
	}
	start := op.CreatedAt
	if op.StartedAt != nil {
		start = *op.StartedAt
	}
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := op.TotalItems - op.ProcessedItems
	if remaining < 0 {
		remaining = 0
	}
	est := EstimatedDuration(elapsed / time.Duration(op.ProcessedItems) * time.Duration(remaining))
	return &est
}

// NewStatusView builds the status response for op at time now
func NewStatusView(op *BulkOperation, now time.Time) *OperationStatusView {
	return &OperationStatusView{
		Operation:          op,
		ProgressPercentage: ProgressPercentage(op),
		TimeEstimate:       EstimateRemaining(op, now),
		IsComplete:         op.Status.IsTerminal(),
		HasErrors:          op.HasErrors(),
	}
}
