package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	legal := map[OperationStatus][]OperationStatus{
		StatusPending:    {StatusProcessing, StatusCancelled},
		StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
		StatusFailed:     {StatusPending},
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			allowed := false
			for _, s := range legal[from] {
				if s == to {
					allowed = true
				}
			}

			err := ValidateTransition(from, to)
			if allowed {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestTerminalStatusesHaveNoForwardEdges(t *testing.T) {
	for _, to := range AllStatuses {
		assert.Error(t, ValidateTransition(StatusCompleted, to))
		assert.Error(t, ValidateTransition(StatusCancelled, to))
	}
}

func TestSourcesFor(t *testing.T) {
	assert.Equal(t, []OperationStatus{StatusPending, StatusProcessing}, SourcesFor(StatusCancelled))
	assert.Equal(t, []OperationStatus{StatusFailed}, SourcesFor(StatusPending))
	assert.Empty(t, SourcesFor("unknown"))
}

func TestOperationType(t *testing.T) {
	for _, typ := range OperationTypes {
		assert.True(t, typ.IsValid())
	}
	assert.False(t, OperationType("archive_prompts").IsValid())
	assert.Equal(t, "tag", OperationTagPrompts.Action())
	assert.Equal(t, "create", OperationCreatePrompts.Action())
}

func TestItemCount(t *testing.T) {
	meta := OperationMetadata{
		Prompts:   []PromptInput{{Name: "a"}, {Name: "b"}},
		PromptIDs: []string{"x"},
	}
	assert.Equal(t, 2, meta.ItemCount(OperationCreatePrompts))
	assert.Equal(t, 1, meta.ItemCount(OperationDeletePrompts))
	assert.Equal(t, 0, meta.ItemCount(OperationTagPrompts))

	meta.Tags = &TagSpec{PromptIDs: []string{"x", "y", "z"}}
	assert.Equal(t, 3, meta.ItemCount(OperationTagPrompts))
}

func TestStatusView(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty operation", func(t *testing.T) {
		view := NewStatusView(&BulkOperation{Status: StatusPending}, start)
		assert.Equal(t, 0.0, view.ProgressPercentage)
		assert.Nil(t, view.TimeEstimate)
		assert.False(t, view.IsComplete)
	})

	t.Run("processing", func(t *testing.T) {
		op := &BulkOperation{
			Status:         StatusProcessing,
			TotalItems:     10,
			ProcessedItems: 4,
			StartedAt:      &start,
			Errors:         []string{"update failed at index 1: boom"},
		}
		view := NewStatusView(op, start.Add(8*time.Second))

		assert.Equal(t, 40.0, view.ProgressPercentage)
		assert.True(t, view.HasErrors)
		require.NotNil(t, view.TimeEstimate)
		assert.Equal(t, 12*time.Second, time.Duration(*view.TimeEstimate))
		require.NotNil(t, view.TimeEstimateSeconds())
		assert.Equal(t, 12.0, *view.TimeEstimateSeconds())
	})

	t.Run("falls back to created at", func(t *testing.T) {
		op := &BulkOperation{Status: StatusProcessing, TotalItems: 2, ProcessedItems: 1, CreatedAt: start}
		est := EstimateRemaining(op, start.Add(3*time.Second))
		require.NotNil(t, est)
		assert.Equal(t, 3*time.Second, time.Duration(*est))
	})

	t.Run("no estimate once terminal", func(t *testing.T) {
		op := &BulkOperation{Status: StatusCompleted, TotalItems: 2, ProcessedItems: 2, StartedAt: &start}
		view := NewStatusView(op, start.Add(time.Minute))
		assert.Nil(t, view.TimeEstimate)
		assert.Nil(t, view.TimeEstimateSeconds())
		assert.True(t, view.IsComplete)
	})
}

func TestCloneIsIndependent(t *testing.T) {
	started := time.Now()
	op := &BulkOperation{
		Errors:    []string{"a"},
		StartedAt: &started,
		Results:   NewPerItemResult([]ItemOutcome{{Index: 0, Status: OutcomeSuccess}}),
	}

	cp := op.Clone()
	cp.Errors[0] = "changed"
	cp.Results.Items[0].Status = OutcomeFailed
	*cp.StartedAt = started.Add(time.Hour)

	assert.Equal(t, "a", op.Errors[0])
	assert.Equal(t, OutcomeSuccess, op.Results.Items[0].Status)
	assert.Equal(t, started, *op.StartedAt)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("bad %s", "input")
	assert.True(t, IsValidationError(err))
	assert.EqualError(t, err, "bad input")
	assert.False(t, IsValidationError(ErrInvalidTransition))
}
