package processor

import (
	"context"
	"errors"
	"fmt"
	"promptbank/internal/model"
	"promptbank/internal/prompt"
)

// Handler applies one operation type
type Handler interface {
	Type() model.OperationType
	Name() string
}

// ItemHandler applies items one at a time, in list order
type ItemHandler interface {
	Handler
	Count(op *model.BulkOperation) int
	Apply(ctx context.Context, op *model.BulkOperation, index int) StatusError
}

// BatchHandler applies the whole item list in one call
type BatchHandler interface {
	Handler
	ApplyAll(ctx context.Context, op *model.BulkOperation) model.AggregateOutcome
}

// DefaultHandlers returns the prompt handlers backed by mutator
func DefaultHandlers(mutator prompt.Mutator) []Handler {
	return []Handler{
		&createHandler{mutator: mutator},
		&updateHandler{mutator: mutator},
		&deleteHandler{mutator: mutator},
		&tagHandler{mutator: mutator},
	}
}

type createHandler struct {
	mutator prompt.Mutator
}

func (h *createHandler) Type() model.OperationType { return model.OperationCreatePrompts }
func (h *createHandler) Name() string              { return "Bulk Prompt Create" }

func (h *createHandler) Count(op *model.BulkOperation) int {
	return len(op.Metadata.Prompts)
}

func (h *createHandler) Apply(ctx context.Context, op *model.BulkOperation, index int) StatusError {
	input := op.Metadata.Prompts[index]
	if input.CreatedBy == "" {
		input.CreatedBy = op.CreatedBy
	}

	id, err := h.mutator.Create(ctx, input)
	if err != nil {
		return NewFailure("", err)
	}
	return NewSuccess(id)
}

type updateHandler struct {
	mutator prompt.Mutator
}

func (h *updateHandler) Type() model.OperationType { return model.OperationUpdatePrompts }
func (h *updateHandler) Name() string              { return "Bulk Prompt Update" }

func (h *updateHandler) Count(op *model.BulkOperation) int {
	return len(op.Metadata.Updates)
}

func (h *updateHandler) Apply(ctx context.Context, op *model.BulkOperation, index int) StatusError {
	update := op.Metadata.Updates[index]

	err := h.mutator.Update(ctx, update.ID, update.Changes)
	if errors.Is(err, prompt.ErrNotFound) {
		return NewFailure(update.ID, fmt.Errorf("prompt %s not found", update.ID))
	}
	if err != nil {
		return NewFailure(update.ID, err)
	}
	return NewSuccess(update.ID)
}

type deleteHandler struct {
	mutator prompt.Mutator
}

func (h *deleteHandler) Type() model.OperationType { return model.OperationDeletePrompts }
func (h *deleteHandler) Name() string              { return "Bulk Prompt Delete" }

func (h *deleteHandler) Count(op *model.BulkOperation) int {
	return len(op.Metadata.PromptIDs)
}

// Apply treats a missing prompt as already deleted
func (h *deleteHandler) Apply(ctx context.Context, op *model.BulkOperation, index int) StatusError {
	id := op.Metadata.PromptIDs[index]

	err := h.mutator.Delete(ctx, id)
	if errors.Is(err, prompt.ErrNotFound) {
		return NewNotFound(id)
	}
	if err != nil {
		return NewFailure(id, err)
	}
	return NewSuccess(id)
}

type tagHandler struct {
	mutator prompt.Mutator
}

func (h *tagHandler) Type() model.OperationType { return model.OperationTagPrompts }
func (h *tagHandler) Name() string              { return "Bulk Prompt Tag" }

func (h *tagHandler) ApplyAll(ctx context.Context, op *model.BulkOperation) model.AggregateOutcome {
	req := op.Metadata.Tags
	if req == nil || len(req.PromptIDs) == 0 {
		return model.AggregateOutcome{Status: model.OutcomeSuccess}
	}

	updated, err := h.mutator.Tag(ctx, req.PromptIDs, req.Add, req.Remove)
	if err != nil {
		return model.AggregateOutcome{
			Status:   model.OutcomeFailed,
			Targeted: len(req.PromptIDs),
			Error:    err.Error(),
		}
	}

	return model.AggregateOutcome{
		Status:   model.OutcomeSuccess,
		Targeted: len(req.PromptIDs),
		Updated:  updated,
	}
}
