package prompt

import (
	"context"
	"errors"
	"fmt"
	"promptbank/internal/database"
	"promptbank/internal/model"
)

// ErrNotFound is returned when a prompt does not exist
var ErrNotFound = database.ErrPromptNotFound

// Mutator applies single prompt changes on behalf of bulk operations
type Mutator interface {
	// Create validates and stores a prompt, returning its ID
	Create(ctx context.Context, input model.PromptInput) (string, error)

	// Update applies a partial change set. Returns ErrNotFound when missing.
	Update(ctx context.Context, id string, changes model.PromptChanges) error

	// Delete removes a prompt. Returns ErrNotFound when missing.
	Delete(ctx context.Context, id string) error

	// Tag adds and removes tags across ids and reports how many prompts matched
	Tag(ctx context.Context, ids []string, add, remove []string) (int, error)
}

type storeMutator struct {
	store     database.PromptStore
	validator *Validator
}

// NewMutator returns a Mutator backed by a prompt store
func NewMutator(store database.PromptStore, validator *Validator) Mutator {
	return &storeMutator{store: store, validator: validator}
}

func (m *storeMutator) Create(ctx context.Context, input model.PromptInput) (string, error) {
	if err := m.validator.Struct(input); err != nil {
		return "", err
	}

	p := &model.Prompt{
		Name:        input.Name,
		Content:     input.Content,
		Description: input.Description,
		Category:    input.Category,
		Tags:        input.Tags,
		Variables:   input.Variables,
		CreatedBy:   input.CreatedBy,
	}
	if err := m.store.InsertPrompt(ctx, p); err != nil {
		return "", fmt.Errorf("insert prompt: %w", err)
	}
	return p.ID, nil
}

func (m *storeMutator) Update(ctx context.Context, id string, changes model.PromptChanges) error {
	if id == "" {
		return errors.New("prompt id is required")
	}
	if changes.IsEmpty() {
		return errors.New("no changes given")
	}
	if err := m.validator.Struct(changes); err != nil {
		return err
	}

	return m.store.UpdatePrompt(ctx, id, changes)
}

func (m *storeMutator) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("prompt id is required")
	}
	return m.store.DeletePrompt(ctx, id)
}

func (m *storeMutator) Tag(ctx context.Context, ids []string, add, remove []string) (int, error) {
	if len(add) == 0 && len(remove) == 0 {
		return 0, errors.New("no tags to add or remove")
	}
	if err := m.validator.Struct(model.TagSpec{PromptIDs: ids, Add: add, Remove: remove}); err != nil {
		return 0, err
	}

	return m.store.TagPrompts(ctx, ids, add, remove)
}
