package prompt

import (
	"context"
	"promptbank/internal/database"
	"promptbank/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMutator() (Mutator, *database.MemoryStore) {
	store := database.NewMemoryStore()
	return NewMutator(store, NewValidator()), store
}

func TestCreateValidates(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMutator()

	id, err := m.Create(ctx, model.PromptInput{Name: "greeting", Content: "Hello {{name}}", Tags: []string{"en"}})
	require.NoError(t, err)

	p, err := store.GetPrompt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "greeting", p.Name)
	assert.Equal(t, []string{"en"}, p.Tags)

	tests := []struct {
		name  string
		input model.PromptInput
		msg   string
	}{
		{"missing name", model.PromptInput{Content: "x"}, "name is required"},
		{"missing content", model.PromptInput{Name: "x"}, "content is required"},
		{"bad tag", model.PromptInput{Name: "x", Content: "y", Tags: []string{"has space"}}, "invalid tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestUpdateMissingPrompt(t *testing.T) {
	m, _ := newTestMutator()
	name := "renamed"

	err := m.Update(context.Background(), "nope", model.PromptChanges{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.Update(context.Background(), "nope", model.PromptChanges{})
	assert.EqualError(t, err, "no changes given")
}

func TestDeleteAndTag(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMutator()

	a, err := m.Create(ctx, model.PromptInput{Name: "a", Content: "a", Tags: []string{"old"}})
	require.NoError(t, err)
	b, err := m.Create(ctx, model.PromptInput{Name: "b", Content: "b"})
	require.NoError(t, err)

	n, err := m.Tag(ctx, []string{a, b, "missing"}, []string{"new"}, []string{"old"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pa, err := store.GetPrompt(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, pa.Tags)

	require.NoError(t, m.Delete(ctx, b))
	assert.ErrorIs(t, m.Delete(ctx, b), ErrNotFound)

	_, err = m.Tag(ctx, []string{a}, nil, nil)
	assert.Error(t, err)
}
