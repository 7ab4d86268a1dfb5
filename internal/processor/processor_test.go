package processor

import (
	"context"
	"errors"
	"promptbank/internal/cache"
	"promptbank/internal/database"
	"promptbank/internal/model"
	"promptbank/internal/notify"
	"promptbank/internal/prompt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *database.MemoryStore
	recorder *notify.Recorder
	mutator  prompt.Mutator
	registry HandlerRegistry
	proc     *Processor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := database.NewMemoryStore()
	mutator := prompt.NewMutator(store, prompt.NewValidator())
	registry := NewRegistry(DefaultHandlers(mutator)...)
	recorder := notify.NewRecorder()

	return &fixture{
		store:    store,
		recorder: recorder,
		mutator:  mutator,
		registry: registry,
		proc:     New(store, registry, recorder, opts...),
	}
}

func (f *fixture) save(t *testing.T, opType model.OperationType, meta model.OperationMetadata) *model.BulkOperation {
	t.Helper()
	op := &model.BulkOperation{
		OperationType: opType,
		Status:        model.StatusPending,
		TotalItems:    meta.ItemCount(opType),
		Metadata:      meta,
		CreatedBy:     "tester",
	}
	require.NoError(t, f.store.SaveOperation(context.Background(), op))
	return op
}

func (f *fixture) get(t *testing.T, id string) *model.BulkOperation {
	t.Helper()
	op, err := f.store.GetOperation(context.Background(), id)
	require.NoError(t, err)
	return op
}

func (f *fixture) seedPrompt(t *testing.T, name string) string {
	t.Helper()
	id, err := f.mutator.Create(context.Background(), model.PromptInput{Name: name, Content: "body"})
	require.NoError(t, err)
	return id
}

func assertCounters(t *testing.T, op *model.BulkOperation) {
	t.Helper()
	assert.Equal(t, op.ProcessedItems, op.SuccessfulItems+op.FailedItems)
	assert.LessOrEqual(t, op.ProcessedItems, op.TotalItems)
	terminalWithTime := op.Status == model.StatusCompleted || op.Status == model.StatusFailed
	assert.Equal(t, terminalWithTime, op.CompletedAt != nil)
}

func TestCreateWithOneInvalidItemFails(t *testing.T) {
	f := newFixture(t)
	op := f.save(t, model.OperationCreatePrompts, model.OperationMetadata{
		Prompts: []model.PromptInput{
			{Name: "one", Content: "a"},
			{Name: "two", Content: "b"},
			{Name: "three"},
		},
	})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 3, got.ProcessedItems)
	assert.Equal(t, 2, got.SuccessfulItems)
	assert.Equal(t, 1, got.FailedItems)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "create failed at index 2: content is required", got.Errors[0])
	assert.Nil(t, got.Results)
	assertCounters(t, got)

	assert.Equal(t, []notify.EventType{notify.EventStarted, notify.EventFailed}, f.recorder.Types())
}

func TestCreateAllValidCompletesWithOutcomes(t *testing.T) {
	f := newFixture(t)
	op := f.save(t, model.OperationCreatePrompts, model.OperationMetadata{
		Prompts: []model.PromptInput{{Name: "one", Content: "a"}, {Name: "two", Content: "b"}},
	})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Empty(t, got.Errors)
	require.NotNil(t, got.Results)
	assert.Equal(t, model.ResultPerItem, got.Results.Kind)
	require.Len(t, got.Results.Items, 2)
	for i, item := range got.Results.Items {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, model.OutcomeSuccess, item.Status)

		p, err := f.store.GetPrompt(context.Background(), item.ID)
		require.NoError(t, err)
		assert.Equal(t, "tester", p.CreatedBy)
	}
	assert.Equal(t, 1, got.RunCount)
	assert.NotNil(t, got.StartedAt)
	assertCounters(t, got)

	events := f.recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventCompleted, events[1].Type)
	assert.Equal(t, 2, events[1].Data.Summary.SuccessfulItems)
}

func TestDeleteMissingIDIsNotFoundAndCompletes(t *testing.T) {
	f := newFixture(t)
	existing := f.seedPrompt(t, "keep")
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{
		PromptIDs: []string{existing, "missing"},
	})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedItems)
	assert.Equal(t, 2, got.SuccessfulItems)
	assert.Zero(t, got.FailedItems)
	require.NotNil(t, got.Results)
	require.Len(t, got.Results.Items, 2)
	assert.Equal(t, model.OutcomeSuccess, got.Results.Items[0].Status)
	assert.Equal(t, model.OutcomeNotFound, got.Results.Items[1].Status)
	assert.Equal(t, "missing", got.Results.Items[1].ID)
	assertCounters(t, got)

	_, err := f.store.GetPrompt(context.Background(), existing)
	assert.ErrorIs(t, err, database.ErrPromptNotFound)
}

func TestUpdateMissingIDFailsItem(t *testing.T) {
	f := newFixture(t)
	id := f.seedPrompt(t, "before")
	name := "after"
	op := f.save(t, model.OperationUpdatePrompts, model.OperationMetadata{
		Updates: []model.PromptUpdate{
			{ID: "ghost", Changes: model.PromptChanges{Name: &name}},
			{ID: id, Changes: model.PromptChanges{Name: &name}},
		},
	})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 1, got.SuccessfulItems)
	assert.Equal(t, 1, got.FailedItems)
	assert.Equal(t, []string{"update failed at index 0: prompt ghost not found"}, got.Errors)

	p, err := f.store.GetPrompt(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "after", p.Name)
}

func TestEmptyOperationCompletesImmediately(t *testing.T) {
	f := newFixture(t)
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Zero(t, got.TotalItems)
	require.NotNil(t, got.Results)
	assert.Empty(t, got.Results.Items)
	assert.Zero(t, model.ProgressPercentage(got))
}

func TestTagAggregateOutcome(t *testing.T) {
	f := newFixture(t)
	a := f.seedPrompt(t, "a")
	b := f.seedPrompt(t, "b")
	op := f.save(t, model.OperationTagPrompts, model.OperationMetadata{
		Tags: &model.TagSpec{PromptIDs: []string{a, b, "missing"}, Add: []string{"reviewed"}},
	})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.ProcessedItems)
	assert.Equal(t, 3, got.SuccessfulItems)
	require.NotNil(t, got.Results)
	assert.Equal(t, model.ResultAggregate, got.Results.Kind)
	assert.Empty(t, got.Results.Items)
	require.NotNil(t, got.Results.Aggregate)
	assert.Equal(t, model.AggregateOutcome{Status: model.OutcomeSuccess, Targeted: 3, Updated: 2}, *got.Results.Aggregate)

	p, err := f.store.GetPrompt(context.Background(), a)
	require.NoError(t, err)
	assert.Contains(t, p.Tags, "reviewed")
}

func TestTagFailureFailsEveryItem(t *testing.T) {
	f := newFixture(t)
	a := f.seedPrompt(t, "a")
	op := f.save(t, model.OperationTagPrompts, model.OperationMetadata{
		Tags: &model.TagSpec{PromptIDs: []string{a, "b"}},
	})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 2, got.ProcessedItems)
	assert.Equal(t, 2, got.FailedItems)
	assert.Equal(t, []string{"tag failed: no tags to add or remove"}, got.Errors)
	assertCounters(t, got)
}

func TestTagWithoutIDsSkipsMutator(t *testing.T) {
	f := newFixture(t)
	op := f.save(t, model.OperationTagPrompts, model.OperationMetadata{
		Tags: &model.TagSpec{},
	})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Results.Aggregate)
	assert.Zero(t, got.Results.Aggregate.Targeted)
}

// scriptedHandler runs fn for every item of a delete operation
type scriptedHandler struct {
	fn func(ctx context.Context, op *model.BulkOperation, index int) StatusError
}

func (h *scriptedHandler) Type() model.OperationType         { return model.OperationDeletePrompts }
func (h *scriptedHandler) Name() string                      { return "scripted" }
func (h *scriptedHandler) Count(op *model.BulkOperation) int { return len(op.Metadata.PromptIDs) }
func (h *scriptedHandler) Apply(ctx context.Context, op *model.BulkOperation, index int) StatusError {
	return h.fn(ctx, op, index)
}

func TestCancelDuringRunStopsAndKeepsCancelled(t *testing.T) {
	f := newFixture(t)
	applied := 0
	f.registry.Register(&scriptedHandler{fn: func(ctx context.Context, op *model.BulkOperation, index int) StatusError {
		applied++
		if index == 1 {
			_, err := f.store.UpdateStatus(ctx, op.ID, []model.OperationStatus{model.StatusProcessing}, model.StatusCancelled)
			require.NoError(t, err)
		}
		return NewSuccess(op.Metadata.PromptIDs[index])
	}})
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{PromptIDs: []string{"a", "b", "c", "d"}})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	// the item in flight when the cancel landed was applied but is not counted
	assert.Equal(t, 2, applied)

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, 1, got.ProcessedItems)
	assert.Nil(t, got.CompletedAt)
	assertCounters(t, got)
	assert.Equal(t, []notify.EventType{notify.EventStarted}, f.recorder.Types())
}

func TestPanicMarksWholeRunFailed(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(&scriptedHandler{fn: func(_ context.Context, op *model.BulkOperation, index int) StatusError {
		if index == 1 {
			panic("boom")
		}
		return NewSuccess(op.Metadata.PromptIDs[index])
	}})
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{PromptIDs: []string{"a", "b", "c"}})

	err := f.proc.Run(context.Background(), op.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run panicked: boom")

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 1, got.ProcessedItems)
	assert.Equal(t, []string{"run panicked: boom"}, got.Errors)
	assertCounters(t, got)
	assert.Equal(t, []notify.EventType{notify.EventStarted, notify.EventFailed}, f.recorder.Types())
}

func TestMissingHandlerFailsRun(t *testing.T) {
	store := database.NewMemoryStore()
	proc := New(store, NewRegistry(), nil)
	op := &model.BulkOperation{OperationType: model.OperationTagPrompts, Status: model.StatusPending, Metadata: model.OperationMetadata{Tags: &model.TagSpec{}}}
	require.NoError(t, store.SaveOperation(context.Background(), op))

	err := proc.Run(context.Background(), op.ID)
	require.Error(t, err)

	got, err := store.GetOperation(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, []string{"no handler registered for tag_prompts"}, got.Errors)
}

func TestSecondRunIsNoOp(t *testing.T) {
	f := newFixture(t)
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{PromptIDs: []string{"x"}})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))
	assert.ErrorIs(t, f.proc.Run(context.Background(), op.ID), ErrNotClaimed)

	got := f.get(t, op.ID)
	assert.Equal(t, 1, got.RunCount)
	assert.Equal(t, 1, got.ProcessedItems)
}

func TestRunLockHeldSkipsRun(t *testing.T) {
	locks := cache.NewMemoryCache()
	f := newFixture(t, WithRunLock(cache.NewRunLock(locks, time.Minute)))
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{PromptIDs: []string{"x"}})

	ok, err := locks.Acquire(context.Background(), "bulk-run:"+op.ID, "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, f.proc.Run(context.Background(), op.ID), ErrNotClaimed)
	assert.Equal(t, model.StatusPending, f.get(t, op.ID).Status)

	require.NoError(t, locks.Release(context.Background(), "bulk-run:"+op.ID, "other-run"))
	require.NoError(t, f.proc.Run(context.Background(), op.ID))
	assert.Equal(t, model.StatusCompleted, f.get(t, op.ID).Status)
}

func TestEmitterFailureDoesNotAffectStatus(t *testing.T) {
	f := newFixture(t)
	f.recorder.Err = assert.AnError
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{PromptIDs: []string{"x"}})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))
	assert.Equal(t, model.StatusCompleted, f.get(t, op.ID).Status)
	assert.Len(t, f.recorder.Events(), 2)
}

// stalledEmitter blocks until the caller gives up
type stalledEmitter struct{}

func (stalledEmitter) NotifyEvent(ctx context.Context, _ notify.EventType, _ notify.EventData) (notify.NotificationResult, error) {
	<-ctx.Done()
	return notify.NotificationResult{}, ctx.Err()
}

func TestStalledEmitterDoesNotBlockRun(t *testing.T) {
	store := database.NewMemoryStore()
	registry := NewRegistry(&scriptedHandler{fn: func(_ context.Context, op *model.BulkOperation, index int) StatusError {
		return NewSuccess(op.Metadata.PromptIDs[index])
	}})
	proc := New(store, registry, stalledEmitter{}, WithEmitTimeout(20*time.Millisecond))

	op := &model.BulkOperation{
		OperationType: model.OperationDeletePrompts,
		Status:        model.StatusPending,
		TotalItems:    2,
		Metadata:      model.OperationMetadata{PromptIDs: []string{"a", "b"}},
	}
	require.NoError(t, store.SaveOperation(context.Background(), op))

	start := time.Now()
	require.NoError(t, proc.Run(context.Background(), op.ID))
	assert.Less(t, time.Since(start), 2*time.Second)

	got, err := store.GetOperation(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.SuccessfulItems)
}

func TestStatusCacheReceivesTerminalSnapshot(t *testing.T) {
	sc := cache.NewStatusCache(cache.NewMemoryCache(), time.Minute)
	f := newFixture(t, WithStatusCache(sc))
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{PromptIDs: []string{"x"}})

	require.NoError(t, f.proc.Run(context.Background(), op.ID))

	cached, err := sc.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, cached.Status)
}

// reloadFailingStore loses its connection once the outcome is written
type reloadFailingStore struct {
	*database.MemoryStore
	finished bool
}

func (s *reloadFailingStore) MarkCompleted(ctx context.Context, id string, results *model.OperationResult) error {
	s.finished = true
	return s.MemoryStore.MarkCompleted(ctx, id, results)
}

func (s *reloadFailingStore) MarkFailed(ctx context.Context, id string, errs []string) error {
	s.finished = true
	return s.MemoryStore.MarkFailed(ctx, id, errs)
}

func (s *reloadFailingStore) GetOperation(ctx context.Context, id string) (*model.BulkOperation, error) {
	if s.finished {
		return nil, errors.New("server selection timeout")
	}
	return s.MemoryStore.GetOperation(ctx, id)
}

func TestTerminalEventSurvivesFailedReload(t *testing.T) {
	tests := []struct {
		name      string
		ids       []string
		wantEvent notify.EventType
		wantFail  int
	}{
		{name: "completed", ids: []string{"a", "b"}, wantEvent: notify.EventCompleted},
		{name: "failed", ids: []string{"a", "", "b"}, wantEvent: notify.EventFailed, wantFail: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &reloadFailingStore{MemoryStore: database.NewMemoryStore()}
			registry := NewRegistry(&scriptedHandler{fn: func(_ context.Context, op *model.BulkOperation, index int) StatusError {
				id := op.Metadata.PromptIDs[index]
				if id == "" {
					return NewFailure(id, errors.New("prompt id is required"))
				}
				return NewSuccess(id)
			}})
			recorder := notify.NewRecorder()
			proc := New(store, registry, recorder)

			op := &model.BulkOperation{
				OperationType: model.OperationDeletePrompts,
				Status:        model.StatusPending,
				TotalItems:    len(tt.ids),
				Metadata:      model.OperationMetadata{PromptIDs: tt.ids},
				CreatedBy:     "tester",
			}
			require.NoError(t, store.SaveOperation(context.Background(), op))

			require.NoError(t, proc.Run(context.Background(), op.ID))

			events := recorder.Events()
			require.Len(t, events, 2)
			assert.Equal(t, notify.EventStarted, events[0].Type)
			assert.Equal(t, tt.wantEvent, events[1].Type)
			assert.Equal(t, op.ID, events[1].Data.OperationID)
			assert.Equal(t, len(tt.ids), events[1].Data.Summary.ProcessedItems)
			assert.Equal(t, tt.wantFail, events[1].Data.Summary.FailedItems)
		})
	}
}

func TestCancelledContextFailsRun(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(&scriptedHandler{fn: func(_ context.Context, op *model.BulkOperation, index int) StatusError {
		return NewSuccess(op.Metadata.PromptIDs[index])
	}})
	op := f.save(t, model.OperationDeletePrompts, model.OperationMetadata{PromptIDs: []string{"a", "b"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.proc.Run(ctx, op.ID)
	require.Error(t, err)

	got := f.get(t, op.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Zero(t, got.ProcessedItems)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "run interrupted")
}
