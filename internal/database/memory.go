package database

import (
	"context"
	"promptbank/internal/model"
	"slices"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ Database = (*MemoryStore)(nil)

// MemoryStore is an in-process Database. Safe for concurrent access.
// Used by tests and by the api binary when no MongoDB URI is configured.
type MemoryStore struct {
	mu sync.RWMutex

	operations map[string]*model.BulkOperation
	prompts    map[string]*model.Prompt

	now func() time.Time
}

// NewMemoryStore returns an empty store using the wall clock
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		operations: make(map[string]*model.BulkOperation),
		prompts:    make(map[string]*model.Prompt),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for timestamps
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Health() error { return nil }

func (s *MemoryStore) Close(_ context.Context) error { return nil }

func (s *MemoryStore) SaveOperation(_ context.Context, op *model.BulkOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.ID == "" {
		op.ID = primitive.NewObjectID().Hex()
	}
	now := s.now()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now
	if op.Errors == nil {
		op.Errors = []string{}
	}

	s.operations[op.ID] = op.Clone()
	return nil
}

func (s *MemoryStore) GetOperation(_ context.Context, id string) (*model.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return op.Clone(), nil
}

func (s *MemoryStore) ClaimPending(_ context.Context, id string) (*model.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.guarded(id, model.StatusPending)
	if err != nil {
		return nil, err
	}

	now := s.now()
	op.Status = model.StatusProcessing
	op.StartedAt = &now
	op.UpdatedAt = now
	op.RunCount++
	return op.Clone(), nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id string, processed, successful, failed int, errs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.guarded(id, model.StatusProcessing)
	if err != nil {
		return err
	}

	op.ProcessedItems = processed
	op.SuccessfulItems = successful
	op.FailedItems = failed
	op.Errors = append([]string{}, errs...)
	op.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, id string, results *model.OperationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.guarded(id, model.StatusProcessing)
	if err != nil {
		return err
	}

	now := s.now()
	op.Status = model.StatusCompleted
	if results != nil {
		op.Results = (&model.BulkOperation{Results: results}).Clone().Results
	}
	op.CompletedAt = &now
	op.UpdatedAt = now
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, errs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.guarded(id, model.StatusProcessing)
	if err != nil {
		return err
	}

	now := s.now()
	op.Status = model.StatusFailed
	op.Errors = append([]string{}, errs...)
	op.CompletedAt = &now
	op.UpdatedAt = now
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from []model.OperationStatus, to model.OperationStatus) (*model.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.guarded(id, from...)
	if err != nil {
		return nil, err
	}

	now := s.now()
	op.Status = to
	op.UpdatedAt = now
	if to == model.StatusCompleted || to == model.StatusFailed {
		op.CompletedAt = &now
	} else {
		op.CompletedAt = nil
	}
	return op.Clone(), nil
}

func (s *MemoryStore) ResetForRetry(_ context.Context, id string) (*model.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.guarded(id, model.StatusFailed)
	if err != nil {
		return nil, err
	}

	op.Status = model.StatusPending
	op.ProcessedItems = 0
	op.SuccessfulItems = 0
	op.FailedItems = 0
	op.Errors = []string{}
	op.Results = nil
	op.StartedAt = nil
	op.CompletedAt = nil
	op.UpdatedAt = s.now()
	return op.Clone(), nil
}

func (s *MemoryStore) ListOperations(_ context.Context, filter model.ListFilter, limit, offset int) ([]*model.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.collect(func(op *model.BulkOperation) bool {
		if filter.Status != "" && op.Status != filter.Status {
			return false
		}
		if filter.OperationType != "" && op.OperationType != filter.OperationType {
			return false
		}
		if filter.CreatedBy != "" && op.CreatedBy != filter.CreatedBy {
			return false
		}
		return true
	})

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return page(matched, limit, offset), nil
}

func (s *MemoryStore) GetPending(_ context.Context, limit int) ([]*model.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := s.collect(func(op *model.BulkOperation) bool {
		return op.Status == model.StatusPending
	})

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	return page(pending, limit, 0), nil
}

func (s *MemoryStore) ListTerminalBefore(_ context.Context, cutoff time.Time, limit int) ([]*model.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	old := s.collect(func(op *model.BulkOperation) bool {
		return op.Status.IsTerminal() && op.UpdatedAt.Before(cutoff)
	})

	sort.SliceStable(old, func(i, j int) bool {
		return old[i].UpdatedAt.Before(old[j].UpdatedAt)
	})

	return page(old, limit, 0), nil
}

func (s *MemoryStore) DeleteOperations(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range ids {
		op, ok := s.operations[id]
		if !ok || !op.Status.IsTerminal() {
			continue
		}
		delete(s.operations, id)
		deleted++
	}
	return deleted, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, status model.OperationStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, op := range s.operations {
		if op.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) InsertPrompt(_ context.Context, prompt *model.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prompt.ID == "" {
		prompt.ID = primitive.NewObjectID().Hex()
	}
	now := s.now()
	prompt.CreatedAt = now
	prompt.UpdatedAt = now
	if prompt.Tags == nil {
		prompt.Tags = []string{}
	}

	cp := *prompt
	cp.Tags = append([]string{}, prompt.Tags...)
	s.prompts[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPrompt(_ context.Context, id string) (*model.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prompts[id]
	if !ok {
		return nil, ErrPromptNotFound
	}
	cp := *p
	cp.Tags = append([]string{}, p.Tags...)
	return &cp, nil
}

func (s *MemoryStore) UpdatePrompt(_ context.Context, id string, changes model.PromptChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prompts[id]
	if !ok {
		return ErrPromptNotFound
	}

	if changes.Name != nil {
		p.Name = *changes.Name
	}
	if changes.Content != nil {
		p.Content = *changes.Content
	}
	if changes.Description != nil {
		p.Description = *changes.Description
	}
	if changes.Category != nil {
		p.Category = *changes.Category
	}
	if changes.Tags != nil {
		p.Tags = append([]string{}, changes.Tags...)
	}
	if changes.Variables != nil {
		p.Variables = changes.Variables
	}
	p.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) DeletePrompt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prompts[id]; !ok {
		return ErrPromptNotFound
	}
	delete(s.prompts, id)
	return nil
}

func (s *MemoryStore) TagPrompts(_ context.Context, ids []string, add, remove []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := 0
	now := s.now()
	for _, id := range ids {
		p, ok := s.prompts[id]
		if !ok {
			continue
		}
		matched++

		for _, tag := range add {
			if !slices.Contains(p.Tags, tag) {
				p.Tags = append(p.Tags, tag)
			}
		}
		if len(remove) > 0 {
			p.Tags = slices.DeleteFunc(p.Tags, func(tag string) bool {
				return slices.Contains(remove, tag)
			})
		}
		p.UpdatedAt = now
	}
	return matched, nil
}

// guarded returns the live record when its status is one of allowed.
// Callers must hold the write lock.
func (s *MemoryStore) guarded(id string, allowed ...model.OperationStatus) (*model.BulkOperation, error) {
	op, ok := s.operations[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	if !slices.Contains(allowed, op.Status) {
		return nil, ErrStatusConflict
	}
	return op, nil
}

// collect returns copies of the operations matching keep. Callers must hold a lock.
func (s *MemoryStore) collect(keep func(*model.BulkOperation) bool) []*model.BulkOperation {
	out := []*model.BulkOperation{}
	for _, op := range s.operations {
		if keep(op) {
			out = append(out, op.Clone())
		}
	}
	return out
}

func page(ops []*model.BulkOperation, limit, offset int) []*model.BulkOperation {
	if offset >= len(ops) {
		return []*model.BulkOperation{}
	}
	if offset > 0 {
		ops = ops[offset:]
	}
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops
}
