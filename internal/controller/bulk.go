package controller

import (
	"context"
	"errors"
	"fmt"
	"promptbank/internal/archive"
	"promptbank/internal/cache"
	"promptbank/internal/database"
	"promptbank/internal/model"
	"promptbank/internal/orchestrator"
	"promptbank/internal/processor"
	"time"

	"github.com/rs/zerolog/log"
)

// cleanupBatchSize bounds how many operations one delete call removes
const cleanupBatchSize = 100

// CreateRequest describes a new bulk operation. AutoStart defaults to true.
type CreateRequest struct {
	OperationType model.OperationType
	Metadata      model.OperationMetadata
	CreatedBy     string
	AutoStart     *bool
}

// BulkController manages the lifecycle of bulk operations
type BulkController interface {
	// CreateOperation validates and persists a pending operation, scheduling
	// a run when auto start applies
	CreateOperation(ctx context.Context, req CreateRequest) (*model.BulkOperation, error)

	CreatePrompts(ctx context.Context, prompts []model.PromptInput, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error)
	UpdatePrompts(ctx context.Context, updates []model.PromptUpdate, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error)
	DeletePrompts(ctx context.Context, ids []string, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error)
	TagPrompts(ctx context.Context, ids, add, remove []string, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error)

	GetOperation(ctx context.Context, id string) (*model.BulkOperation, error)
	GetStatus(ctx context.Context, id string) (*model.OperationStatusView, error)
	ListOperations(ctx context.Context, filter model.ListFilter, limit, offset int) ([]*model.BulkOperation, error)

	// StartOperation queues a pending operation, or runs it inline when no
	// scheduler is configured
	StartOperation(ctx context.Context, id string) (*model.BulkOperation, error)
	CancelOperation(ctx context.Context, id string) (*model.BulkOperation, error)
	RetryOperation(ctx context.Context, id string) (*model.BulkOperation, error)

	// CleanupOperations purges terminal operations not touched for daysOld days
	CleanupOperations(ctx context.Context, daysOld int) (int, error)

	// ResumePending schedules every pending operation and fails operations
	// left processing by a previous process
	ResumePending(ctx context.Context) (int, error)
}

type Option func(*bulkController)

// WithScheduler enables auto start through s
func WithScheduler(s orchestrator.Scheduler) Option {
	return func(c *bulkController) { c.scheduler = s }
}

// WithArchiver archives operations before cleanup deletes them
func WithArchiver(a archive.Archiver) Option {
	return func(c *bulkController) { c.archiver = a }
}

// WithStatusCache serves terminal status queries from sc
func WithStatusCache(sc *cache.StatusCache) Option {
	return func(c *bulkController) { c.statusCache = sc }
}

// WithAutoStart sets the default used when a request leaves AutoStart unset
func WithAutoStart(enabled bool) Option {
	return func(c *bulkController) { c.autoStart = enabled }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *bulkController) { c.now = now }
}

type bulkController struct {
	store       database.BulkOperationStore
	runner      processor.Runner
	scheduler   orchestrator.Scheduler
	archiver    archive.Archiver
	statusCache *cache.StatusCache
	autoStart   bool
	now         func() time.Time
}

// NewBulkController creates a controller over store. runner executes inline
// starts when no scheduler is configured.
func NewBulkController(store database.BulkOperationStore, runner processor.Runner, opts ...Option) BulkController {
	c := &bulkController{
		store:     store,
		runner:    runner,
		autoStart: true,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *bulkController) CreateOperation(ctx context.Context, req CreateRequest) (*model.BulkOperation, error) {
	if !req.OperationType.IsValid() {
		return nil, model.NewValidationError("unsupported operation type %q", req.OperationType)
	}
	if req.CreatedBy == "" {
		return nil, model.NewValidationError("created_by is required")
	}

	metadata, err := itemsFor(req.OperationType, req.Metadata)
	if err != nil {
		return nil, err
	}

	op := &model.BulkOperation{
		OperationType: req.OperationType,
		Status:        model.StatusPending,
		TotalItems:    metadata.ItemCount(req.OperationType),
		Errors:        []string{},
		Metadata:      metadata,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     c.now(),
	}

	if err := c.store.SaveOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to create bulk operation: %w", err)
	}

	log.Info().
		Str("operationId", op.ID).
		Str("type", string(op.OperationType)).
		Int("total", op.TotalItems).
		Str("createdBy", op.CreatedBy).
		Msg("Bulk operation created")

	autoStart := c.autoStart
	if req.AutoStart != nil {
		autoStart = *req.AutoStart
	}
	if autoStart {
		c.schedule(op.ID)
	}

	return op, nil
}

// itemsFor keeps only the item list matching t and rejects a missing one
func itemsFor(t model.OperationType, in model.OperationMetadata) (model.OperationMetadata, error) {
	out := model.OperationMetadata{Extra: in.Extra}

	switch t {
	case model.OperationCreatePrompts:
		if in.Prompts == nil {
			return out, model.NewValidationError("prompts are required for %s", t)
		}
		out.Prompts = in.Prompts
	case model.OperationUpdatePrompts:
		if in.Updates == nil {
			return out, model.NewValidationError("updates are required for %s", t)
		}
		for i, u := range in.Updates {
			if u.ID == "" {
				return out, model.NewValidationError("updates[%d].id is required", i)
			}
		}
		out.Updates = in.Updates
	case model.OperationDeletePrompts:
		if in.PromptIDs == nil {
			return out, model.NewValidationError("prompt_ids are required for %s", t)
		}
		out.PromptIDs = in.PromptIDs
	case model.OperationTagPrompts:
		if in.Tags == nil || in.Tags.PromptIDs == nil {
			return out, model.NewValidationError("tags.prompt_ids are required for %s", t)
		}
		if len(in.Tags.Add) == 0 && len(in.Tags.Remove) == 0 {
			return out, model.NewValidationError("tags.add or tags.remove is required for %s", t)
		}
		tags := *in.Tags
		out.Tags = &tags
	}

	return out, nil
}

func (c *bulkController) CreatePrompts(ctx context.Context, prompts []model.PromptInput, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error) {
	if prompts == nil {
		prompts = []model.PromptInput{}
	}
	return c.CreateOperation(ctx, CreateRequest{
		OperationType: model.OperationCreatePrompts,
		Metadata:      model.OperationMetadata{Prompts: prompts, Extra: extra},
		CreatedBy:     createdBy,
	})
}

func (c *bulkController) UpdatePrompts(ctx context.Context, updates []model.PromptUpdate, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error) {
	if updates == nil {
		updates = []model.PromptUpdate{}
	}
	return c.CreateOperation(ctx, CreateRequest{
		OperationType: model.OperationUpdatePrompts,
		Metadata:      model.OperationMetadata{Updates: updates, Extra: extra},
		CreatedBy:     createdBy,
	})
}

func (c *bulkController) DeletePrompts(ctx context.Context, ids []string, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error) {
	if ids == nil {
		ids = []string{}
	}
	return c.CreateOperation(ctx, CreateRequest{
		OperationType: model.OperationDeletePrompts,
		Metadata:      model.OperationMetadata{PromptIDs: ids, Extra: extra},
		CreatedBy:     createdBy,
	})
}

func (c *bulkController) TagPrompts(ctx context.Context, ids, add, remove []string, createdBy string, extra map[string]interface{}) (*model.BulkOperation, error) {
	if ids == nil {
		ids = []string{}
	}
	return c.CreateOperation(ctx, CreateRequest{
		OperationType: model.OperationTagPrompts,
		Metadata: model.OperationMetadata{
			Tags:  &model.TagSpec{PromptIDs: ids, Add: add, Remove: remove},
			Extra: extra,
		},
		CreatedBy: createdBy,
	})
}

func (c *bulkController) GetOperation(ctx context.Context, id string) (*model.BulkOperation, error) {
	return c.store.GetOperation(ctx, id)
}

func (c *bulkController) GetStatus(ctx context.Context, id string) (*model.OperationStatusView, error) {
	if c.statusCache != nil {
		if op, err := c.statusCache.Get(ctx, id); err == nil {
			return model.NewStatusView(op, c.now()), nil
		}
	}

	// snapshots are written by terminal transitions only
	op, err := c.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.NewStatusView(op, c.now()), nil
}

func (c *bulkController) ListOperations(ctx context.Context, filter model.ListFilter, limit, offset int) ([]*model.BulkOperation, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, model.NewValidationError("unknown status %q", filter.Status)
	}
	if filter.OperationType != "" && !filter.OperationType.IsValid() {
		return nil, model.NewValidationError("unsupported operation type %q", filter.OperationType)
	}
	if limit < 0 || offset < 0 {
		return nil, model.NewValidationError("limit and offset must not be negative")
	}
	return c.store.ListOperations(ctx, filter, limit, offset)
}

func (c *bulkController) StartOperation(ctx context.Context, id string) (*model.BulkOperation, error) {
	op, err := c.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateTransition(op.Status, model.StatusProcessing); err != nil {
		return nil, err
	}

	if c.scheduler != nil {
		if err := c.scheduler.Submit(id); err != nil {
			return nil, fmt.Errorf("failed to schedule bulk operation: %w", err)
		}
		return op, nil
	}

	err = c.runner.Run(ctx, id)
	if errors.Is(err, processor.ErrNotClaimed) {
		return nil, fmt.Errorf("%w: operation %s is already running", model.ErrInvalidTransition, id)
	}
	if err != nil {
		log.Warn().Err(err).Str("operationId", id).Msg("Inline bulk operation run failed")
	}

	return c.store.GetOperation(ctx, id)
}

func (c *bulkController) CancelOperation(ctx context.Context, id string) (*model.BulkOperation, error) {
	op, err := c.store.UpdateStatus(ctx, id, model.SourcesFor(model.StatusCancelled), model.StatusCancelled)
	if errors.Is(err, database.ErrStatusConflict) {
		return nil, c.transitionError(ctx, id, model.StatusCancelled)
	}
	if err != nil {
		return nil, err
	}

	if c.statusCache != nil {
		c.statusCache.Put(ctx, op)
	}

	log.Info().Str("operationId", id).Int("processed", op.ProcessedItems).Msg("Bulk operation cancelled")
	return op, nil
}

func (c *bulkController) RetryOperation(ctx context.Context, id string) (*model.BulkOperation, error) {
	op, err := c.store.ResetForRetry(ctx, id)
	if errors.Is(err, database.ErrStatusConflict) {
		return nil, c.transitionError(ctx, id, model.StatusPending)
	}
	if err != nil {
		return nil, err
	}

	if c.statusCache != nil {
		c.statusCache.Invalidate(ctx, id)
	}

	log.Info().Str("operationId", id).Int("previousRuns", op.RunCount).Msg("Bulk operation reset for retry")
	c.schedule(id)

	return op, nil
}

// transitionError explains why id could not move to to
func (c *bulkController) transitionError(ctx context.Context, id string, to model.OperationStatus) error {
	current, err := c.store.GetOperation(ctx, id)
	if err != nil {
		return err
	}
	if err := model.ValidateTransition(current.Status, to); err != nil {
		return err
	}
	// the status changed between the write and the reload
	return fmt.Errorf("%w: operation %s changed concurrently", model.ErrInvalidTransition, id)
}

func (c *bulkController) CleanupOperations(ctx context.Context, daysOld int) (int, error) {
	if daysOld <= 0 {
		return 0, model.NewValidationError("days_old must be positive, got %d", daysOld)
	}

	cutoff := c.now().Add(-time.Duration(daysOld) * 24 * time.Hour)
	expired, err := c.store.ListTerminalBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired bulk operations: %w", err)
	}

	purged := 0
	for _, batch := range orchestrator.Chunk(expired, cleanupBatchSize) {
		ids := make([]string, 0, len(batch))
		for _, op := range batch {
			if c.archiver != nil {
				if _, err := c.archiver.Archive(ctx, op); err != nil {
					log.Warn().Err(err).Str("operationId", op.ID).Msg("Failed to archive bulk operation, keeping it")
					continue
				}
			}
			ids = append(ids, op.ID)
		}
		if len(ids) == 0 {
			continue
		}

		deleted, err := c.store.DeleteOperations(ctx, ids)
		if err != nil {
			return purged, fmt.Errorf("failed to delete expired bulk operations: %w", err)
		}
		purged += int(deleted)

		if c.statusCache != nil {
			for _, id := range ids {
				c.statusCache.Invalidate(ctx, id)
			}
		}
	}

	log.Info().
		Int("daysOld", daysOld).
		Time("cutoff", cutoff).
		Int("expired", len(expired)).
		Int("purged", purged).
		Msg("Bulk operation cleanup finished")

	return purged, nil
}

func (c *bulkController) ResumePending(ctx context.Context) (int, error) {
	orphans, err := c.store.ListOperations(ctx, model.ListFilter{Status: model.StatusProcessing}, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing bulk operations: %w", err)
	}
	for _, op := range orphans {
		errs := append(op.Errors, "run interrupted by restart")
		if err := c.store.MarkFailed(ctx, op.ID, errs); err != nil {
			log.Warn().Err(err).Str("operationId", op.ID).Msg("Failed to fail orphaned bulk operation")
			continue
		}
		log.Warn().Str("operationId", op.ID).Int("processed", op.ProcessedItems).Msg("Orphaned bulk operation marked failed")
	}

	if c.scheduler == nil {
		log.Info().Msg("No scheduler configured, pending bulk operations stay pending")
		return 0, nil
	}

	pending, err := c.store.GetPending(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending bulk operations: %w", err)
	}

	scheduled := 0
	for _, op := range pending {
		if err := c.scheduler.Submit(op.ID); err != nil {
			log.Warn().Err(err).Int("remaining", len(pending)-scheduled).Msg("Stopped resuming pending bulk operations")
			return scheduled, err
		}
		scheduled++
	}

	log.Info().Int("scheduled", scheduled).Msg("Resumed pending bulk operations")
	return scheduled, nil
}

// schedule submits a run. Without a scheduler the operation stays pending
// until it is started explicitly.
func (c *bulkController) schedule(id string) {
	if c.scheduler == nil {
		log.Info().Str("operationId", id).Msg("No scheduler configured, bulk operation left pending")
		return
	}

	if err := c.scheduler.Submit(id); err != nil {
		log.Warn().Err(err).Str("operationId", id).Msg("Failed to schedule bulk operation, left pending")
	}
}
