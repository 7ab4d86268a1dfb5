package processor

import (
	"context"
	"errors"
	"fmt"
	"promptbank/internal/cache"
	"promptbank/internal/database"
	"promptbank/internal/model"
	"promptbank/internal/notify"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotClaimed is returned when another run owns the operation or it is no
// longer pending. The run did nothing.
var ErrNotClaimed = errors.New("bulk operation not claimed")

// errStopped ends a run whose operation left the processing state
var errStopped = errors.New("bulk operation no longer processing")

// Runner executes one bulk operation to completion
type Runner interface {
	Run(ctx context.Context, id string) error
}

// DefaultEmitTimeout bounds a single event emission
const DefaultEmitTimeout = 5 * time.Second

type Option func(*Processor)

// WithEmitTimeout bounds how long a run waits on one event emission
func WithEmitTimeout(d time.Duration) Option {
	return func(p *Processor) { p.emitTimeout = d }
}

// WithRunLock makes every run take a per-operation lock before claiming
func WithRunLock(lock *cache.RunLock) Option {
	return func(p *Processor) { p.runLock = lock }
}

// WithStatusCache stores the terminal snapshot after each run
func WithStatusCache(sc *cache.StatusCache) Option {
	return func(p *Processor) { p.statusCache = sc }
}

// Processor drives bulk operations through their items. It is the only
// writer of progress counters while an operation is processing.
type Processor struct {
	store       database.BulkOperationStore
	registry    HandlerRegistry
	emitter     notify.Emitter
	runLock     *cache.RunLock
	statusCache *cache.StatusCache
	emitTimeout time.Duration
}

var _ Runner = (*Processor)(nil)

func New(store database.BulkOperationStore, registry HandlerRegistry, emitter notify.Emitter, opts ...Option) *Processor {
	p := &Processor{
		store:       store,
		registry:    registry,
		emitter:     emitter,
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// progress holds the counters of the current run
type progress struct {
	processed  int
	successful int
	failed     int
	errors     []string
	items      []model.ItemOutcome

	// saved is the error list of the last successful progress write
	saved []string
}

// Run claims the pending operation id and applies its items. Item failures
// are recorded on the operation; the returned error is reserved for runs that
// could not be claimed or failed as a whole.
func (p *Processor) Run(ctx context.Context, id string) error {
	logger := log.With().Str("operationId", id).Logger()

	if p.runLock != nil {
		release, err := p.runLock.Lock(ctx, id)
		if errors.Is(err, cache.ErrLockHeld) {
			logger.Debug().Msg("Run lock held elsewhere, skipping")
			return ErrNotClaimed
		}
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		defer release()
	}

	op, err := p.store.ClaimPending(ctx, id)
	if errors.Is(err, database.ErrStatusConflict) {
		logger.Debug().Msg("Bulk operation not pending, skipping")
		return ErrNotClaimed
	}
	if err != nil {
		return fmt.Errorf("claim bulk operation: %w", err)
	}

	logger.Info().
		Str("type", string(op.OperationType)).
		Int("total", op.TotalItems).
		Int("run", op.RunCount).
		Msg("Started bulk operation")
	p.emit(ctx, notify.EventStarted, op)

	prog := &progress{errors: []string{}, saved: []string{}}
	results, runErr := p.execute(ctx, op, prog)

	// terminal writes must land even if the caller's context is gone
	wctx := context.WithoutCancel(ctx)

	if errors.Is(runErr, errStopped) {
		logger.Info().Int("processed", prog.processed).Msg("Bulk operation cancelled, run stopped")
		p.cacheSnapshot(wctx, id)
		return nil
	}

	var finalErr error
	status, errs := model.StatusFailed, prog.errors
	switch {
	case runErr != nil:
		logger.Error().Err(runErr).Int("processed", prog.processed).Msg("Bulk operation run failed")
		errs = append(prog.saved, runErr.Error())
		finalErr = p.store.MarkFailed(wctx, id, errs)
	case len(prog.errors) > 0:
		finalErr = p.store.MarkFailed(wctx, id, errs)
	default:
		status = model.StatusCompleted
		finalErr = p.store.MarkCompleted(wctx, id, results)
	}

	if errors.Is(finalErr, database.ErrStatusConflict) {
		logger.Info().Msg("Bulk operation cancelled before it finished")
		p.cacheSnapshot(wctx, id)
		return runErr
	}
	if finalErr != nil {
		logger.Error().Err(finalErr).Msg("Failed to record bulk operation outcome")
		if runErr != nil {
			return errors.Join(runErr, finalErr)
		}
		return fmt.Errorf("finalize bulk operation: %w", finalErr)
	}

	final := p.cacheSnapshot(wctx, id)
	if final == nil {
		final = finished(op, prog, status, errs, results)
	}

	event := notify.EventCompleted
	if final.Status == model.StatusFailed {
		event = notify.EventFailed
	}
	p.emit(wctx, event, final)
	p.logFinished(logger, final)

	return runErr
}

// finished rebuilds the terminal record from the run itself when it cannot
// be reloaded from the store
func finished(op *model.BulkOperation, prog *progress, status model.OperationStatus, errs []string, results *model.OperationResult) *model.BulkOperation {
	out := op.Clone()
	now := time.Now().UTC()

	out.Status = status
	out.ProcessedItems = prog.processed
	out.SuccessfulItems = prog.successful
	out.FailedItems = prog.failed
	out.Errors = errs
	out.UpdatedAt = now
	out.CompletedAt = &now
	if status == model.StatusCompleted {
		out.Results = results
	}
	return out
}

// execute dispatches to the handler and converts panics into run errors
func (p *Processor) execute(ctx context.Context, op *model.BulkOperation, prog *progress) (results *model.OperationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()

	handler, ok := p.registry.Get(op.OperationType)
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s", op.OperationType)
	}

	switch h := handler.(type) {
	case BatchHandler:
		return p.applyBatch(ctx, h, op, prog)
	case ItemHandler:
		return p.applyItems(ctx, h, op, prog)
	}
	return nil, fmt.Errorf("handler %s cannot apply %s", handler.Name(), op.OperationType)
}

func (p *Processor) applyItems(ctx context.Context, h ItemHandler, op *model.BulkOperation, prog *progress) (*model.OperationResult, error) {
	count := h.Count(op)
	prog.items = make([]model.ItemOutcome, 0, count)

	for i := 0; i < count; i++ {
		if err := p.checkActive(ctx, op.ID); err != nil {
			return nil, err
		}

		outcome := h.Apply(ctx, op, i)
		item := model.ItemOutcome{Index: i, ID: outcome.ItemID(), Status: outcome.Status()}
		if Succeeded(outcome) {
			prog.successful++
		} else {
			prog.failed++
			item.Error = outcome.Message()
			prog.errors = append(prog.errors, fmt.Sprintf("%s failed at index %d: %s", op.OperationType.Action(), i, outcome.Message()))
		}
		prog.processed++
		prog.items = append(prog.items, item)

		if err := p.persist(ctx, op.ID, prog); err != nil {
			if errors.Is(err, errStopped) {
				log.Warn().
					Str("operationId", op.ID).
					Int("index", i).
					Str("outcome", string(item.Status)).
					Msg("Item applied after the operation was cancelled, not counted")
			}
			return nil, err
		}
	}

	return model.NewPerItemResult(prog.items), nil
}

func (p *Processor) applyBatch(ctx context.Context, h BatchHandler, op *model.BulkOperation, prog *progress) (*model.OperationResult, error) {
	if err := p.checkActive(ctx, op.ID); err != nil {
		return nil, err
	}

	agg := h.ApplyAll(ctx, op)

	prog.processed = op.TotalItems
	if agg.Status == model.OutcomeFailed {
		prog.failed = op.TotalItems
		prog.errors = append(prog.errors, fmt.Sprintf("%s failed: %s", op.OperationType.Action(), agg.Error))
	} else {
		prog.successful = op.TotalItems
	}

	if err := p.persist(ctx, op.ID, prog); err != nil {
		return nil, err
	}

	return model.NewAggregateResult(agg), nil
}

// checkActive stops the run when the context ended or the operation was
// cancelled since the last item
func (p *Processor) checkActive(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}

	current, err := p.store.GetOperation(ctx, id)
	if err != nil {
		return fmt.Errorf("reload bulk operation: %w", err)
	}
	if current.Status != model.StatusProcessing {
		return errStopped
	}
	return nil
}

func (p *Processor) persist(ctx context.Context, id string, prog *progress) error {
	err := p.store.UpdateProgress(ctx, id, prog.processed, prog.successful, prog.failed, prog.errors)
	if errors.Is(err, database.ErrStatusConflict) {
		return errStopped
	}
	if err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	prog.saved = prog.errors[:len(prog.errors):len(prog.errors)]
	return nil
}

// cacheSnapshot reloads the operation and caches it when terminal
func (p *Processor) cacheSnapshot(ctx context.Context, id string) *model.BulkOperation {
	op, err := p.store.GetOperation(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("operationId", id).Msg("Failed to reload bulk operation")
		return nil
	}
	if p.statusCache != nil {
		p.statusCache.Put(ctx, op)
	}
	return op
}

// emit hands the event to the emitter. Failures never reach the run.
func (p *Processor) emit(ctx context.Context, eventType notify.EventType, op *model.BulkOperation) {
	if p.emitter == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("event", string(eventType)).Interface("panic", r).Msg("Event emitter panicked")
		}
	}()

	if p.emitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.emitTimeout)
		defer cancel()
	}

	res, err := p.emitter.NotifyEvent(ctx, eventType, notify.NewEventData(op))
	if err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Str("operationId", op.ID).Msg("Failed to emit bulk operation event")
		return
	}

	log.Debug().
		Str("event", string(eventType)).
		Str("operationId", op.ID).
		Int("sent", res.NotificationsSent).
		Msg("Emitted bulk operation event")
}

func (p *Processor) logFinished(logger zerolog.Logger, op *model.BulkOperation) {
	logger.Info().
		Str("status", string(op.Status)).
		Int("processed", op.ProcessedItems).
		Int("successful", op.SuccessfulItems).
		Int("failed", op.FailedItems).
		Msg("Finished bulk operation")
}
