package orchestrator

import (
	"context"
	"errors"
	"promptbank/internal/processor"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull        = errors.New("scheduler queue is full")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// Scheduler accepts deferred bulk operation runs
type Scheduler interface {
	Submit(operationID string) error
}

// CooperativeScheduler runs submitted operations one at a time, in
// submission order, on a single goroutine
type CooperativeScheduler struct {
	runner processor.Runner

	queue  chan string
	mu     sync.Mutex
	queued map[string]struct{}
	active string

	stopped   bool
	shutdown  chan struct{}
	done      chan struct{}
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

var _ Scheduler = (*CooperativeScheduler)(nil)

// NewScheduler creates a scheduler holding at most size waiting runs
func NewScheduler(runner processor.Runner, size int) *CooperativeScheduler {
	if size <= 0 {
		size = 1
	}
	return &CooperativeScheduler{
		runner:   runner,
		queue:    make(chan string, size),
		queued:   make(map[string]struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Submit queues a run for operationID without blocking. Submitting an
// operation that is already waiting is a no-op.
func (s *CooperativeScheduler) Submit(operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if _, ok := s.queued[operationID]; ok {
		log.Debug().Str("operationId", operationID).Msg("Bulk operation already queued")
		return nil
	}

	select {
	case s.queue <- operationID:
		s.queued[operationID] = struct{}{}
		log.Debug().Str("operationId", operationID).Int("waiting", len(s.queue)).Msg("Queued bulk operation run")
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the run loop. Runs receive a context derived from ctx.
func (s *CooperativeScheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)

		log.Info().Int("capacity", cap(s.queue)).Msg("Starting bulk operation scheduler")

		for {
			select {
			case <-runCtx.Done():
				log.Info().Msg("Context cancelled, stopping scheduler")
				return
			case <-s.shutdown:
				log.Info().Msg("Shutdown signal received, stopping scheduler")
				return
			case id := <-s.queue:
				s.run(runCtx, id)
			}
		}
	}()
}

func (s *CooperativeScheduler) run(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.queued, id)
	s.active = id
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}()

	err := s.runner.Run(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, processor.ErrNotClaimed):
		log.Debug().Str("operationId", id).Msg("Skipped bulk operation run")
	default:
		log.Error().Err(err).Str("operationId", id).Msg("Bulk operation run failed")
	}
}

// Stop refuses new work and waits for the current run. If ctx ends first the
// current run's context is cancelled. Waiting runs stay pending in the store.
func (s *CooperativeScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancelRun
	s.mu.Unlock()

	close(s.shutdown)
	if cancel == nil {
		return nil
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		cancel()
		s.wg.Wait()
		return ctx.Err()
	}

	cancel()
	s.wg.Wait()
	log.Info().Int("abandoned", len(s.queue)).Msg("Bulk operation scheduler stopped")
	return nil
}

// Waiting returns the number of queued runs
func (s *CooperativeScheduler) Waiting() int {
	return len(s.queue)
}

// Active returns the operation currently running, if any
func (s *CooperativeScheduler) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
