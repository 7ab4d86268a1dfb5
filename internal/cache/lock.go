package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrLockHeld is returned when another run owns the lock
var ErrLockHeld = errors.New("lock held by another run")

// Locker provides expiring, token-owned locks
type Locker interface {
	// Acquire takes key for ttl if nobody holds it
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release frees key if token still owns it
	Release(ctx context.Context, key, token string) error
}

// RunLock guards a single bulk operation run
type RunLock struct {
	locker Locker
	ttl    time.Duration
}

func NewRunLock(locker Locker, ttl time.Duration) *RunLock {
	return &RunLock{locker: locker, ttl: ttl}
}

func runLockKey(operationID string) string {
	return "bulk-run:" + operationID
}

// Lock takes the run lock for operationID. The returned func releases it.
func (l *RunLock) Lock(ctx context.Context, operationID string) (func(), error) {
	token := primitive.NewObjectID().Hex()
	key := runLockKey(operationID)

	ok, err := l.locker.Acquire(ctx, key, token, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func() {
		// the run context may already be cancelled
		if err := l.locker.Release(context.Background(), key, token); err != nil {
			log.Warn().Err(err).Str("operationId", operationID).Msg("Failed to release run lock")
		}
	}, nil
}
