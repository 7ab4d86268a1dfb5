package cache

import (
	"context"
	"errors"
	"promptbank/internal/model"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
)

// StatusCache stores snapshots of finished bulk operations. Only terminal
// operations are cached since they no longer change without a retry.
type StatusCache struct {
	cache Cache
	ttl   time.Duration
}

func NewStatusCache(cache Cache, ttl time.Duration) *StatusCache {
	return &StatusCache{cache: cache, ttl: ttl}
}

func statusKey(operationID string) string {
	return "bulk-status:" + operationID
}

// Get returns the cached snapshot or ErrCacheMiss
func (s *StatusCache) Get(ctx context.Context, operationID string) (*model.BulkOperation, error) {
	data, err := s.cache.Get(ctx, statusKey(operationID))
	if err != nil {
		return nil, err
	}

	var op model.BulkOperation
	if err := bson.Unmarshal(data, &op); err != nil {
		log.Warn().Err(err).Str("operationId", operationID).Msg("Dropping undecodable status snapshot")
		_ = s.cache.Delete(ctx, statusKey(operationID))
		return nil, ErrCacheMiss
	}
	return &op, nil
}

// Put caches op when it is terminal. Failures are logged, not returned.
func (s *StatusCache) Put(ctx context.Context, op *model.BulkOperation) {
	if !op.Status.IsTerminal() {
		return
	}

	data, err := bson.Marshal(op)
	if err != nil {
		log.Warn().Err(err).Str("operationId", op.ID).Msg("Failed to encode status snapshot")
		return
	}
	if err := s.cache.Set(ctx, statusKey(op.ID), data, s.ttl); err != nil {
		log.Warn().Err(err).Str("operationId", op.ID).Msg("Failed to cache status snapshot")
	}
}

// Invalidate drops the snapshot for operationID
func (s *StatusCache) Invalidate(ctx context.Context, operationID string) {
	if err := s.cache.Delete(ctx, statusKey(operationID)); err != nil && !errors.Is(err, ErrCacheMiss) {
		log.Warn().Err(err).Str("operationId", operationID).Msg("Failed to invalidate status snapshot")
	}
}
