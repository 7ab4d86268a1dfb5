package database

import (
	"context"
	"errors"
	"promptbank/internal/model"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BulkOperationStore defines bulk operation persistence
type BulkOperationStore interface {
	// Save a new operation. An empty ID is assigned.
	SaveOperation(ctx context.Context, op *model.BulkOperation) error

	// Get an operation by ID
	GetOperation(ctx context.Context, id string) (*model.BulkOperation, error)

	// Atomically move a pending operation to processing and return it.
	// Returns ErrStatusConflict when the operation is not pending.
	ClaimPending(ctx context.Context, id string) (*model.BulkOperation, error)

	// Persist counters and errors of a processing operation
	UpdateProgress(ctx context.Context, id string, processed, successful, failed int, errs []string) error

	// Finish a processing operation successfully
	MarkCompleted(ctx context.Context, id string, results *model.OperationResult) error

	// Finish a processing operation with failures
	MarkFailed(ctx context.Context, id string, errs []string) error

	// Compare-and-swap the status from any of from to to
	UpdateStatus(ctx context.Context, id string, from []model.OperationStatus, to model.OperationStatus) (*model.BulkOperation, error)

	// Reset a failed operation to pending with cleared counters
	ResetForRetry(ctx context.Context, id string) (*model.BulkOperation, error)

	// List operations newest first
	ListOperations(ctx context.Context, filter model.ListFilter, limit, offset int) ([]*model.BulkOperation, error)

	// Pending operations oldest first
	GetPending(ctx context.Context, limit int) ([]*model.BulkOperation, error)

	// Terminal operations last touched before cutoff
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.BulkOperation, error)

	// Delete terminal operations by ID
	DeleteOperations(ctx context.Context, ids []string) (int64, error)

	// Count operations by status
	CountByStatus(ctx context.Context, status model.OperationStatus) (int64, error)
}

// SaveOperation creates a new bulk operation in the database
func (m *mongoDB) SaveOperation(ctx context.Context, op *model.BulkOperation) error {
	if op.ID == "" {
		op.ID = primitive.NewObjectID().Hex()
	}

	now := time.Now().UTC()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now

	if op.Errors == nil {
		op.Errors = []string{}
	}

	_, err := m.operationsCol.InsertOne(ctx, op)
	if err != nil {
		log.Error().Err(err).Str("operationId", op.ID).Msg("Failed to create bulk operation")
		return err
	}

	log.Debug().Str("operationId", op.ID).Str("type", string(op.OperationType)).Msg("Created bulk operation")
	return nil
}

// GetOperation retrieves a bulk operation by its ID
func (m *mongoDB) GetOperation(ctx context.Context, id string) (*model.BulkOperation, error) {
	var op model.BulkOperation
	err := m.operationsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&op)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOperationNotFound
		}
		log.Error().Err(err).Str("operationId", id).Msg("Failed to get bulk operation")
		return nil, err
	}

	return &op, nil
}

// ClaimPending moves a pending operation to processing
func (m *mongoDB) ClaimPending(ctx context.Context, id string) (*model.BulkOperation, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":     model.StatusProcessing,
			"started_at": now,
			"updated_at": now,
		},
		"$inc": bson.M{"run_count": 1},
	}

	op, err := m.findAndUpdate(ctx, bson.M{"_id": id, "status": model.StatusPending}, update)
	if err != nil {
		return nil, m.conflictOrErr(ctx, id, err)
	}

	log.Debug().Str("operationId", id).Int("run", op.RunCount).Msg("Claimed bulk operation")
	return op, nil
}

// UpdateProgress updates the counters of an operation that is still processing
func (m *mongoDB) UpdateProgress(ctx context.Context, id string, processed, successful, failed int, errs []string) error {
	if errs == nil {
		errs = []string{}
	}

	update := bson.M{
		"$set": bson.M{
			"processed_items":  processed,
			"successful_items": successful,
			"failed_items":     failed,
			"errors":           errs,
			"updated_at":       time.Now().UTC(),
		},
	}

	err := m.updateGuarded(ctx, id, model.StatusProcessing, update)
	if err != nil {
		log.Error().Err(err).Str("operationId", id).Int("processed", processed).Msg("Failed to update bulk operation progress")
		return err
	}

	log.Debug().Str("operationId", id).Int("processed", processed).Msg("Updated bulk operation progress")
	return nil
}

// MarkCompleted sets the completed status and attaches results
func (m *mongoDB) MarkCompleted(ctx context.Context, id string, results *model.OperationResult) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":       model.StatusCompleted,
			"results":      results,
			"completed_at": now,
			"updated_at":   now,
		},
	}

	if err := m.updateGuarded(ctx, id, model.StatusProcessing, update); err != nil {
		log.Error().Err(err).Str("operationId", id).Msg("Failed to mark bulk operation completed")
		return err
	}

	log.Debug().Str("operationId", id).Msg("Marked bulk operation completed")
	return nil
}

// MarkFailed sets the failed status with the final error list
func (m *mongoDB) MarkFailed(ctx context.Context, id string, errs []string) error {
	if errs == nil {
		errs = []string{}
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":       model.StatusFailed,
			"errors":       errs,
			"completed_at": now,
			"updated_at":   now,
		},
	}

	if err := m.updateGuarded(ctx, id, model.StatusProcessing, update); err != nil {
		log.Error().Err(err).Str("operationId", id).Msg("Failed to mark bulk operation failed")
		return err
	}

	log.Debug().Str("operationId", id).Int("errors", len(errs)).Msg("Marked bulk operation failed")
	return nil
}

// UpdateStatus swaps the status when the current one is in from
func (m *mongoDB) UpdateStatus(ctx context.Context, id string, from []model.OperationStatus, to model.OperationStatus) (*model.BulkOperation, error) {
	now := time.Now().UTC()
	set := bson.M{
		"status":     to,
		"updated_at": now,
	}
	update := bson.M{"$set": set}
	switch to {
	case model.StatusCompleted, model.StatusFailed:
		set["completed_at"] = now
	default:
		update["$unset"] = bson.M{"completed_at": ""}
	}

	op, err := m.findAndUpdate(ctx, bson.M{"_id": id, "status": bson.M{"$in": from}}, update)
	if err != nil {
		return nil, m.conflictOrErr(ctx, id, err)
	}

	log.Debug().Str("operationId", id).Str("status", string(to)).Msg("Updated bulk operation status")
	return op, nil
}

// ResetForRetry clears counters, errors and results of a failed operation
func (m *mongoDB) ResetForRetry(ctx context.Context, id string) (*model.BulkOperation, error) {
	update := bson.M{
		"$set": bson.M{
			"status":           model.StatusPending,
			"processed_items":  0,
			"successful_items": 0,
			"failed_items":     0,
			"errors":           []string{},
			"updated_at":       time.Now().UTC(),
		},
		"$unset": bson.M{
			"results":      "",
			"started_at":   "",
			"completed_at": "",
		},
	}

	op, err := m.findAndUpdate(ctx, bson.M{"_id": id, "status": model.StatusFailed}, update)
	if err != nil {
		return nil, m.conflictOrErr(ctx, id, err)
	}

	log.Debug().Str("operationId", id).Msg("Reset bulk operation for retry")
	return op, nil
}

// ListOperations retrieves operations matching the filter
func (m *mongoDB) ListOperations(ctx context.Context, filter model.ListFilter, limit, offset int) ([]*model.BulkOperation, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.OperationType != "" {
		query["operation_type"] = filter.OperationType
	}
	if filter.CreatedBy != "" {
		query["created_by"] = filter.CreatedBy
	}

	opts := options.Find().
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	return m.findOperations(ctx, query, opts)
}

// GetPending retrieves pending operations in creation order
func (m *mongoDB) GetPending(ctx context.Context, limit int) ([]*model.BulkOperation, error) {
	opts := options.Find().SetSort(bson.M{"created_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	return m.findOperations(ctx, bson.M{"status": model.StatusPending}, opts)
}

// ListTerminalBefore retrieves finished operations older than cutoff
func (m *mongoDB) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.BulkOperation, error) {
	query := bson.M{
		"status":     bson.M{"$in": model.TerminalStatuses},
		"updated_at": bson.M{"$lt": cutoff},
	}

	opts := options.Find().SetSort(bson.M{"updated_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	return m.findOperations(ctx, query, opts)
}

// DeleteOperations removes terminal operations by ID
func (m *mongoDB) DeleteOperations(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := m.operationsCol.DeleteMany(ctx, bson.M{
		"_id":    bson.M{"$in": ids},
		"status": bson.M{"$in": model.TerminalStatuses},
	})
	if err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("Failed to delete bulk operations")
		return 0, err
	}

	log.Debug().Int64("deleted", result.DeletedCount).Msg("Deleted bulk operations")
	return result.DeletedCount, nil
}

// CountByStatus counts operations with a specific status
func (m *mongoDB) CountByStatus(ctx context.Context, status model.OperationStatus) (int64, error) {
	count, err := m.operationsCol.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to count bulk operations by status")
		return 0, err
	}

	return count, nil
}

func (m *mongoDB) findOperations(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*model.BulkOperation, error) {
	cursor, err := m.operationsCol.Find(ctx, query, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list bulk operations")
		return nil, err
	}
	defer cursor.Close(ctx)

	ops := []*model.BulkOperation{}
	if err := cursor.All(ctx, &ops); err != nil {
		log.Error().Err(err).Msg("Failed to decode bulk operations")
		return nil, err
	}

	return ops, nil
}

func (m *mongoDB) findAndUpdate(ctx context.Context, filter bson.M, update bson.M) (*model.BulkOperation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var op model.BulkOperation
	if err := m.operationsCol.FindOneAndUpdate(ctx, filter, update, opts).Decode(&op); err != nil {
		return nil, err
	}
	return &op, nil
}

// updateGuarded applies update only while the operation is in status
func (m *mongoDB) updateGuarded(ctx context.Context, id string, status model.OperationStatus, update bson.M) error {
	result, err := m.operationsCol.UpdateOne(ctx, bson.M{"_id": id, "status": status}, update)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return m.conflictOrErr(ctx, id, mongo.ErrNoDocuments)
	}
	return nil
}

// conflictOrErr tells a missing operation apart from a failed status guard
func (m *mongoDB) conflictOrErr(ctx context.Context, id string, err error) error {
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	count, countErr := m.operationsCol.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return countErr
	}
	if count == 0 {
		return ErrOperationNotFound
	}
	return ErrStatusConflict
}
