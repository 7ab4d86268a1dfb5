package database

import (
	"context"
	"fmt"
	"promptbank/internal/config"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database interface {
	Health() error
	Close(ctx context.Context) error
	BulkOperationStore
	PromptStore
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	operationsCol *mongo.Collection
	promptsCol    *mongo.Collection
}

func New(config *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(config.MongoDB.URI)
	if config.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.MongoDB.Username,
			Password: config.MongoDB.Password,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	db := client.Database(config.MongoDB.DB)

	operationsCol := db.Collection("bulk_operations")
	operationIndexModels := []mongo.IndexModel{
		{
			// Index for status-based queries and the pending scan
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "operation_type", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "created_by", Value: 1}},
			Options: options.Index(),
		},
		{
			// Index for sorting by creation date
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
		{
			// Cleanup scans terminal operations by age
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index(),
		},
	}

	promptsCol := db.Collection("prompts")
	promptIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tags", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "created_by", Value: 1}},
			Options: options.Index(),
		},
	}

	if _, err = operationsCol.Indexes().CreateMany(ctx, operationIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "BulkOperations").Msg("Error creating indexes")
	}

	if _, err = promptsCol.Indexes().CreateMany(ctx, promptIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "Prompts").Msg("Error creating indexes")
	}

	log.Info().Str("db", config.MongoDB.DB).Msg("MongoDB connection established")

	return &mongoDB{
		client:        client,
		db:            db,
		operationsCol: operationsCol,
		promptsCol:    promptsCol,
	}, nil
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)

	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}

func (m *mongoDB) Close(ctx context.Context) error {
	log.Info().Msg("Closing MongoDB connection")
	return m.client.Disconnect(ctx)
}

// Open connects to MongoDB, or returns an in-memory store when no URI is
// configured
func Open(config *config.Config) (Database, error) {
	if config.MongoDB.URI == "" {
		log.Warn().Msg("No MongoDB URI configured, using in-memory store")
		return NewMemoryStore(), nil
	}
	return New(config)
}
