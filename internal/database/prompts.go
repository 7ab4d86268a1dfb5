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
)

// PromptStore defines prompt persistence used by the bulk mutator
type PromptStore interface {
	// Insert a new prompt. An empty ID is assigned.
	InsertPrompt(ctx context.Context, prompt *model.Prompt) error

	// Get a prompt by ID
	GetPrompt(ctx context.Context, id string) (*model.Prompt, error)

	// Apply a partial change set to a prompt
	UpdatePrompt(ctx context.Context, id string, changes model.PromptChanges) error

	// Delete a prompt by ID
	DeletePrompt(ctx context.Context, id string) error

	// Add and remove tags across prompts, returning how many prompts matched
	TagPrompts(ctx context.Context, ids []string, add, remove []string) (int, error)
}

// InsertPrompt creates a new prompt in the database
func (m *mongoDB) InsertPrompt(ctx context.Context, prompt *model.Prompt) error {
	if prompt.ID == "" {
		prompt.ID = primitive.NewObjectID().Hex()
	}

	now := time.Now().UTC()
	prompt.CreatedAt = now
	prompt.UpdatedAt = now
	if prompt.Tags == nil {
		prompt.Tags = []string{}
	}

	_, err := m.promptsCol.InsertOne(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Str("promptId", prompt.ID).Msg("Failed to create prompt")
		return err
	}

	log.Debug().Str("promptId", prompt.ID).Str("name", prompt.Name).Msg("Created new prompt")
	return nil
}

// GetPrompt retrieves a prompt by its ID
func (m *mongoDB) GetPrompt(ctx context.Context, id string) (*model.Prompt, error) {
	var prompt model.Prompt
	err := m.promptsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&prompt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPromptNotFound
		}
		log.Error().Err(err).Str("promptId", id).Msg("Failed to get prompt")
		return nil, err
	}

	return &prompt, nil
}

// UpdatePrompt sets the non-nil fields of changes
func (m *mongoDB) UpdatePrompt(ctx context.Context, id string, changes model.PromptChanges) error {
	set := promptChangeSet(changes)
	set["updated_at"] = time.Now().UTC()

	result, err := m.promptsCol.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		log.Error().Err(err).Str("promptId", id).Msg("Failed to update prompt")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrPromptNotFound
	}

	log.Debug().Str("promptId", id).Int("fields", len(set)-1).Msg("Updated prompt")
	return nil
}

// DeletePrompt removes a prompt by its ID
func (m *mongoDB) DeletePrompt(ctx context.Context, id string) error {
	result, err := m.promptsCol.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("promptId", id).Msg("Failed to delete prompt")
		return err
	}

	if result.DeletedCount == 0 {
		return ErrPromptNotFound
	}

	log.Debug().Str("promptId", id).Msg("Deleted prompt")
	return nil
}

// TagPrompts adds then removes tags on every matching prompt. The returned
// count is the number of existing prompts among ids.
func (m *mongoDB) TagPrompts(ctx context.Context, ids []string, add, remove []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter := bson.M{"_id": bson.M{"$in": ids}}
	matched, err := m.promptsCol.CountDocuments(ctx, filter)
	if err != nil {
		log.Error().Err(err).Int("prompts", len(ids)).Msg("Failed to count tagged prompts")
		return 0, err
	}

	now := time.Now().UTC()

	// $addToSet and $pull on the same field cannot share one update document
	if len(add) > 0 {
		_, err := m.promptsCol.UpdateMany(ctx, filter, bson.M{
			"$addToSet": bson.M{"tags": bson.M{"$each": add}},
			"$set":      bson.M{"updated_at": now},
		})
		if err != nil {
			log.Error().Err(err).Int("prompts", len(ids)).Msg("Failed to add prompt tags")
			return 0, err
		}
	}

	if len(remove) > 0 {
		_, err := m.promptsCol.UpdateMany(ctx, filter, bson.M{
			"$pull": bson.M{"tags": bson.M{"$in": remove}},
			"$set":  bson.M{"updated_at": now},
		})
		if err != nil {
			log.Error().Err(err).Int("prompts", len(ids)).Msg("Failed to remove prompt tags")
			return 0, err
		}
	}

	log.Debug().Int("targeted", len(ids)).Int64("updated", matched).Msg("Tagged prompts")
	return int(matched), nil
}

func promptChangeSet(changes model.PromptChanges) bson.M {
	set := bson.M{}
	if changes.Name != nil {
		set["name"] = *changes.Name
	}
	if changes.Content != nil {
		set["content"] = *changes.Content
	}
	if changes.Description != nil {
		set["description"] = *changes.Description
	}
	if changes.Category != nil {
		set["category"] = *changes.Category
	}
	if changes.Tags != nil {
		set["tags"] = changes.Tags
	}
	if changes.Variables != nil {
		set["variables"] = changes.Variables
	}
	return set
}
