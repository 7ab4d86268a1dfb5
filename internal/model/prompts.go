package model

import "time"

// Prompt is the stored entity bulk operations act on
type Prompt struct {
	ID          string                 `bson:"_id" json:"id"`
	Name        string                 `bson:"name" json:"name"`
	Content     string                 `bson:"content" json:"content"`
	Description string                 `bson:"description,omitempty" json:"description,omitempty"`
	Category    string                 `bson:"category,omitempty" json:"category,omitempty"`
	Tags        []string               `bson:"tags" json:"tags"`
	Variables   map[string]interface{} `bson:"variables,omitempty" json:"variables,omitempty"`
	CreatedBy   string                 `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `bson:"updated_at" json:"updated_at"`
}

// PromptInput is the payload for creating one prompt
type PromptInput struct {
	Name        string                 `bson:"name" json:"name" validate:"required,max=200"`
	Content     string                 `bson:"content" json:"content" validate:"required"`
	Description string                 `bson:"description,omitempty" json:"description,omitempty" validate:"max=2000"`
	Category    string                 `bson:"category,omitempty" json:"category,omitempty" validate:"max=100"`
	Tags        []string               `bson:"tags,omitempty" json:"tags,omitempty" validate:"max=50,dive,required,max=64,prompt_tag"`
	Variables   map[string]interface{} `bson:"variables,omitempty" json:"variables,omitempty"`
	CreatedBy   string                 `bson:"created_by,omitempty" json:"created_by,omitempty"`
}

// PromptChanges is a partial change set. Nil fields are left untouched.
type PromptChanges struct {
	Name        *string                `bson:"name,omitempty" json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Content     *string                `bson:"content,omitempty" json:"content,omitempty" validate:"omitempty,min=1"`
	Description *string                `bson:"description,omitempty" json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    *string                `bson:"category,omitempty" json:"category,omitempty" validate:"omitempty,max=100"`
	Tags        []string               `bson:"tags,omitempty" json:"tags,omitempty" validate:"omitempty,max=50,dive,required,max=64,prompt_tag"`
	Variables   map[string]interface{} `bson:"variables,omitempty" json:"variables,omitempty"`
}

// IsEmpty reports whether the change set would modify nothing
func (c PromptChanges) IsEmpty() bool {
	return c.Name == nil && c.Content == nil && c.Description == nil &&
		c.Category == nil && c.Tags == nil && c.Variables == nil
}

// PromptUpdate targets one prompt with a change set
type PromptUpdate struct {
	ID      string        `bson:"id" json:"id"`
	Changes PromptChanges `bson:"changes" json:"changes"`
}

// TagSpec adds and removes tags across a set of prompts
type TagSpec struct {
	PromptIDs []string `bson:"prompt_ids" json:"prompt_ids"`
	Add       []string `bson:"add,omitempty" json:"add,omitempty" validate:"dive,required,max=64,prompt_tag"`
	Remove    []string `bson:"remove,omitempty" json:"remove,omitempty" validate:"dive,required,max=64,prompt_tag"`
}
