package model

import (
	"time"
)

// OperationStatus represents the current state of a bulk operation
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []OperationStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// IsValid reports whether s is a known status
func (s OperationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transitions occur from s
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TerminalStatuses are the states eligible for cleanup
var TerminalStatuses = []OperationStatus{StatusCompleted, StatusFailed, StatusCancelled}

// OperationType is the closed set of bulk actions
type OperationType string

const (
	OperationCreatePrompts OperationType = "create_prompts"
	OperationUpdatePrompts OperationType = "update_prompts"
	OperationDeletePrompts OperationType = "delete_prompts"
	OperationTagPrompts    OperationType = "tag_prompts"
)

// OperationTypes lists the supported operation types
var OperationTypes = []OperationType{
	OperationCreatePrompts,
	OperationUpdatePrompts,
	OperationDeletePrompts,
	OperationTagPrompts,
}

// IsValid reports whether t is a supported operation type
func (t OperationType) IsValid() bool {
	switch t {
	case OperationCreatePrompts, OperationUpdatePrompts, OperationDeletePrompts, OperationTagPrompts:
		return true
	}
	return false
}

// Action is the verb used in per-item error messages
func (t OperationType) Action() string {
	switch t {
	case OperationCreatePrompts:
		return "create"
	case OperationUpdatePrompts:
		return "update"
	case OperationDeletePrompts:
		return "delete"
	case OperationTagPrompts:
		return "tag"
	}
	return string(t)
}

// OperationMetadata holds the item list for an operation. Only the field
// matching the operation type is populated.
type OperationMetadata struct {
	Prompts   []PromptInput          `bson:"prompts,omitempty" json:"prompts,omitempty"`
	Updates   []PromptUpdate         `bson:"updates,omitempty" json:"updates,omitempty"`
	PromptIDs []string               `bson:"prompt_ids,omitempty" json:"prompt_ids,omitempty"`
	Tags      *TagSpec               `bson:"tags,omitempty" json:"tags,omitempty"`
	Extra     map[string]interface{} `bson:"extra,omitempty" json:"extra,omitempty"`
}

// ItemCount returns the number of items the operation will process
func (m OperationMetadata) ItemCount(t OperationType) int {
	switch t {
	case OperationCreatePrompts:
		return len(m.Prompts)
	case OperationUpdatePrompts:
		return len(m.Updates)
	case OperationDeletePrompts:
		return len(m.PromptIDs)
	case OperationTagPrompts:
		if m.Tags == nil {
			return 0
		}
		return len(m.Tags.PromptIDs)
	}
	return 0
}

// BulkOperation is a tracked background job applying one action to many prompts
type BulkOperation struct {
	ID              string            `bson:"_id" json:"id"`
	OperationType   OperationType     `bson:"operation_type" json:"operation_type"`
	Status          OperationStatus   `bson:"status" json:"status"`
	TotalItems      int               `bson:"total_items" json:"total_items"`
	ProcessedItems  int               `bson:"processed_items" json:"processed_items"`
	SuccessfulItems int               `bson:"successful_items" json:"successful_items"`
	FailedItems     int               `bson:"failed_items" json:"failed_items"`
	Errors          []string          `bson:"errors" json:"errors"`
	Metadata        OperationMetadata `bson:"metadata" json:"metadata"`
	Results         *OperationResult  `bson:"results,omitempty" json:"results,omitempty"`
	CreatedBy       string            `bson:"created_by" json:"created_by"`
	RunCount        int               `bson:"run_count" json:"run_count"`
	CreatedAt       time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `bson:"updated_at" json:"updated_at"`
	StartedAt       *time.Time        `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt     *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// HasErrors reports whether any failure has been recorded
func (op *BulkOperation) HasErrors() bool {
	return len(op.Errors) > 0
}

// Clone returns a deep enough copy for stores that hand out snapshots
func (op *BulkOperation) Clone() *BulkOperation {
	cp := *op
	cp.Errors = append([]string(nil), op.Errors...)
	if op.Results != nil {
		res := *op.Results
		res.Items = append([]ItemOutcome(nil), op.Results.Items...)
		if op.Results.Aggregate != nil {
			agg := *op.Results.Aggregate
			res.Aggregate = &agg
		}
		cp.Results = &res
	}
	if op.StartedAt != nil {
		t := *op.StartedAt
		cp.StartedAt = &t
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ListFilter narrows operation listings. Zero values match everything.
type ListFilter struct {
	Status        OperationStatus
	OperationType OperationType
	CreatedBy     string
}
