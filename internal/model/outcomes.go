package model

// OutcomeStatus represents the outcome of a processed item
type OutcomeStatus string

const (
	OutcomeSuccess  OutcomeStatus = "success"
	OutcomeFailed   OutcomeStatus = "failed"
	OutcomeNotFound OutcomeStatus = "not_found"
)

// ResultKind tags which shape an OperationResult carries
type ResultKind string

const (
	ResultPerItem   ResultKind = "per_item"
	ResultAggregate ResultKind = "aggregate"
)

// ItemOutcome records what happened to a single item of an operation
type ItemOutcome struct {
	Index  int           `bson:"index" json:"index"`
	ID     string        `bson:"id,omitempty" json:"id,omitempty"`
	Status OutcomeStatus `bson:"status" json:"status"`
	Error  string        `bson:"error,omitempty" json:"error,omitempty"`
}

// AggregateOutcome records the single outcome of a batch-wide mutator call.
// Tag operations report this instead of per-item outcomes.
type AggregateOutcome struct {
	Status   OutcomeStatus `bson:"status" json:"status"`
	Targeted int           `bson:"targeted" json:"targeted"`
	Updated  int           `bson:"updated" json:"updated"`
	Error    string        `bson:"error,omitempty" json:"error,omitempty"`
}

// OperationResult is the payload attached to a finished operation.
// Exactly one of Items or Aggregate is meaningful, according to Kind.
type OperationResult struct {
	Kind      ResultKind        `bson:"kind" json:"kind"`
	Items     []ItemOutcome     `bson:"items,omitempty" json:"items,omitempty"`
	Aggregate *AggregateOutcome `bson:"aggregate,omitempty" json:"aggregate,omitempty"`
}

// NewPerItemResult wraps per-item outcomes
func NewPerItemResult(items []ItemOutcome) *OperationResult {
	if items == nil {
		items = []ItemOutcome{}
	}
	return &OperationResult{Kind: ResultPerItem, Items: items}
}

// NewAggregateResult wraps a single aggregate outcome
func NewAggregateResult(agg AggregateOutcome) *OperationResult {
	return &OperationResult{Kind: ResultAggregate, Aggregate: &agg}
}
