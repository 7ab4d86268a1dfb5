package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher is the slice of the rabbitmq client used for events
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
}

type rabbitEmitter struct {
	publisher Publisher
	exchange  string
}

// NewRabbitEmitter publishes every event to exchange with the event type as
// routing key
func NewRabbitEmitter(publisher Publisher, exchange string) Emitter {
	return &rabbitEmitter{publisher: publisher, exchange: exchange}
}

func (e *rabbitEmitter) NotifyEvent(ctx context.Context, eventType EventType, data EventData) (NotificationResult, error) {
	body, err := json.Marshal(struct {
		Event EventType `json:"event"`
		Data  EventData `json:"data"`
	}{eventType, data})
	if err != nil {
		return NotificationResult{}, fmt.Errorf("encode event: %w", err)
	}

	headers := amqp.Table{
		"event":        string(eventType),
		"operation_id": data.OperationID,
	}
	if err := e.publisher.Publish(ctx, e.exchange, string(eventType), body, headers); err != nil {
		return NotificationResult{}, fmt.Errorf("publish %s: %w", eventType, err)
	}

	return NotificationResult{NotificationsSent: 1}, nil
}

type logEmitter struct{}

// NewLogEmitter records events in the log only
func NewLogEmitter() Emitter {
	return logEmitter{}
}

func (logEmitter) NotifyEvent(_ context.Context, eventType EventType, data EventData) (NotificationResult, error) {
	log.Info().
		Str("event", string(eventType)).
		Str("operationId", data.OperationID).
		Str("type", string(data.OperationType)).
		Int("processed", data.Summary.ProcessedItems).
		Int("failed", data.Summary.FailedItems).
		Msg("Bulk operation event")
	return NotificationResult{}, nil
}

// Event is one recorded emission
type Event struct {
	Type EventType
	Data EventData
}

// Recorder keeps every event in memory. It optionally fails each call with Err.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) NotifyEvent(_ context.Context, eventType EventType, data EventData) (NotificationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Event{Type: eventType, Data: data})
	if r.Err != nil {
		return NotificationResult{}, r.Err
	}
	return NotificationResult{NotificationsSent: 1}, nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
