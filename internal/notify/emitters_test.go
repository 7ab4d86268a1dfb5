package notify

import (
	"context"
	"encoding/json"
	"errors"
	"promptbank/internal/model"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	exchange   string
	routingKey string
	body       []byte
	headers    amqp.Table
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	f.calls = append(f.calls, publishCall{exchange, routingKey, body, headers})
	return f.err
}

func TestRabbitEmitterPublishesByEventType(t *testing.T) {
	pub := &fakePublisher{}
	emitter := NewRabbitEmitter(pub, "promptbank.events")

	op := &model.BulkOperation{
		ID:              "op-1",
		OperationType:   model.OperationCreatePrompts,
		Status:          model.StatusCompleted,
		TotalItems:      3,
		ProcessedItems:  3,
		SuccessfulItems: 3,
	}

	res, err := emitter.NotifyEvent(context.Background(), EventCompleted, NewEventData(op))
	require.NoError(t, err)
	assert.Equal(t, 1, res.NotificationsSent)

	require.Len(t, pub.calls, 1)
	call := pub.calls[0]
	assert.Equal(t, "promptbank.events", call.exchange)
	assert.Equal(t, "bulk_operation.completed", call.routingKey)
	assert.Equal(t, "op-1", call.headers["operation_id"])

	var decoded struct {
		Event string    `json:"event"`
		Data  EventData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(call.body, &decoded))
	assert.Equal(t, "bulk_operation.completed", decoded.Event)
	assert.Equal(t, 3, decoded.Data.Summary.SuccessfulItems)
}

func TestRabbitEmitterWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	emitter := NewRabbitEmitter(pub, "x")

	_, err := emitter.NotifyEvent(context.Background(), EventFailed, EventData{OperationID: "op-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	_, _ = r.NotifyEvent(context.Background(), EventStarted, EventData{OperationID: "a"})
	_, _ = r.NotifyEvent(context.Background(), EventCompleted, EventData{OperationID: "a"})

	assert.Equal(t, []EventType{EventStarted, EventCompleted}, r.Types())
}
