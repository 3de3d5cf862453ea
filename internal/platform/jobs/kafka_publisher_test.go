package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

type fakeKafkaWriter struct {
	messages []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaEventPublisherKeysOrderEvents(t *testing.T) {
	writer := &fakeKafkaWriter{}
	publisher := newKafkaEventPublisher(writer, 0)
	publisher.clock = func() time.Time { return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC) }

	err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{
		ID:            "evt-1",
		Type:          "order.created",
		OrderID:       "ord-1",
		CurrentStatus: "processing",
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "ord-1", string(msg.Key))
	assert.True(t, writer.deadline, "writes must be bounded by a timeout")
	assert.Equal(t, []kafka.Header{
		{Key: "eventType", Value: []byte("order.created")},
		{Key: "eventId", Value: []byte("evt-1")},
	}, msg.Headers)

	var payload services.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "processing", payload.CurrentStatus)
}

func TestKafkaEventPublisherKeysInventoryEvents(t *testing.T) {
	writer := &fakeKafkaWriter{}
	publisher := newKafkaEventPublisher(writer, time.Second)

	require.NoError(t, publisher.PublishInventoryEvent(context.Background(), services.InventoryEvent{
		Type:      "inventory.low_stock",
		BranchID:  "hcm-1",
		VariantID: "milk-1l",
	}))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "hcm-1/milk-1l", string(writer.messages[0].Key))
	assert.Len(t, writer.messages[0].Headers, 1)
}

func TestKafkaEventPublisherWrapsWriteErrors(t *testing.T) {
	cause := errors.New("leader not available")
	publisher := newKafkaEventPublisher(&fakeKafkaWriter{err: cause}, time.Second)

	err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.created", OrderID: "ord-1"})
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "order.created")
}

func TestKafkaEventPublisherClose(t *testing.T) {
	writer := &fakeKafkaWriter{}
	require.NoError(t, newKafkaEventPublisher(writer, 0).Close())
	assert.True(t, writer.closed)
}

func TestNewKafkaEventPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaEventPublisher(KafkaConfig{Brokers: []string{" "}, Topic: "orders"})
	assert.Error(t, err)
	_, err = NewKafkaEventPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	publisher, err := NewKafkaEventPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "orders"})
	require.NoError(t, err)
	assert.Equal(t, defaultKafkaWriteTimeout, publisher.timeout)
}
