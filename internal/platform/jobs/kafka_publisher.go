package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

const defaultKafkaWriteTimeout = 5 * time.Second

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka event transport.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	// ErrorLogger receives the writer's transport errors. Nil discards them.
	ErrorLogger kafka.Logger
}

// KafkaEventPublisher writes order and inventory events to one Kafka topic. Messages are keyed
// so events of an order (or a stock record) land on the same partition.
type KafkaEventPublisher struct {
	writer  kafkaWriter
	timeout time.Duration
	marshal func(any) ([]byte, error)
	clock   func() time.Time
}

var (
	_ services.OrderEventPublisher     = (*KafkaEventPublisher)(nil)
	_ services.InventoryEventPublisher = (*KafkaEventPublisher)(nil)
)

// NewKafkaEventPublisher builds a synchronous writer requiring acks from all in-sync replicas.
func NewKafkaEventPublisher(cfg KafkaConfig) (*KafkaEventPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka event publisher: at least one broker is required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("kafka event publisher: topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		ErrorLogger:  cfg.ErrorLogger,
	}
	return newKafkaEventPublisher(writer, cfg.WriteTimeout), nil
}

func newKafkaEventPublisher(writer kafkaWriter, timeout time.Duration) *KafkaEventPublisher {
	if timeout <= 0 {
		timeout = defaultKafkaWriteTimeout
	}
	return &KafkaEventPublisher{
		writer:  writer,
		timeout: timeout,
		marshal: json.Marshal,
		clock:   time.Now,
	}
}

// PublishOrderEvent writes event keyed by order id.
func (p *KafkaEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	return p.write(ctx, event.OrderID, event.Type, event.ID, event)
}

// PublishInventoryEvent writes event keyed by branch and variant.
func (p *KafkaEventPublisher) PublishInventoryEvent(ctx context.Context, event services.InventoryEvent) error {
	return p.write(ctx, event.BranchID+"/"+event.VariantID, event.Type, event.ID, event)
}

// Close flushes and closes the underlying writer.
func (p *KafkaEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *KafkaEventPublisher) write(ctx context.Context, key, eventType, eventID string, payload any) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka event publisher: not initialised")
	}
	value, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := []kafka.Header{{Key: "eventType", Value: []byte(eventType)}}
	if id := strings.TrimSpace(eventID); id != "" {
		headers = append(headers, kafka.Header{Key: "eventId", Value: []byte(id)})
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    p.clock(),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
