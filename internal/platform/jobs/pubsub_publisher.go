package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

// PubSubEventPublisher publishes order and inventory events to a Pub/Sub topic. Consumers
// route on the eventType attribute.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var (
	_ services.OrderEventPublisher     = (*PubSubEventPublisher)(nil)
	_ services.InventoryEventPublisher = (*PubSubEventPublisher)(nil)
)

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	// Orders of one buyer keep their relative order when the subscription enables ordering.
	topic.EnableMessageOrdering = true
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent publishes an order lifecycle event keyed by order id.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "status", event.CurrentStatus)
	_, err := p.publish(ctx, event, event.OrderID, attrs)
	return err
}

// PublishInventoryEvent publishes a stock notification keyed by branch and variant.
func (p *PubSubEventPublisher) PublishInventoryEvent(ctx context.Context, event services.InventoryEvent) error {
	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "branchId", event.BranchID)
	setAttr(attrs, "variantId", event.VariantID)
	_, err := p.publish(ctx, event, event.BranchID+"/"+event.VariantID, attrs)
	return err
}

func (p *PubSubEventPublisher) publish(ctx context.Context, payload any, orderingKey string, attrs map[string]string) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: strings.TrimSpace(orderingKey),
	})

	id, err := result.Get(ctx)
	if err != nil {
		// A failed publish pauses the ordering key until it is resumed.
		p.topic.ResumePublish(strings.TrimSpace(orderingKey))
		return "", fmt.Errorf("publish %s: %w", attrs["eventType"], err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
