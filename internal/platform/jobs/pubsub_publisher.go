package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/kleankuts/api/internal/services"
)

// PubSubStockPublisher publishes stock movement events to a Pub/Sub topic.
type PubSubStockPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubStockPublisher constructs a Pub/Sub backed stock event publisher.
func NewPubSubStockPublisher(topic *pubsub.Topic) (*PubSubStockPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub stock publisher: topic is required")
	}
	return &PubSubStockPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishStockMovement enqueues a stock movement message on the configured topic.
func (p *PubSubStockPublisher) PublishStockMovement(ctx context.Context, event services.StockMovementEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub stock publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stock movement: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "transactionId", event.TransactionID)
	setAttr(attrs, "productId", event.ProductID)
	setAttr(attrs, "size", event.Size)
	setAttr(attrs, "color", event.Color)
	attrs["delta"] = strconv.Itoa(event.Delta)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish stock movement: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
