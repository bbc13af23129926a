// Package jobs publishes order bookkeeping events for asynchronous
// consumers such as fulfilment dashboards.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// OrderRecordedMessage is the payload published after an order leaves
// the engine through either checkout channel.
type OrderRecordedMessage struct {
	OrderID   string  `json:"order_id"`
	BackendID string  `json:"backend_id,omitempty"`
	Channel   string  `json:"channel"`
	TaxID     string  `json:"tax_id"`
	Subtotal  float64 `json:"subtotal"`
	Shipping  float64 `json:"shipping"`
	Total     float64 `json:"total"`
	Service   string  `json:"shipping_service,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// PubSubOrderPublisher publishes order events to a Pub/Sub topic.
type PubSubOrderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderPublisher constructs a Pub/Sub backed order publisher.
func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderRecorded enqueues the order event on the configured topic.
func (p *PubSubOrderPublisher) PublishOrderRecorded(ctx context.Context, message OrderRecordedMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "backendId", message.BackendID)
	setAttr(attrs, "channel", message.Channel)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
