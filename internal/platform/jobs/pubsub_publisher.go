package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PubSubEventPublisher publishes commerce domain events to a Pub/Sub topic.
type PubSubEventPublisher struct {
	topic   eventTopic
	clock   func() time.Time
	marshal func(any) ([]byte, error)
}

type eventTopic interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic eventTopic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		clock:   time.Now,
		marshal: json.Marshal,
	}, nil
}

// Publish enqueues a domain event message on the configured topic. The event
// name rides along as a message attribute so subscribers can filter without
// decoding the payload.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event string, payload map[string]any) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("pubsub event publisher: event name is required")
	}

	envelope := map[string]any{
		"event":      event,
		"occurredAt": p.clock().UTC().Format(time.RFC3339Nano),
		"payload":    payload,
	}
	data, err := p.marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event, err)
	}

	attrs := map[string]string{"event": event}
	if id, ok := payload["orderID"].(string); ok && id != "" {
		attrs["orderId"] = id
	}
	if id, ok := payload["cartID"].(string); ok && id != "" {
		attrs["cartId"] = id
	}

	if _, err := p.topic.Publish(ctx, data, attrs); err != nil {
		return fmt.Errorf("publish event %s: %w", event, err)
	}
	return nil
}
