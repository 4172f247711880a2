package jobs

import (
	"context"
	"errors"

	"cloud.google.com/go/pubsub"
)

// Topic adapts a *pubsub.Topic to the publisher's topic interface.
type Topic struct {
	topic *pubsub.Topic
}

// NewTopic wraps the given Pub/Sub topic.
func NewTopic(topic *pubsub.Topic) (*Topic, error) {
	if topic == nil {
		return nil, errors.New("pubsub topic: topic is required")
	}
	return &Topic{topic: topic}, nil
}

// Publish sends a single message and blocks until the server acknowledges it.
func (t *Topic) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	result := t.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	return result.Get(ctx)
}

// Stop flushes outstanding messages and releases topic resources.
func (t *Topic) Stop() {
	if t != nil && t.topic != nil {
		t.topic.Stop()
	}
}
