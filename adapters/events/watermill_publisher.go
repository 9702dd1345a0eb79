package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/ethauth/ports"
)

// DefaultTopic is the topic authenticated events are published to
const DefaultTopic = "ethauth.authenticated"

// AuthenticatedEvent represents a successful challenge verification
type AuthenticatedEvent struct {
	Address         string    `json:"address"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher. An empty topic uses DefaultTopic.
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishAuthenticated publishes an authenticated event
func (p *WatermillPublisher) PublishAuthenticated(ctx context.Context, address string, at time.Time) error {
	event := AuthenticatedEvent{
		Address:         address,
		AuthenticatedAt: at.UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event. It is used when events are disabled.
type NopPublisher struct{}

// PublishAuthenticated implements ports.EventPublisher
func (NopPublisher) PublishAuthenticated(context.Context, string, time.Time) error {
	return nil
}
