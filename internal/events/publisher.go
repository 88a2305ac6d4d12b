package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// channelPrefix namespaces the pub/sub channels per organization.
const channelPrefix = "events:org:"

// Publisher fans domain events out over Redis pub/sub. Delivery is
// fire-and-forget; durable consumers read the audit table instead.
type Publisher struct {
	client *redis.Client
	logger *logging.Logger
}

// NewPublisher wires the publisher.
func NewPublisher(client *redis.Client, logger *logging.Logger) *Publisher {
	if client == nil {
		panic("events: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{client: client, logger: logger}
}

// Publish serializes the event and pushes it to the org's channel.
func (p *Publisher) Publish(ctx context.Context, orgID, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	envelope, err := json.Marshal(map[string]json.RawMessage{
		"type":    json.RawMessage(`"` + eventType + `"`),
		"payload": payload,
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	if err := p.client.Publish(ctx, Channel(orgID), envelope).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", eventType, err)
	}
	return nil
}

// Channel returns the pub/sub channel name for an organization.
func Channel(orgID string) string {
	return channelPrefix + orgID
}
