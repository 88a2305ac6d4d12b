package conversation

import (
	"context"
	"encoding/json"
	"fmt"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// EnqueueInbound publishes one inbound WhatsApp event for the workers.
// The webhook receiver calls this; workers never do.
func EnqueueInbound(ctx context.Context, q queueClient, msg InboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation: encode inbound message: %w", err)
	}
	return q.Send(ctx, string(body))
}

func decodeInbound(body string) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("conversation: decode inbound message: %w", err)
	}
	if msg.ProviderMessageID == "" || msg.PhoneNumberID == "" || msg.SenderPhone == "" {
		return InboundMessage{}, fmt.Errorf("conversation: inbound message missing required fields")
	}
	return msg, nil
}
