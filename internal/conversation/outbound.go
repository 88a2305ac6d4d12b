package conversation

import (
	"context"

	"github.com/google/uuid"
)

// ReplyMessenger delivers drafted replies back to the lead over WhatsApp.
type ReplyMessenger interface {
	// SendReply returns the provider message id of the delivered message.
	SendReply(ctx context.Context, reply OutboundReply) (string, error)
}

// OutboundReply carries the data required to push a message to the lead.
type OutboundReply struct {
	OrgID          uuid.UUID
	ConversationID uuid.UUID
	PhoneNumberID  string
	AccessToken    string
	To             string
	Body           string
}
