package events

import "time"

// ConversationUpdatedV1 is emitted after every applied pipeline turn so
// dashboards can refresh without polling.
type ConversationUpdatedV1 struct {
	EventID        string    `json:"event_id"`
	OrgID          string    `json:"org_id"`
	ConversationID string    `json:"conversation_id"`
	Stage          string    `json:"stage"`
	Action         string    `json:"action"`
	Confidence     float64   `json:"confidence"`
	MessageSent    bool      `json:"message_sent"`
	Escalated      bool      `json:"escalated"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// HumanAttentionRequiredV1 is emitted when the pipeline flags a
// conversation for a human operator.
type HumanAttentionRequiredV1 struct {
	EventID        string    `json:"event_id"`
	OrgID          string    `json:"org_id"`
	ConversationID string    `json:"conversation_id"`
	LeadID         string    `json:"lead_id"`
	LeadPhone      string    `json:"lead_phone,omitempty"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// CTAInitiatedV1 is emitted when a lead is funneled into a call to action.
type CTAInitiatedV1 struct {
	EventID        string    `json:"event_id"`
	OrgID          string    `json:"org_id"`
	ConversationID string    `json:"conversation_id"`
	LeadID         string    `json:"lead_id"`
	CTAID          string    `json:"cta_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
