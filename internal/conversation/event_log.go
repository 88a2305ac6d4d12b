package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// DecisionEvent is a structured event at a decision point in a turn.
// All events share the same base fields for easy filtering/grep.
type DecisionEvent struct {
	Time           string         `json:"time"`
	Event          string         `json:"event"`
	ConversationID string         `json:"conversation_id"`
	OrgID          string         `json:"org_id"`
	LeadID         string         `json:"lead_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// EventLogger emits structured JSON events at each decision point in a
// conversation turn. Designed for fast grep/filter debugging:
//
//	grep '"event":"turn_completed"' /var/log/app.log
//	grep '"conversation_id":"9c1f..."' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
}

// NewEventLogger creates a decision-point event logger.
func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Log emits one structured event. Safe on a nil receiver.
func (e *EventLogger) Log(_ context.Context, event string, convID, orgID, leadID string, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := DecisionEvent{
		Time:           time.Now().UTC().Format(time.RFC3339Nano),
		Event:          event,
		ConversationID: convID,
		OrgID:          orgID,
		LeadID:         leadID,
		Data:           data,
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

// Convenience methods for common events:

func (e *EventLogger) MessageReceived(ctx context.Context, convID, orgID, leadID, message string) {
	msg := message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	e.Log(ctx, "message_received", convID, orgID, leadID, map[string]any{
		"message": msg,
	})
}

func (e *EventLogger) DuplicateSkipped(ctx context.Context, convID, orgID, providerMessageID string) {
	e.Log(ctx, "duplicate_skipped", convID, orgID, "", map[string]any{
		"provider_message_id": providerMessageID,
	})
}

func (e *EventLogger) TurnCompleted(ctx context.Context, convID, orgID string, stage Stage, action Action, confidence float64, emergency bool) {
	e.Log(ctx, "turn_completed", convID, orgID, "", map[string]any{
		"stage":      string(stage),
		"action":     string(action),
		"confidence": confidence,
		"emergency":  emergency,
	})
}

func (e *EventLogger) FollowupRun(ctx context.Context, convID, orgID, actionType string) {
	e.Log(ctx, "followup_run", convID, orgID, "", map[string]any{
		"action_type": actionType,
	})
}

func (e *EventLogger) ReplySent(ctx context.Context, convID, orgID string, bodyLen int) {
	e.Log(ctx, "reply_sent", convID, orgID, "", map[string]any{
		"body_len": bodyLen,
	})
}

func (e *EventLogger) ErrorOccurred(ctx context.Context, convID, orgID, step string, err error) {
	e.Log(ctx, "error", convID, orgID, "", map[string]any{
		"step":  step,
		"error": err.Error(),
	})
}
