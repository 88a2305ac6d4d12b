package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// TypeConversationUpdated names the event emitted for every turn.
const TypeConversationUpdated = "conversation.updated.v1"

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type turnPublisher interface {
	Publish(ctx context.Context, orgID, eventType string, event any) error
}

// TurnRecorder appends an audit row for every applied conversation turn
// and mirrors it to pub/sub. The row is the durable record; the publish
// is best effort.
type TurnRecorder struct {
	db        execer
	publisher turnPublisher
	logger    *logging.Logger
}

// NewTurnRecorder wires the recorder. The publisher may be nil when
// live fan-out is disabled.
func NewTurnRecorder(pool *pgxpool.Pool, publisher *Publisher, logger *logging.Logger) *TurnRecorder {
	if pool == nil {
		panic("events: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &TurnRecorder{db: pool, logger: logger}
	if publisher != nil {
		r.publisher = publisher
	}
	return r
}

func newTurnRecorderWithExec(db execer, publisher turnPublisher, logger *logging.Logger) *TurnRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &TurnRecorder{db: db, publisher: publisher, logger: logger}
}

// RecordTurn persists the audit row and publishes the update event.
func (r *TurnRecorder) RecordTurn(ctx context.Context, event conversation.TurnEvent) error {
	eventID := uuid.New()
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_events (
			id, org_id, conversation_id, stage, action, confidence,
			message_sent, escalated, emergency,
			latency_ms, input_tokens, output_tokens, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		eventID, event.OrgID, event.ConversationID,
		string(event.Stage), string(event.Action), event.Confidence,
		event.MessageSent, event.Escalated, event.Emergency,
		event.Latency.Milliseconds(), event.InputTokens, event.OutputTokens, at,
	)
	if err != nil {
		return fmt.Errorf("events: insert turn event: %w", err)
	}

	if r.publisher != nil {
		payload := ConversationUpdatedV1{
			EventID:        eventID.String(),
			OrgID:          event.OrgID.String(),
			ConversationID: event.ConversationID.String(),
			Stage:          string(event.Stage),
			Action:         string(event.Action),
			Confidence:     event.Confidence,
			MessageSent:    event.MessageSent,
			Escalated:      event.Escalated,
			OccurredAt:     at,
		}
		if err := r.publisher.Publish(ctx, event.OrgID.String(), TypeConversationUpdated, payload); err != nil {
			r.logger.Warn("turn event publish failed", "error", err, "conversation_id", event.ConversationID)
		}
	}
	return nil
}
