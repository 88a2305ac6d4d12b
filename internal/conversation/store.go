package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConversationNotFound is returned when no conversation matches.
var ErrConversationNotFound = errors.New("conversation not found")

type dbQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversation records. All pipeline-side mutations funnel
// through UpdateState; the narrower setters exist for the webhook ingest
// path and operator tooling.
type Store struct {
	pool dbQuerier
}

// NewStore initializes the store backed by pgxpool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q dbQuerier) *Store {
	if q == nil {
		panic("conversation: querier required")
	}
	return &Store{pool: q}
}

const conversationColumns = `id, org_id, lead_id, stage, mode, intent, sentiment, summary,
	last_message_text, last_message_at, last_user_message_at, last_bot_message_at,
	followups_last_24h, nudges_total, next_followup_at,
	selected_cta_id, cta_scheduled_at,
	needs_human_attention, attention_resolved_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var conv Conversation
	var stage, mode, intent, sentiment string
	if err := row.Scan(
		&conv.ID, &conv.OrgID, &conv.LeadID, &stage, &mode, &intent, &sentiment, &conv.Summary,
		&conv.LastMessageText, &conv.LastMessageAt, &conv.LastUserMessageAt, &conv.LastBotMessageAt,
		&conv.FollowupsLast24h, &conv.NudgesTotal, &conv.NextFollowupAt,
		&conv.SelectedCTAID, &conv.CTAScheduledAt,
		&conv.NeedsHumanAttention, &conv.AttentionResolvedAt, &conv.CreatedAt, &conv.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation: scan failed: %w", err)
	}
	conv.Stage = ParseStageWithFallback(stage, StageGreeting)
	conv.Mode = ParseModeWithFallback(mode, ModeBot)
	conv.Intent = ParseIntentWithFallback(intent, IntentLow)
	conv.Sentiment = ParseSentimentWithFallback(sentiment, SentimentNeutral)
	return &conv, nil
}

// Get fetches one conversation by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversation(s.pool.QueryRow(ctx, query, id))
}

// GetActiveByLead returns the lead's single active conversation, if any.
func (s *Store) GetActiveByLead(ctx context.Context, orgID, leadID uuid.UUID) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE org_id = $1 AND lead_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanConversation(s.pool.QueryRow(ctx, query, orgID, leadID))
}

// Create inserts a fresh conversation in the greeting stage.
func (s *Store) Create(ctx context.Context, orgID, leadID uuid.UUID) (*Conversation, error) {
	id := uuid.New()
	query := `
		INSERT INTO conversations (id, org_id, lead_id, stage, mode, intent, sentiment)
		VALUES ($1, $2, $3, 'greeting', 'bot', 'low', 'neutral')
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := s.pool.QueryRow(ctx, query, id, orgID, leadID).Scan(&createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("conversation: insert failed: %w", err)
	}
	return &Conversation{
		ID:        id,
		OrgID:     orgID,
		LeadID:    leadID,
		Stage:     StageGreeting,
		Mode:      ModeBot,
		Intent:    IntentLow,
		Sentiment: SentimentNeutral,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// UpdateState writes every applier-mutable field in one statement.
func (s *Store) UpdateState(ctx context.Context, conv *Conversation) error {
	query := `
		UPDATE conversations SET
			stage = $2, mode = $3, intent = $4, sentiment = $5,
			last_message_text = $6, last_message_at = $7, last_bot_message_at = $8,
			followups_last_24h = $9, nudges_total = $10, next_followup_at = $11,
			selected_cta_id = $12, cta_scheduled_at = $13,
			needs_human_attention = $14, attention_resolved_at = $15,
			updated_at = $16
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		conv.ID,
		string(conv.Stage), string(conv.Mode), string(conv.Intent), string(conv.Sentiment),
		conv.LastMessageText, conv.LastMessageAt, conv.LastBotMessageAt,
		conv.FollowupsLast24h, conv.NudgesTotal, conv.NextFollowupAt,
		conv.SelectedCTAID, conv.CTAScheduledAt,
		conv.NeedsHumanAttention, conv.AttentionResolvedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversation: update state failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// RecordInbound stamps the lead-message timestamps on the conversation.
// This is what re-opens the 24h messaging window.
func (s *Store) RecordInbound(ctx context.Context, id uuid.UUID, text string, at time.Time) error {
	query := `
		UPDATE conversations SET
			last_message_text = $2,
			last_message_at = $3,
			last_user_message_at = $3,
			updated_at = $3
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, text, at)
	if err != nil {
		return fmt.Errorf("conversation: record inbound failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// UpdateSummary persists the rolling summary produced by the memory step.
func (s *Store) UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error {
	query := `UPDATE conversations SET summary = $2, updated_at = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("conversation: update summary failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// SetMode flips the conversation between bot and human handling.
func (s *Store) SetMode(ctx context.Context, id uuid.UUID, mode Mode) error {
	query := `UPDATE conversations SET mode = $2, updated_at = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(mode), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("conversation: set mode failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ResetDailyNudgeCounters zeroes every conversation's 24h follow-up counter.
// Run once per day by the maintenance task.
func (s *Store) ResetDailyNudgeCounters(ctx context.Context) (int64, error) {
	query := `UPDATE conversations SET followups_last_24h = 0 WHERE followups_last_24h > 0`
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("conversation: reset nudge counters failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
