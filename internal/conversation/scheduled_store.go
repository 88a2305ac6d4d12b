package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txQuerier interface {
	dbQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ScheduledActionStore persists deferred pipeline re-entries. The store
// maintains the invariant that a conversation has at most one pending
// action at any time.
type ScheduledActionStore struct {
	pool txQuerier
}

// NewScheduledActionStore initializes the store backed by pgxpool.
func NewScheduledActionStore(pool *pgxpool.Pool) *ScheduledActionStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &ScheduledActionStore{pool: pool}
}

func newScheduledActionStoreWithQuerier(q txQuerier) *ScheduledActionStore {
	if q == nil {
		panic("conversation: querier required")
	}
	return &ScheduledActionStore{pool: q}
}

// Schedule cancels any pending action for the conversation and inserts the
// new one inside a single transaction, so a newer follow-up always
// supersedes an older one.
func (s *ScheduledActionStore) Schedule(ctx context.Context, conversationID, orgID uuid.UUID, at time.Time, actionType, reason string) (*ScheduledAction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation: begin schedule tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	cancel := `
		UPDATE scheduled_actions
		SET status = 'cancelled'
		WHERE conversation_id = $1 AND status = 'pending'
	`
	if _, err := tx.Exec(ctx, cancel, conversationID); err != nil {
		return nil, fmt.Errorf("conversation: cancel pending actions failed: %w", err)
	}

	action := &ScheduledAction{
		ID:             uuid.New(),
		ConversationID: conversationID,
		OrgID:          orgID,
		ScheduledAt:    at,
		Status:         ScheduledStatusPending,
		ActionType:     actionType,
		Context:        reason,
	}
	insert := `
		INSERT INTO scheduled_actions (id, conversation_id, org_id, scheduled_at, status, action_type, context)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, insert,
		action.ID, conversationID, orgID, at, actionType, reason,
	).Scan(&action.CreatedAt); err != nil {
		return nil, fmt.Errorf("conversation: insert scheduled action failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("conversation: commit schedule tx failed: %w", err)
	}
	return action, nil
}

// DuePending returns pending actions whose time has come, oldest first.
func (s *ScheduledActionStore) DuePending(ctx context.Context, now time.Time, limit int) ([]ScheduledAction, error) {
	query := `
		SELECT id, conversation_id, org_id, scheduled_at, status, action_type, context, created_at
		FROM scheduled_actions
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: query due actions failed: %w", err)
	}
	defer rows.Close()

	var actions []ScheduledAction
	for rows.Next() {
		var a ScheduledAction
		var status string
		if err := rows.Scan(&a.ID, &a.ConversationID, &a.OrgID, &a.ScheduledAt, &status, &a.ActionType, &a.Context, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan action failed: %w", err)
		}
		a.Status = ScheduledActionStatus(status)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate actions failed: %w", err)
	}
	return actions, nil
}

// MarkExecuted finalizes a processed action.
func (s *ScheduledActionStore) MarkExecuted(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, ScheduledStatusExecuted)
}

// MarkCancelled retires an action without running it.
func (s *ScheduledActionStore) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, ScheduledStatusCancelled)
}

func (s *ScheduledActionStore) setStatus(ctx context.Context, id uuid.UUID, status ScheduledActionStatus) error {
	query := `UPDATE scheduled_actions SET status = $2 WHERE id = $1 AND status = 'pending'`
	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("conversation: set action status failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation: action %s is not pending", id)
	}
	return nil
}
