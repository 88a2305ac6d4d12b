package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageStore persists per-conversation messages. Inbound delivery is
// at-least-once, so Append dedupes on the provider message id.
type MessageStore struct {
	pool dbQuerier
}

// NewMessageStore initializes the store backed by pgxpool.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &MessageStore{pool: pool}
}

func newMessageStoreWithQuerier(q dbQuerier) *MessageStore {
	if q == nil {
		panic("conversation: querier required")
	}
	return &MessageStore{pool: q}
}

// Append stores one message. It returns false without error when the
// provider message id was already stored, which is how duplicate queue
// deliveries are detected.
func (s *MessageStore) Append(ctx context.Context, msg *Message) (bool, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, body, provider_message_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (provider_message_id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Body, msg.ProviderMessageID, msg.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("conversation: append message failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Recent returns the newest limit messages in chronological order.
func (s *MessageStore) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, body, COALESCE(provider_message_id, ''), created_at
		FROM (
			SELECT id, conversation_id, role, body, provider_message_id, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) newest
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: query messages failed: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Body, &msg.ProviderMessageID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message failed: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages failed: %w", err)
	}
	return messages, nil
}
