package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// lockTTL caps how long a crashed worker can keep a conversation frozen.
// It must comfortably exceed one full pipeline turn.
const lockTTL = 2 * time.Minute

// releaseScript deletes the lock only if this worker still owns it, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ConversationLocker serializes pipeline runs per conversation. The queue's
// visibility timeout gives at-most-one consumer per message; this lock
// additionally guards against a live inbound turn racing a due follow-up
// for the same conversation.
type ConversationLocker struct {
	client *redis.Client
	logger *logging.Logger
}

// NewConversationLocker wires the locker.
func NewConversationLocker(client *redis.Client, logger *logging.Logger) *ConversationLocker {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationLocker{client: client, logger: logger}
}

// Acquire attempts to take the per-conversation lock. It returns ok=false
// when another run holds it; the caller should requeue or skip the turn.
// The returned release func is safe to call exactly once.
func (l *ConversationLocker) Acquire(ctx context.Context, conversationID uuid.UUID) (release func(), ok bool, err error) {
	key := lockKey(conversationID)
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("conversation: acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// Release uses a fresh context: the turn's context may already be
		// cancelled and the lock must still be freed.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("conversation lock release failed", "error", err, "conversation_id", conversationID)
		}
	}
	return release, true, nil
}

func lockKey(conversationID uuid.UUID) string {
	return "conv:lock:" + conversationID.String()
}
