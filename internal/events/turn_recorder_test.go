package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
)

type capturingPublisher struct {
	orgIDs []string
	types  []string
	events []any
	err    error
}

func (c *capturingPublisher) Publish(_ context.Context, orgID, eventType string, event any) error {
	c.orgIDs = append(c.orgIDs, orgID)
	c.types = append(c.types, eventType)
	c.events = append(c.events, event)
	return c.err
}

func testTurnEvent() conversation.TurnEvent {
	return conversation.TurnEvent{
		ConversationID: uuid.New(),
		OrgID:          uuid.New(),
		Stage:          conversation.StagePricing,
		Action:         conversation.ActionSendNow,
		Confidence:     0.9,
		MessageSent:    true,
		Latency:        1500 * time.Millisecond,
		InputTokens:    350,
		OutputTokens:   120,
		At:             time.Now().UTC(),
	}
}

func TestRecordTurnInsertsAuditRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	event := testTurnEvent()
	mock.ExpectExec("INSERT INTO conversation_events").
		WithArgs(pgxmock.AnyArg(), event.OrgID, event.ConversationID,
			"pricing", "send_now", 0.9,
			true, false, false,
			int64(1500), int32(350), int32(120), event.At).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	pub := &capturingPublisher{}
	recorder := newTurnRecorderWithExec(mock, pub, nil)

	require.NoError(t, recorder.RecordTurn(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, pub.events, 1)
	assert.Equal(t, event.OrgID.String(), pub.orgIDs[0])
	assert.Equal(t, TypeConversationUpdated, pub.types[0])
	updated := pub.events[0].(ConversationUpdatedV1)
	assert.Equal(t, "pricing", updated.Stage)
	assert.True(t, updated.MessageSent)
}

func TestRecordTurnPublishFailureIsNotFatal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO conversation_events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	pub := &capturingPublisher{err: errors.New("redis down")}
	recorder := newTurnRecorderWithExec(mock, pub, nil)

	assert.NoError(t, recorder.RecordTurn(context.Background(), testTurnEvent()))
}

func TestRecordTurnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO conversation_events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	pub := &capturingPublisher{}
	recorder := newTurnRecorderWithExec(mock, pub, nil)

	err = recorder.RecordTurn(context.Background(), testTurnEvent())
	require.Error(t, err)
	assert.Empty(t, pub.events, "no publish on failed insert")
}

func TestPublisherDeliversOverRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	orgID := uuid.NewString()

	sub := client.Subscribe(ctx, Channel(orgID))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewPublisher(client, nil)
	require.NoError(t, pub.Publish(ctx, orgID, TypeConversationUpdated, ConversationUpdatedV1{
		EventID: "evt-1",
		Stage:   "pricing",
	}))

	select {
	case msg := <-sub.Channel():
		var envelope struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &envelope))
		assert.Equal(t, TypeConversationUpdated, envelope.Type)

		var updated ConversationUpdatedV1
		require.NoError(t, json.Unmarshal(envelope.Payload, &updated))
		assert.Equal(t, "evt-1", updated.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
