package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestStoreGetNotFound(t *testing.T) {
	mock := newMock(t)
	store := newStoreWithQuerier(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM conversations WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.Get(context.Background(), id); err != ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreCreate(t *testing.T) {
	mock := newMock(t)
	store := newStoreWithQuerier(mock)
	orgID, leadID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), orgID, leadID).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	conv, err := store.Create(context.Background(), orgID, leadID)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if conv.Stage != StageGreeting || conv.Mode != ModeBot {
		t.Fatalf("unexpected defaults: %+v", conv)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreUpdateState(t *testing.T) {
	mock := newMock(t)
	store := newStoreWithQuerier(mock)

	conv := &Conversation{
		ID:        uuid.New(),
		Stage:     StagePricing,
		Mode:      ModeBot,
		Intent:    IntentHigh,
		Sentiment: SentimentPositive,
		UpdatedAt: time.Now(),
	}

	mock.ExpectExec("UPDATE conversations SET").
		WithArgs(conv.ID, "pricing", "bot", "high", "positive",
			conv.LastMessageText, conv.LastMessageAt, conv.LastBotMessageAt,
			conv.FollowupsLast24h, conv.NudgesTotal, conv.NextFollowupAt,
			conv.SelectedCTAID, conv.CTAScheduledAt,
			conv.NeedsHumanAttention, conv.AttentionResolvedAt,
			conv.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.UpdateState(context.Background(), conv); err != nil {
		t.Fatalf("update state failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMessageStoreAppendDedupes(t *testing.T) {
	mock := newMock(t)
	store := newMessageStoreWithQuerier(mock)
	convID := uuid.New()

	msg := &Message{ConversationID: convID, Role: "user", Body: "hi", ProviderMessageID: "wamid.1"}
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), convID, "user", "hi", "wamid.1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := store.Append(context.Background(), msg)
	if err != nil || !stored {
		t.Fatalf("expected fresh insert, got stored=%v err=%v", stored, err)
	}

	dup := &Message{ConversationID: convID, Role: "user", Body: "hi", ProviderMessageID: "wamid.1"}
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), convID, "user", "hi", "wamid.1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	stored, err = store.Append(context.Background(), dup)
	if err != nil || stored {
		t.Fatalf("expected duplicate to be skipped, got stored=%v err=%v", stored, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestScheduledStoreScheduleSupersedes(t *testing.T) {
	mock := newMock(t)
	store := newScheduledActionStoreWithQuerier(mock)
	convID, orgID := uuid.New(), uuid.New()
	at := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE scheduled_actions").
		WithArgs(convID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO scheduled_actions").
		WithArgs(pgxmock.AnyArg(), convID, orgID, at, "followup", "lead went quiet").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	action, err := store.Schedule(context.Background(), convID, orgID, at, "followup", "lead went quiet")
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if action.Status != ScheduledStatusPending || !action.ScheduledAt.Equal(at) {
		t.Fatalf("unexpected action: %+v", action)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestScheduledStoreMarkExecutedRequiresPending(t *testing.T) {
	mock := newMock(t)
	store := newScheduledActionStoreWithQuerier(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE scheduled_actions SET status").
		WithArgs(id, "executed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.MarkExecuted(context.Background(), id); err == nil {
		t.Fatal("expected error for non-pending action")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
