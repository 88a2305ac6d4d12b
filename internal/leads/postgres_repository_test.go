package leads

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestUpsertByPhoneValidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)

	if _, err := repo.UpsertByPhone(context.Background(), &UpsertLeadRequest{Phone: "+15550001111"}); err != ErrMissingOrgID {
		t.Fatalf("expected ErrMissingOrgID, got %v", err)
	}
	if _, err := repo.UpsertByPhone(context.Background(), &UpsertLeadRequest{OrgID: uuid.New()}); err != ErrMissingPhone {
		t.Fatalf("expected ErrMissingPhone, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	orgID, leadID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id, org_id, phone").
		WithArgs(leadID, orgID).
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), orgID, leadID); err != ErrLeadNotFound {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateFunnelState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	leadID := uuid.New()

	mock.ExpectExec("UPDATE leads").
		WithArgs(leadID, "pricing", "high", "positive", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateFunnelState(context.Background(), leadID, "pricing", "high", "positive"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	mock.ExpectExec("UPDATE leads").
		WithArgs(leadID, "lost", "low", "negative", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.UpdateFunnelState(context.Background(), leadID, "lost", "low", "negative"); err != ErrLeadNotFound {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
