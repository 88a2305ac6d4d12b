package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestResolveByPhoneNumberID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)
	orgID := uuid.New()

	rows := pgxmock.NewRows([]string{
		"id", "name", "description", "flow_instructions",
		"phone_number_id", "whatsapp_token", "notify_email", "created_at",
	}).AddRow(orgID, "Acme Fitness", "Gym chain", "Always offer a trial class",
		"1097650123", "secret-token", "owner@acme.test", time.Now())

	mock.ExpectQuery("SELECT .+ FROM organizations WHERE phone_number_id").
		WithArgs("1097650123").
		WillReturnRows(rows)

	org, err := repo.ResolveByPhoneNumberID(context.Background(), "1097650123")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if org.ID != orgID || org.Name != "Acme Fitness" {
		t.Fatalf("unexpected org: %+v", org)
	}

	mock.ExpectQuery("SELECT .+ FROM organizations WHERE phone_number_id").
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.ResolveByPhoneNumberID(context.Background(), "unknown"); err != ErrOrgNotFound {
		t.Fatalf("expected ErrOrgNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListCTAs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)
	orgID := uuid.New()

	rows := pgxmock.NewRows([]string{"id", "org_id", "label", "description", "url", "active"}).
		AddRow(uuid.New(), orgID, "Book a call", "15 minute intro call", "https://cal.test/acme", true).
		AddRow(uuid.New(), orgID, "Pay deposit", "Reserve your spot", "https://pay.test/acme", true)

	mock.ExpectQuery("SELECT id, org_id, label").
		WithArgs(orgID).
		WillReturnRows(rows)

	ctas, err := repo.ListCTAs(context.Background(), orgID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ctas) != 2 || ctas[0].Label != "Book a call" {
		t.Fatalf("unexpected ctas: %+v", ctas)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
