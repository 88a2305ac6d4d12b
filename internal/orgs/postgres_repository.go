package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads organizations and their CTAs.
type PostgresRepository struct {
	pool querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("orgs: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *PostgresRepository {
	if q == nil {
		panic("orgs: querier required")
	}
	return &PostgresRepository{pool: q}
}

const orgColumns = `id, name, description, flow_instructions, phone_number_id, whatsapp_token, notify_email, created_at`

// GetByID fetches one organization.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return r.scanOrg(r.pool.QueryRow(ctx, query, id))
}

// ResolveByPhoneNumberID routes an inbound WhatsApp event to its tenant.
func (r *PostgresRepository) ResolveByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE phone_number_id = $1`
	return r.scanOrg(r.pool.QueryRow(ctx, query, phoneNumberID))
}

func (r *PostgresRepository) scanOrg(row pgx.Row) (*Organization, error) {
	var org Organization
	if err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Description,
		&org.FlowInstructions,
		&org.PhoneNumberID,
		&org.WhatsAppToken,
		&org.NotifyEmail,
		&org.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("orgs: select failed: %w", err)
	}
	return &org, nil
}

// ListCTAs returns the org's active CTAs in creation order.
func (r *PostgresRepository) ListCTAs(ctx context.Context, orgID uuid.UUID) ([]CTA, error) {
	query := `
		SELECT id, org_id, label, description, url, active
		FROM ctas
		WHERE org_id = $1 AND active
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("orgs: list ctas failed: %w", err)
	}
	defer rows.Close()

	var ctas []CTA
	for rows.Next() {
		var cta CTA
		if err := rows.Scan(&cta.ID, &cta.OrgID, &cta.Label, &cta.Description, &cta.URL, &cta.Active); err != nil {
			return nil, fmt.Errorf("orgs: scan cta failed: %w", err)
		}
		ctas = append(ctas, cta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orgs: iterate ctas failed: %w", err)
	}
	return ctas, nil
}
