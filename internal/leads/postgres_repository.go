package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool rowQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newRepositoryWithExec(exec rowQuerier) *PostgresRepository {
	if exec == nil {
		panic("leads: exec required")
	}
	return &PostgresRepository{pool: exec}
}

// UpsertByPhone returns the lead for (org, phone), creating it on first
// contact. A non-empty name refreshes the stored one; an empty name never
// clobbers a known one.
func (r *PostgresRepository) UpsertByPhone(ctx context.Context, req *UpsertLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO leads (id, org_id, phone, name, funnel_state, intent, sentiment)
		VALUES ($1, $2, $3, $4, 'new', 'low', 'neutral')
		ON CONFLICT (org_id, phone) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE leads.name END,
		    updated_at = now()
		RETURNING id, org_id, phone, name, funnel_state, intent, sentiment, created_at, updated_at
	`
	row := r.pool.QueryRow(ctx, query, uuid.New(), req.OrgID, req.Phone, req.Name)

	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.OrgID,
		&lead.Phone,
		&lead.Name,
		&lead.FunnelState,
		&lead.Intent,
		&lead.Sentiment,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("leads: upsert failed: %w", err)
	}
	return &lead, nil
}

// GetByID fetches a lead scoped to the org.
func (r *PostgresRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Lead, error) {
	query := `
		SELECT id, org_id, phone, name, funnel_state, intent, sentiment, created_at, updated_at
		FROM leads
		WHERE id = $1 AND org_id = $2
	`
	row := r.pool.QueryRow(ctx, query, id, orgID)

	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.OrgID,
		&lead.Phone,
		&lead.Name,
		&lead.FunnelState,
		&lead.Intent,
		&lead.Sentiment,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}

// UpdateFunnelState refreshes the lead's read copy of the conversation
// assessment. The applier mirrors stage, intent and sentiment into it on
// every turn so list views stay cheap.
func (r *PostgresRepository) UpdateFunnelState(ctx context.Context, id uuid.UUID, state, intent, sentiment string) error {
	query := `
		UPDATE leads
		SET funnel_state = $2, intent = $3, sentiment = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, state, intent, sentiment, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("leads: update funnel state failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}
