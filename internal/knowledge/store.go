package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KnowledgeItem is one ingested chunk of an organization's corpus.
// Items are immutable after ingestion except for deletion.
type KnowledgeItem struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	Title      string
	Content    string
	DocumentID string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// VectorHit is one row of the cosine similarity query.
type VectorHit struct {
	ID         uuid.UUID
	Title      string
	Content    string
	Similarity float64
}

// KeywordHit is one row of the full-text query.
type KeywordHit struct {
	ID      uuid.UUID
	Title   string
	Content string
	Rank    float64
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store persists knowledge items in Postgres with a pgvector column for
// semantic search and a tsvector column for keyword search.
type Store struct {
	db sqlQuerier
}

// NewStore wraps a database/sql handle opened with the pq driver.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("knowledge: db cannot be nil")
	}
	return &Store{db: db}
}

func newStoreWithQuerier(db sqlQuerier) *Store {
	return &Store{db: db}
}

// Insert stores one chunk with its adapted embedding.
func (s *Store) Insert(ctx context.Context, item KnowledgeItem, embedding []float32) error {
	if item.OrgID == uuid.Nil {
		return fmt.Errorf("knowledge: org id required")
	}
	if len(embedding) == 0 {
		return fmt.Errorf("knowledge: embedding required")
	}

	meta := map[string]string{}
	for k, v := range item.Metadata {
		meta[k] = v
	}
	if item.DocumentID != "" {
		meta["document_id"] = item.DocumentID
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("knowledge: marshal metadata: %w", err)
	}

	id := item.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_items (id, org_id, title, content, embedding, search_vector, metadata)
		VALUES ($1, $2, $3, $4, $5::vector, to_tsvector('english', $3 || ' ' || $4), $6)`,
		id, item.OrgID, item.Title, item.Content, formatVector(embedding), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("knowledge: insert item: %w", err)
	}
	return nil
}

// VectorSearch returns the topK nearest chunks by cosine distance.
func (s *Store) VectorSearch(ctx context.Context, orgID uuid.UUID, embedding []float32, topK int) ([]VectorHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, 1 - (embedding <=> $2::vector) AS similarity
		FROM knowledge_items
		WHERE org_id = $1
		ORDER BY embedding <=> $2::vector ASC
		LIMIT $3`,
		orgID, formatVector(embedding), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge: vector search: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.ID, &h.Title, &h.Content, &h.Similarity); err != nil {
			return nil, fmt.Errorf("knowledge: scan vector hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// KeywordSearch returns the topK chunks by full-text relevance.
func (s *Store) KeywordSearch(ctx context.Context, orgID uuid.UUID, query string, topK int) ([]KeywordHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content,
		       ts_rank(search_vector, websearch_to_tsquery('english', $2)) AS rank
		FROM knowledge_items
		WHERE org_id = $1
		  AND search_vector @@ websearch_to_tsquery('english', $2)
		ORDER BY rank DESC
		LIMIT $3`,
		orgID, query, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge: keyword search: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		if err := rows.Scan(&h.ID, &h.Title, &h.Content, &h.Rank); err != nil {
			return nil, fmt.Errorf("knowledge: scan keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// DeleteItem removes one chunk.
func (s *Store) DeleteItem(ctx context.Context, orgID, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_items WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("knowledge: delete item: %w", err)
	}
	return nil
}

// DeleteDocument removes every chunk ingested from one source document.
func (s *Store) DeleteDocument(ctx context.Context, orgID uuid.UUID, documentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_items WHERE org_id = $1 AND metadata->>'document_id' = $2`,
		orgID, documentID)
	if err != nil {
		return 0, fmt.Errorf("knowledge: delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("knowledge: delete document rows: %w", err)
	}
	return n, nil
}

// formatVector renders a pgvector literal like [0.1,0.2,0.3].
func formatVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
