package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// rrfK is the reciprocal rank fusion constant. 60 is the value from the
// original RRF paper and keeps single-list candidates competitive.
const rrfK = 60

// Reason tags why a result survived admission.
const (
	ReasonSemantic = "semantic"
	ReasonKeyword  = "keyword"
)

// SearchParams bound one hybrid search.
type SearchParams struct {
	TopK                 int
	VectorThreshold      float64
	KeywordRankThreshold int
}

// DefaultSearchParams matches the production tuning.
func DefaultSearchParams() SearchParams {
	return SearchParams{TopK: 5, VectorThreshold: 0.35, KeywordRankThreshold: 3}
}

// SearchResult is one admitted, fused-rank chunk.
type SearchResult struct {
	ID      uuid.UUID
	Title   string
	Content string
	Score   float64
	Reason  string
}

type searchStore interface {
	VectorSearch(ctx context.Context, orgID uuid.UUID, embedding []float32, topK int) ([]VectorHit, error)
	KeywordSearch(ctx context.Context, orgID uuid.UUID, query string, topK int) ([]KeywordHit, error)
}

type queryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever runs hybrid semantic plus keyword search over an
// organization's corpus. Vector search alone misses exact-term queries
// (policy names, SKUs) and keyword search alone misses paraphrase, so
// candidates from either index are fused by reciprocal rank and admitted
// when either signal clears its threshold.
type Retriever struct {
	store    searchStore
	embedder queryEmbedder
	dim      int
	logger   *logging.Logger
}

// NewRetriever wires the retriever. dim is the stored vector width that
// raw embeddings are adapted to.
func NewRetriever(store searchStore, embedder queryEmbedder, dim int, logger *logging.Logger) *Retriever {
	if store == nil {
		panic("knowledge: store cannot be nil")
	}
	if embedder == nil {
		panic("knowledge: embedder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Retriever{store: store, embedder: embedder, dim: dim, logger: logger}
}

// Search embeds the query and returns admitted results sorted by fused
// score descending.
func (r *Retriever) Search(ctx context.Context, orgID uuid.UUID, query string, params SearchParams) ([]SearchResult, error) {
	if params.TopK <= 0 {
		params.TopK = DefaultSearchParams().TopK
	}

	raw, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	queryVec := AdaptVector(raw, r.dim)

	vectorHits, err := r.store.VectorSearch(ctx, orgID, queryVec, params.TopK)
	if err != nil {
		return nil, err
	}
	keywordHits, err := r.store.KeywordSearch(ctx, orgID, query, params.TopK)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		hit         SearchResult
		vectorRank  int // 1-based, 0 when absent
		keywordRank int
		similarity  float64
	}
	candidates := make(map[uuid.UUID]*candidate)

	for i, h := range vectorHits {
		candidates[h.ID] = &candidate{
			hit:        SearchResult{ID: h.ID, Title: h.Title, Content: h.Content},
			vectorRank: i + 1,
			similarity: h.Similarity,
		}
	}
	for i, h := range keywordHits {
		if c, ok := candidates[h.ID]; ok {
			c.keywordRank = i + 1
			continue
		}
		candidates[h.ID] = &candidate{
			hit:         SearchResult{ID: h.ID, Title: h.Title, Content: h.Content},
			keywordRank: i + 1,
		}
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		var score float64
		if c.vectorRank > 0 {
			score += 1.0 / float64(rrfK+c.vectorRank)
		}
		if c.keywordRank > 0 {
			score += 1.0 / float64(rrfK+c.keywordRank)
		}

		semantic := c.vectorRank > 0 && c.similarity > params.VectorThreshold
		keyword := c.keywordRank > 0 && c.keywordRank <= params.KeywordRankThreshold
		if !semantic && !keyword {
			continue
		}

		res := c.hit
		res.Score = score
		if semantic {
			res.Reason = ReasonSemantic
		} else {
			res.Reason = ReasonKeyword
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	r.logger.Debug("hybrid search complete",
		"org_id", orgID, "vector_hits", len(vectorHits),
		"keyword_hits", len(keywordHits), "admitted", len(results))
	return results, nil
}
