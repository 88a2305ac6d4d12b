package knowledge

import (
	"context"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
)

// SnippetProvider adapts the hybrid retriever to the context snippet
// shape the conversation engine consumes.
type SnippetProvider struct {
	retriever *Retriever
	params    SearchParams
}

// NewSnippetProvider wraps a retriever with fixed search parameters.
func NewSnippetProvider(retriever *Retriever, params SearchParams) *SnippetProvider {
	if retriever == nil {
		panic("knowledge: retriever cannot be nil")
	}
	if params.TopK <= 0 {
		params = DefaultSearchParams()
	}
	return &SnippetProvider{retriever: retriever, params: params}
}

// Retrieve runs the hybrid search and flattens results into snippets.
func (p *SnippetProvider) Retrieve(ctx context.Context, orgID uuid.UUID, query string) ([]conversation.ContextSnippet, error) {
	results, err := p.retriever.Search(ctx, orgID, query, p.params)
	if err != nil {
		return nil, err
	}
	snippets := make([]conversation.ContextSnippet, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, conversation.ContextSnippet{
			Title:   res.Title,
			Content: res.Content,
		})
	}
	return snippets, nil
}

var _ conversation.KnowledgeRetriever = (*SnippetProvider)(nil)
