package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

const (
	chunkWindowChars  = 1000
	chunkOverlapChars = 200
	minChunkChars     = 20
)

type itemWriter interface {
	Insert(ctx context.Context, item KnowledgeItem, embedding []float32) error
	DeleteDocument(ctx context.Context, orgID uuid.UUID, documentID string) (int64, error)
}

// Ingestor splits documents into chunks, embeds them and stores them
// under a shared document id so deletion can cascade per document.
type Ingestor struct {
	store    itemWriter
	embedder Embedder
	dim      int
	logger   *logging.Logger
}

// NewIngestor wires the ingestor. dim is the stored vector width.
func NewIngestor(store itemWriter, embedder Embedder, dim int, logger *logging.Logger) *Ingestor {
	if store == nil {
		panic("knowledge: store cannot be nil")
	}
	if embedder == nil {
		panic("knowledge: embedder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingestor{store: store, embedder: embedder, dim: dim, logger: logger}
}

// IngestDocument chunks, embeds and stores one document. It returns the
// document id shared by every stored chunk.
func (g *Ingestor) IngestDocument(ctx context.Context, orgID uuid.UUID, title, content string) (string, error) {
	chunks := ChunkDocument(content)
	if len(chunks) == 0 {
		return "", fmt.Errorf("knowledge: document %q produced no chunks", title)
	}

	embeddings, err := g.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return "", fmt.Errorf("knowledge: embed document %q: %w", title, err)
	}
	if len(embeddings) != len(chunks) {
		return "", fmt.Errorf("knowledge: embedding count mismatch: %d chunks, %d vectors", len(chunks), len(embeddings))
	}

	documentID := uuid.NewString()
	for i, chunk := range chunks {
		item := KnowledgeItem{
			OrgID:      orgID,
			Title:      chunkTitle(title, i, len(chunks)),
			Content:    chunk,
			DocumentID: documentID,
			Metadata:   map[string]string{"source_title": title},
		}
		if err := g.store.Insert(ctx, item, AdaptVector(embeddings[i], g.dim)); err != nil {
			return "", fmt.Errorf("knowledge: store chunk %d of %q: %w", i, title, err)
		}
	}

	g.logger.Info("document ingested", "org_id", orgID, "title", title,
		"document_id", documentID, "chunks", len(chunks))
	return documentID, nil
}

// DeleteDocument removes every chunk of a previously ingested document.
func (g *Ingestor) DeleteDocument(ctx context.Context, orgID uuid.UUID, documentID string) error {
	n, err := g.store.DeleteDocument(ctx, orgID, documentID)
	if err != nil {
		return err
	}
	g.logger.Info("document deleted", "org_id", orgID, "document_id", documentID, "chunks", n)
	return nil
}

// ChunkDocument splits content by markdown headers when the document has
// them, otherwise into fixed-size overlapping windows.
func ChunkDocument(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if looksLikeMarkdown(content) {
		return chunkByHeaders(content)
	}
	return chunkByWindows(content)
}

func looksLikeMarkdown(content string) bool {
	if strings.HasPrefix(content, "#") {
		return true
	}
	return strings.Contains(content, "\n#")
}

// chunkByHeaders keeps each header with the body below it, so a chunk is
// a self-contained section.
func chunkByHeaders(content string) []string {
	lines := strings.Split(content, "\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		section := strings.TrimSpace(current.String())
		if len(section) >= minChunkChars {
			// Oversized sections fall back to windowing.
			if len(section) > 2*chunkWindowChars {
				chunks = append(chunks, chunkByWindows(section)...)
			} else {
				chunks = append(chunks, section)
			}
		}
		current.Reset()
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			flush()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return chunks
}

// chunkByWindows slices the text into windows that overlap so sentences
// straddling a boundary appear whole in at least one chunk.
func chunkByWindows(content string) []string {
	runes := []rune(content)
	if len(runes) <= chunkWindowChars {
		return []string{content}
	}

	step := chunkWindowChars - chunkOverlapChars
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkWindowChars
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if len(chunk) >= minChunkChars {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func chunkTitle(title string, index, total int) string {
	if total == 1 {
		return title
	}
	return fmt.Sprintf("%s (%d/%d)", title, index+1, total)
}
