package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultEmbeddingModelID is the Titan text embedding model used when no
// override is configured.
const DefaultEmbeddingModelID = "amazon.titan-embed-text-v2:0"

// Embedder turns text into embedding vectors. Raw vectors may be wider
// than the stored dimensionality; callers adapt them with AdaptVector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type bedrockInvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// TitanEmbedder embeds text through Bedrock's Titan embedding models.
type TitanEmbedder struct {
	api     bedrockInvokeModelAPI
	modelID string
}

// NewTitanEmbedder builds an embedder over a Bedrock runtime client.
func NewTitanEmbedder(api bedrockInvokeModelAPI, modelID string) *TitanEmbedder {
	if api == nil {
		panic("knowledge: bedrock runtime client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = DefaultEmbeddingModelID
	}
	return &TitanEmbedder{api: api, modelID: modelID}
}

// Embed returns the raw embedding for one text.
func (e *TitanEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"inputText": text,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: embedding request marshal: %w", err)
	}

	out, err := e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: titan invoke: %w", err)
	}

	var decoded struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return nil, fmt.Errorf("knowledge: embedding response parse: %w", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, errors.New("knowledge: embedding response was empty")
	}

	vec := make([]float32, len(decoded.Embedding))
	for i, f := range decoded.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

// EmbedBatch embeds each text in turn. Titan's invoke API takes one
// input per call, so the batch is a sequential loop.
func (e *TitanEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vec)
	}
	return embeddings, nil
}

var _ Embedder = (*TitanEmbedder)(nil)
