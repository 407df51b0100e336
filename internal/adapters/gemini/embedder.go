package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-reply-drafter/internal/vector"
)

// maxBatch is the request limit of BatchEmbedContents
const maxBatch = 100

// Embedder encodes text with one Gemini embedding model
type Embedder struct {
	model      *genai.EmbeddingModel
	dimensions int
}

// NewEmbedder creates an embedder for a model
func NewEmbedder(client *genai.Client, model string, dimensions int) *Embedder {
	return &Embedder{model: client.EmbeddingModel(model), dimensions: dimensions}
}

// Dimensions returns the configured vector size
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed encodes a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, mapError(err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("empty embedding from Gemini")
	}
	return vector.Normalize(res.Embedding.Values), nil
}

// EmbedBatch encodes texts in input order
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		batch := e.model.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := e.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, mapError(err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(res.Embeddings), end-start)
		}
		for _, emb := range res.Embeddings {
			out = append(out, vector.Normalize(emb.Values))
		}
	}
	return out, nil
}
