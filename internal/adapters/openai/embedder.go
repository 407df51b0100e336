package openai

import (
	"context"
	"fmt"

	"github.com/mikey/llm-reply-drafter/internal/vector"
	"github.com/sashabaranov/go-openai"
)

// maxBatch is the number of inputs sent per embeddings request
const maxBatch = 256

// Embedder encodes text with one OpenAI embedding model
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbedder creates an embedder for a model. dimensions=0 keeps the model's native size.
func NewEmbedder(client *openai.Client, model string, dimensions int) *Embedder {
	return &Embedder{client: client, model: model, dimensions: dimensions}
}

// Dimensions returns the requested vector size
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed encodes a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch encodes texts in input order
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[start:end],
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		if err != nil {
			return nil, mapError(err)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || start+d.Index >= end {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			out[start+d.Index] = vector.Normalize(d.Embedding)
		}
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}
