package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-reply-drafter/internal/config"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Factory creates new instances of GeminiClient and its embedders
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for Gemini clients
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

func (f *Factory) apiClient(ctx context.Context) (*genai.Client, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(geminiCfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// CreateLLMClient creates a new GeminiClient
func (f *Factory) CreateLLMClient() (core.LLMClient, error) {
	client, err := f.apiClient(context.Background())
	if err != nil {
		return nil, err
	}
	geminiCfg := f.cfg.GetGemini()
	return NewGeminiClient(
		client,
		geminiCfg.Model,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		f.logger,
	), nil
}

// CreateEmbedders creates the semantic and style encoders
func (f *Factory) CreateEmbedders() (semantic, style core.Embedder, err error) {
	client, err := f.apiClient(context.Background())
	if err != nil {
		return nil, nil, err
	}
	embCfg := f.cfg.GetEmbedding()
	return NewEmbedder(client, embCfg.SemanticModel, embCfg.Dimensions),
		NewEmbedder(client, embCfg.StyleModel, embCfg.Dimensions), nil
}
