package openai

import (
	"fmt"

	"github.com/mikey/llm-reply-drafter/internal/config"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Factory creates new instances of OpenAIClient and its embedders
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for OpenAI clients
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

func (f *Factory) apiClient() (*openai.Client, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	clientCfg := openai.DefaultConfig(openaiCfg.APIKey)
	if openaiCfg.BaseURL != "" {
		clientCfg.BaseURL = openaiCfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// CreateLLMClient creates a new OpenAIClient
func (f *Factory) CreateLLMClient() (core.LLMClient, error) {
	client, err := f.apiClient()
	if err != nil {
		return nil, err
	}
	openaiCfg := f.cfg.GetOpenAI()
	return NewOpenAIClient(
		client,
		openaiCfg.Model,
		openaiCfg.MaxTokens,
		openaiCfg.Temperature,
		openaiCfg.TopP,
		f.logger,
	), nil
}

// CreateEmbedders creates the semantic and style encoders
func (f *Factory) CreateEmbedders() (semantic, style core.Embedder, err error) {
	client, err := f.apiClient()
	if err != nil {
		return nil, nil, err
	}
	embCfg := f.cfg.GetEmbedding()
	return NewEmbedder(client, embCfg.SemanticModel, embCfg.Dimensions),
		NewEmbedder(client, embCfg.StyleModel, embCfg.Dimensions), nil
}
