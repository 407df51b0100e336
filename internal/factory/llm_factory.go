package factory

import (
	"fmt"

	"github.com/mikey/llm-reply-drafter/internal/adapters/bedrock"
	"github.com/mikey/llm-reply-drafter/internal/adapters/gemini"
	"github.com/mikey/llm-reply-drafter/internal/adapters/openai"
	"github.com/mikey/llm-reply-drafter/internal/config"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/embedding"
	"github.com/mikey/llm-reply-drafter/internal/invoker"
	"github.com/mikey/llm-reply-drafter/internal/metrics"
	"github.com/mikey/llm-reply-drafter/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates LLM clients and the invokers that wrap them
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	metrics       *metrics.Metrics
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor, m *metrics.Metrics) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
		metrics:       m,
	}
}

func (f *LLMFactory) providerConfig(provider string) (config.ProviderConfig, error) {
	switch provider {
	case "bedrock":
		return f.cfg.GetBedrock(), nil
	case "gemini":
		return f.cfg.GetGemini(), nil
	case "openai":
		return f.cfg.GetOpenAI(), nil
	default:
		return config.ProviderConfig{}, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// CreateLLMClient creates the client of a provider
func (f *LLMFactory) CreateLLMClient(provider string) (core.LLMClient, error) {
	switch provider {
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateLLMClient()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateLLMClient()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateLLMClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// CreateInvoker creates an invoker for a provider. It is the builder of the invoker registry.
func (f *LLMFactory) CreateInvoker(provider string) (core.ModelInvoker, error) {
	pc, err := f.providerConfig(provider)
	if err != nil {
		return nil, err
	}
	client, err := f.CreateLLMClient(provider)
	if err != nil {
		return nil, err
	}

	oc := f.cfg.GetOrchestrator()
	f.logger.Info("Initialized model provider",
		zap.String("provider", provider),
		zap.String("model", client.Model()))
	return invoker.New(client, provider, invoker.Options{
		Timeout:        oc.Timeout,
		MaxRetries:     oc.MaxRetries,
		Backoff:        oc.Backoff,
		MaxInputTokens: pc.MaxInputTokens,
		CharsPerToken:  oc.CharsPerToken,
		RateLimit:      oc.RateLimit,
		RateBurst:      oc.RateBurst,
	}, f.textProcessor, f.metrics, f.logger), nil
}

// EmbeddingFactory creates the semantic and style encoders
type EmbeddingFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEmbeddingFactory creates a new embedding factory
func NewEmbeddingFactory(cfg *config.Config, logger *zap.Logger) *EmbeddingFactory {
	return &EmbeddingFactory{cfg: cfg, logger: logger}
}

// CreateEngine creates the embedding engine for the configured provider
func (f *EmbeddingFactory) CreateEngine() (*embedding.Engine, error) {
	var (
		semantic, style core.Embedder
		err             error
	)
	provider := f.cfg.GetEmbedding().Provider
	switch provider {
	case "openai":
		semantic, style, err = openai.NewFactory(f.cfg, f.logger).CreateEmbedders()
	case "gemini":
		semantic, style, err = gemini.NewFactory(f.cfg, f.logger).CreateEmbedders()
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}
	return embedding.NewEngine(semantic, style), nil
}
