package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const providerName = "gemini"

// GeminiClient is an implementation of the LLMClient interface using Google Gemini
type GeminiClient struct {
	client      *genai.Client
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	logger      *zap.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	client *genai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) *GeminiClient {
	return &GeminiClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		logger:      logger,
	}
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Model returns the configured model name
func (c *GeminiClient) Model() string {
	return c.modelName
}

// Generate sends a single prompt to the model. A model handle is built per call since its settings are mutable.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	model := c.client.GenerativeModel(c.modelName)
	model.SetTemperature(c.temperature)
	if opts.Temperature > 0 {
		model.SetTemperature(opts.Temperature)
	}
	model.SetTopP(c.topP)
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	model.SetMaxOutputTokens(int32(maxTokens))
	if opts.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(opts.System)}}
	}
	if opts.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", mapError(err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// first candidate with content wins
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

// mapError converts gRPC and REST failures into provider errors
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderInvalidCredentials, Err: err}
		case gerr.Code == http.StatusNotFound:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderModelNotFound, Err: err}
		case gerr.Code == http.StatusTooManyRequests:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderRateLimit, Err: err}
		case gerr.Code >= 500:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderConnectionFailed, Err: err}
		}
		return fmt.Errorf("gemini request rejected: %w", err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderInvalidCredentials, Err: err}
		case codes.NotFound:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderModelNotFound, Err: err}
		case codes.ResourceExhausted:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderRateLimit, Err: err}
		case codes.Unavailable, codes.Internal, codes.Aborted:
			return &core.ProviderError{Provider: providerName, Kind: core.ProviderConnectionFailed, Err: err}
		case codes.DeadlineExceeded:
			return fmt.Errorf("gemini deadline: %w", context.DeadlineExceeded)
		case codes.Unknown:
			// not a status error at all
		default:
			return fmt.Errorf("gemini request rejected: %w", err)
		}
	}

	return &core.ProviderError{Provider: providerName, Kind: core.ProviderConnectionFailed, Err: err}
}
