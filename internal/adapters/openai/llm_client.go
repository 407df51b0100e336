package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const providerName = "openai"

// OpenAIClient is an implementation of the LLMClient interface using OpenAI
type OpenAIClient struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) *OpenAIClient {
	return &OpenAIClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		logger:      logger,
	}
}

// Model returns the configured model name
func (c *OpenAIClient) Model() string {
	return c.modelName
}

// Generate sends a single prompt to the chat completion API
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	c.logger.Debug("OpenAI completion",
		zap.String("model", c.modelName),
		zap.String("id", resp.ID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return resp.Choices[0].Message.Content, nil
}

// mapError converts API failures into provider errors. Context errors pass through untouched.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := core.ProviderConnectionFailed
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = core.ProviderInvalidCredentials
	case status == http.StatusNotFound:
		kind = core.ProviderModelNotFound
	case status == http.StatusTooManyRequests:
		kind = core.ProviderRateLimit
	case status >= 400 && status < 500:
		// bad request and friends are not transient
		return fmt.Errorf("openai request rejected: %w", err)
	}
	return &core.ProviderError{Provider: providerName, Kind: kind, Err: err}
}
