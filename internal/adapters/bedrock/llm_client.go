package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

const providerName = "bedrock"

// InvokeAPI is the subset of the Bedrock runtime client used here
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient is an implementation of the LLMClient interface using Amazon Bedrock
type BedrockClient struct {
	client      InvokeAPI
	modelID     string
	maxTokens   int
	temperature float32
	topP        float32
	logger      *zap.Logger
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client InvokeAPI,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) *BedrockClient {
	return &BedrockClient{
		client:      client,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		logger:      logger,
	}
}

// Model returns the configured model id
func (c *BedrockClient) Model() string {
	return c.modelID
}

type family int

const (
	familyGeneric family = iota
	familyClaudeText
	familyClaudeMessages
	familyTitan
)

func modelFamily(modelID string) family {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "anthropic.claude-3"), strings.Contains(id, "anthropic.claude-sonnet"),
		strings.Contains(id, "anthropic.claude-opus"), strings.Contains(id, "anthropic.claude-haiku"):
		return familyClaudeMessages
	case strings.Contains(id, "anthropic.claude"):
		return familyClaudeText
	case strings.Contains(id, "amazon.titan"):
		return familyTitan
	}
	return familyGeneric
}

// buildPayload renders the request body for the model family
func (c *BedrockClient) buildPayload(prompt string, opts core.GenerateOptions) ([]byte, error) {
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := c.temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	switch modelFamily(c.modelID) {
	case familyClaudeMessages:
		body := map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       temperature,
			"top_p":             c.topP,
			"messages": []map[string]any{
				{"role": "user", "content": []map[string]string{{"type": "text", "text": prompt}}},
			},
		}
		if opts.System != "" {
			body["system"] = opts.System
		}
		return json.Marshal(body)
	case familyClaudeText:
		text := prompt
		if opts.System != "" {
			text = opts.System + "\n\n" + prompt
		}
		return json.Marshal(map[string]any{
			"prompt":               "\n\nHuman: " + text + "\n\nAssistant:",
			"max_tokens_to_sample": maxTokens,
			"temperature":          temperature,
			"top_p":                c.topP,
		})
	case familyTitan:
		text := prompt
		if opts.System != "" {
			text = opts.System + "\n\n" + prompt
		}
		return json.Marshal(map[string]any{
			"inputText": text,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens,
				"temperature":   temperature,
				"topP":          c.topP,
			},
		})
	}
	return json.Marshal(map[string]any{
		"prompt":      prompt,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"top_p":       c.topP,
	})
}

// parseResponse extracts the generated text for the model family
func (c *BedrockClient) parseResponse(body []byte) (string, error) {
	switch modelFamily(c.modelID) {
	case familyClaudeMessages:
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var b strings.Builder
		for _, part := range resp.Content {
			if part.Type == "text" {
				b.WriteString(part.Text)
			}
		}
		return b.String(), nil
	case familyClaudeText:
		var resp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return resp.Completion, nil
	case familyTitan:
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return resp.Results[0].OutputText, nil
	}

	var resp struct {
		Output     string `json:"output"`
		Text       string `json:"text"`
		Generation string `json:"generation"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return string(body), nil
	}
	for _, s := range []string{resp.Output, resp.Text, resp.Generation} {
		if s != "" {
			return s, nil
		}
	}
	return string(body), nil
}

// Generate invokes the model once and returns its text
func (c *BedrockClient) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	payload, err := c.buildPayload(prompt, opts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", mapError(err)
	}

	text, err := c.parseResponse(resp.Body)
	if err != nil {
		return "", err
	}
	c.logger.Debug("Bedrock completion", zap.String("model", c.modelID), zap.Int("response_bytes", len(resp.Body)))
	return text, nil
}

// mapError converts smithy API errors into provider errors
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &core.ProviderError{Provider: providerName, Kind: core.ProviderConnectionFailed, Err: err}
	}

	switch apiErr.ErrorCode() {
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
		return &core.ProviderError{Provider: providerName, Kind: core.ProviderInvalidCredentials, Err: err}
	case "ResourceNotFoundException":
		return &core.ProviderError{Provider: providerName, Kind: core.ProviderModelNotFound, Err: err}
	case "ThrottlingException", "ServiceQuotaExceededException":
		return &core.ProviderError{Provider: providerName, Kind: core.ProviderRateLimit, Err: err}
	case "ServiceUnavailableException", "InternalServerException", "ModelNotReadyException", "ModelTimeoutException":
		return &core.ProviderError{Provider: providerName, Kind: core.ProviderConnectionFailed, Err: err}
	}
	return fmt.Errorf("bedrock request rejected: %w", err)
}
