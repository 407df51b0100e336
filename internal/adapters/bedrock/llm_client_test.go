package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRuntime struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeRuntime) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestGenerateClaudeMessages(t *testing.T) {
	rt := &fakeRuntime{body: `{"content":[{"type":"text","text":"{\"message\":"},{"type":"text","text":"\"hi\"}"}]}`}
	c := NewBedrockClient(rt, "anthropic.claude-3-haiku-20240307-v1:0", 500, 0.3, 0.9, zap.NewNop())

	out, err := c.Generate(context.Background(), "write", core.GenerateOptions{System: "sys", MaxTokens: 42})
	require.NoError(t, err)
	assert.Equal(t, `{"message":"hi"}`, out)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(rt.input.Body, &sent))
	assert.Equal(t, "bedrock-2023-05-31", sent["anthropic_version"])
	assert.Equal(t, "sys", sent["system"])
	assert.EqualValues(t, 42, sent["max_tokens"])
}

func TestGenerateLegacyFamilies(t *testing.T) {
	tests := []struct {
		model string
		body  string
		key   string
	}{
		{"anthropic.claude-v2", `{"completion":" done"}`, "max_tokens_to_sample"},
		{"amazon.titan-text-express-v1", `{"results":[{"outputText":" done"}]}`, "textGenerationConfig"},
		{"meta.llama3-8b-instruct-v1:0", `{"generation":" done"}`, "max_tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			rt := &fakeRuntime{body: tt.body}
			out, err := NewBedrockClient(rt, tt.model, 10, 0, 0, zap.NewNop()).Generate(context.Background(), "p", core.GenerateOptions{})
			require.NoError(t, err)
			assert.Equal(t, " done", out)
			assert.Contains(t, string(rt.input.Body), tt.key)
		})
	}
}

func TestMapError(t *testing.T) {
	tests := map[string]core.ProviderErrorKind{
		"AccessDeniedException":       core.ProviderInvalidCredentials,
		"ResourceNotFoundException":   core.ProviderModelNotFound,
		"ThrottlingException":         core.ProviderRateLimit,
		"ServiceUnavailableException": core.ProviderConnectionFailed,
	}
	for code, kind := range tests {
		t.Run(code, func(t *testing.T) {
			rt := &fakeRuntime{err: &smithy.GenericAPIError{Code: code, Message: "x"}}
			_, err := NewBedrockClient(rt, "anthropic.claude-v2", 10, 0, 0, zap.NewNop()).Generate(context.Background(), "p", core.GenerateOptions{})
			var pe *core.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, kind, pe.Kind)
		})
	}

	err := mapError(&smithy.GenericAPIError{Code: "ValidationException"})
	assert.False(t, core.Retryable(err))
}
