package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/vector"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestGenerate(t *testing.T) {
	var got openai.ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"message\":\"hi\"}"}}]}`))
	})

	c := NewOpenAIClient(client, "gpt-test", 100, 0.2, 0.9, zap.NewNop())
	out, err := c.Generate(context.Background(), "draft a reply", core.GenerateOptions{JSON: true, System: "be brief", MaxTokens: 50})
	require.NoError(t, err)

	assert.Equal(t, `{"message":"hi"}`, out)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 50, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
}

func TestGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   core.ProviderErrorKind
	}{
		{http.StatusUnauthorized, core.ProviderInvalidCredentials},
		{http.StatusNotFound, core.ProviderModelNotFound},
		{http.StatusTooManyRequests, core.ProviderRateLimit},
		{http.StatusBadGateway, core.ProviderConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x","code":"y"}}`))
			})
			_, err := NewOpenAIClient(client, "m", 10, 0, 0, zap.NewNop()).Generate(context.Background(), "p", core.GenerateOptions{})
			var pe *core.ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.kind, pe.Kind)
		})
	}
}

func TestMapErrorPassesContextErrors(t *testing.T) {
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), context.DeadlineExceeded)
}

func TestEmbedBatchOrdersByIndexAndNormalizes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,2]},
			{"object":"embedding","index":0,"embedding":[3,4]}
		],"model":"m"}`))
	})

	e := NewEmbedder(client, "text-embedding-3-small", 2)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.6, out[0][0], 1e-6)
	assert.Equal(t, []float32{0, 1}, out[1])
	for _, v := range out {
		assert.True(t, vector.IsUnit(v))
	}
}
