package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind core.ProviderErrorKind
	}{
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "bad key"), core.ProviderInvalidCredentials},
		{"grpc not found", status.Error(codes.NotFound, "no model"), core.ProviderModelNotFound},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), core.ProviderRateLimit},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), core.ProviderConnectionFailed},
		{"rest forbidden", &googleapi.Error{Code: 403}, core.ProviderInvalidCredentials},
		{"rest 429", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 429}), core.ProviderRateLimit},
		{"rest 503", &googleapi.Error{Code: 503}, core.ProviderConnectionFailed},
		{"plain", errors.New("connection reset"), core.ProviderConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *core.ProviderError
			err := mapError(tt.err)
			if assert.True(t, errors.As(err, &pe), "got %v", err) {
				assert.Equal(t, tt.kind, pe.Kind)
			}
		})
	}
}

func TestMapErrorNonTransient(t *testing.T) {
	err := mapError(status.Error(codes.InvalidArgument, "bad prompt"))
	var pe *core.ProviderError
	assert.False(t, errors.As(err, &pe))
	assert.False(t, core.Retryable(err))

	assert.ErrorIs(t, mapError(status.Error(codes.DeadlineExceeded, "slow")), context.DeadlineExceeded)
	assert.ErrorIs(t, mapError(context.Canceled), context.Canceled)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: nil},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"message":`), genai.Text(`"ok"}`)}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
	}}
	assert.Equal(t, `{"message":"ok"}`, responseText(resp))
	assert.Empty(t, responseText(nil))
}
