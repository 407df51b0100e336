package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"account", fmt.Errorf("lookup: %w", ErrAccountNotFound), CodeAccountNotFound},
		{"timeout", &TimeoutError{Stage: "classify", Timeout: time.Second}, CodeLLMTimeout},
		{"wrapped timeout", fmt.Errorf("draft: %w", &TimeoutError{Stage: "respond"}), CodeLLMTimeout},
		{"parse", &ParseError{Reason: "bad mime"}, CodeParseError},
		{"contract", &JSONContractError{Contract: "spam", Reason: "missing isSpam"}, CodeUnknown},
		{"other", errors.New("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&ProviderError{Kind: ProviderRateLimit}))
	assert.True(t, Retryable(&ProviderError{Kind: ProviderConnectionFailed}))
	assert.False(t, Retryable(&ProviderError{Kind: ProviderInvalidCredentials}))
	assert.False(t, Retryable(&ProviderError{Kind: ProviderModelNotFound}))
	assert.True(t, Retryable(&TimeoutError{}))
	assert.True(t, Retryable(fmt.Errorf("wrap: %w", &JSONContractError{})))
	assert.False(t, Retryable(&ClusteringError{Reason: "empty"}))
	assert.False(t, Retryable(nil))
}

func TestTimeoutErrorMatchesDeadline(t *testing.T) {
	assert.ErrorIs(t, &TimeoutError{Stage: "x"}, context.DeadlineExceeded)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Reply-All ")
	assert.NoError(t, err)
	assert.Equal(t, ActionReplyAll, a)

	_, err = ParseAction("archive")
	assert.Error(t, err)

	for _, a := range Actions {
		mode, err := a.Recipients()
		assert.NoError(t, err)
		silent, err := a.IsSilent()
		assert.NoError(t, err)
		assert.Equal(t, silent, mode == RecipientsNone, string(a))
	}
}

func TestUnknownActionIsAnError(t *testing.T) {
	unknown := Action("archive")

	assert.NotPanics(t, func() {
		_, err := unknown.IsSilent()
		assert.EqualError(t, err, `unhandled action "archive"`)
	})

	_, err := unknown.Recipients()
	assert.EqualError(t, err, `unhandled action "archive"`)

	d := &Draft{Action: unknown}
	assert.True(t, d.IsSilent(), "no body is rendered for an unknown action")
}
