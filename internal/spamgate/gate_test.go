package spamgate

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) CountRepliesTo(ctx context.Context, userID, address string) (int, error) {
	args := m.Called(ctx, userID, address)
	return args.Int(0), args.Error(1)
}

// scriptedInvoker feeds a fixed response to the parser of every call
type scriptedInvoker struct {
	response string
	calls    []core.ModelCall
}

func (s *scriptedInvoker) Invoke(_ context.Context, call core.ModelCall) error {
	s.calls = append(s.calls, call)
	return call.Parse(s.response)
}

func (s *scriptedInvoker) Model() string { return "test-model" }

func TestCheckEstablishedCorrespondentSkipsModel(t *testing.T) {
	history := &mockHistory{}
	history.On("CountRepliesTo", mock.Anything, "u1", "alice@example.com").Return(3, nil)
	invoker := &scriptedInvoker{response: `{"isSpam": true, "spamIndicators": ["x"]}`}

	gate := New(history, invoker, nil, 2, zap.NewNop())
	verdict, err := gate.Check(context.Background(), Input{UserID: "u1", Sender: "alice@example.com"})
	require.NoError(t, err)

	assert.False(t, verdict.IsSpam)
	assert.True(t, verdict.Whitelisted)
	assert.Equal(t, 3, verdict.SenderResponseCount)
	assert.Empty(t, invoker.calls)
	history.AssertExpectations(t)
}

func TestCheckUsesReplyToMaximum(t *testing.T) {
	history := &mockHistory{}
	history.On("CountRepliesTo", mock.Anything, "u1", "noreply@vendor.com").Return(0, nil)
	history.On("CountRepliesTo", mock.Anything, "u1", "rep@vendor.com").Return(2, nil)
	invoker := &scriptedInvoker{response: `{"isSpam": true, "spamIndicators": []}`}

	gate := New(history, invoker, nil, 2, zap.NewNop())
	verdict, err := gate.Check(context.Background(), Input{UserID: "u1", Sender: "noreply@vendor.com", ReplyTo: "rep@vendor.com"})
	require.NoError(t, err)
	assert.False(t, verdict.IsSpam)
	assert.Equal(t, 2, verdict.SenderResponseCount)
	assert.Empty(t, invoker.calls)
}

func TestCheckClassifies(t *testing.T) {
	history := &mockHistory{}
	history.On("CountRepliesTo", mock.Anything, "u1", "promo@deals.biz").Return(1, nil)
	invoker := &scriptedInvoker{response: "```json\n{\"isSpam\": true, \"spamIndicators\": [\"urgency\", \"prize\"]}\n```"}

	gate := New(history, invoker, nil, 2, zap.NewNop())
	verdict, err := gate.Check(context.Background(), Input{
		UserID:       "u1",
		Sender:       "promo@deals.biz",
		Subject:      "You won",
		Body:         "Claim now",
		DisplayNames: []string{"Jamie"},
	})
	require.NoError(t, err)

	assert.True(t, verdict.IsSpam)
	assert.Equal(t, []string{"urgency", "prize"}, verdict.Indicators)
	assert.Equal(t, 1, verdict.SenderResponseCount)
	assert.Equal(t, "test-model", verdict.ModelUsed)
	require.Len(t, invoker.calls, 1)
	assert.Contains(t, invoker.calls[0].Prompt, "replied to this sender 1 time(s)")
	assert.Contains(t, invoker.calls[0].Prompt, "Jamie")
	assert.True(t, invoker.calls[0].Options.JSON)
}

func TestCheckContractViolationIsAnError(t *testing.T) {
	history := &mockHistory{}
	history.On("CountRepliesTo", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	invoker := &scriptedInvoker{response: `{"spam": "maybe"}`}

	_, err := New(history, invoker, nil, 2, zap.NewNop()).Check(context.Background(), Input{UserID: "u1", Sender: "a@b.com"})
	var ce *core.JSONContractError
	assert.True(t, errors.As(err, &ce))
}

func TestCheckTrustedDomain(t *testing.T) {
	history := &mockHistory{}
	history.On("CountRepliesTo", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	invoker := &scriptedInvoker{}
	domains := whitelist.NewChecker([]string{"corp.example"}, zap.NewNop())

	verdict, err := New(history, invoker, domains, 2, zap.NewNop()).Check(context.Background(), Input{UserID: "u1", Sender: "hr@corp.example"})
	require.NoError(t, err)
	assert.True(t, verdict.Whitelisted)
	assert.Empty(t, invoker.calls)
}

func TestCheckHistoryError(t *testing.T) {
	history := &mockHistory{}
	history.On("CountRepliesTo", mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("db down"))

	_, err := New(history, &scriptedInvoker{}, nil, 2, zap.NewNop()).Check(context.Background(), Input{UserID: "u1", Sender: "a@b.com"})
	assert.ErrorContains(t, err, "db down")
}

func TestThresholdNeverExceedsTwo(t *testing.T) {
	gate := New(&mockHistory{}, &scriptedInvoker{}, nil, 10, zap.NewNop())
	assert.Equal(t, DefaultWhitelistThreshold, gate.threshold)
}
