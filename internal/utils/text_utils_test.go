package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFitTokenBudget(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tp := NewTextProcessor(zap.New(core))

	short := "hello"
	assert.Equal(t, short, tp.FitTokenBudget(short, 10, 3))
	assert.Zero(t, logs.Len())

	long := strings.Repeat("abcdef ", 100)
	out := tp.FitTokenBudget(long, 50, 3)
	assert.LessOrEqual(t, len(out), 150)
	assert.True(t, strings.HasSuffix(out, TruncationMarker))
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(out, TruncationMarker)))
	assert.Zero(t, logs.Len(), "the caller logs the truncation")
}

func TestTruncateSmallerThanMarker(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	text := strings.Repeat("abc", 50)
	for _, n := range []int{1, 10, len(TruncationMarker) - 1, len(TruncationMarker)} {
		out := tp.TruncateText(text, n)
		assert.LessOrEqual(t, len(out), n)
		assert.Equal(t, text[:n], out)
	}

	out := tp.TruncateText(strings.Repeat("é", 10), 3)
	assert.Equal(t, "é", out)

	out = tp.TruncateText(text, len(TruncationMarker)+1)
	assert.Equal(t, "a"+TruncationMarker, out)
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	text := strings.Repeat("é", 100)
	out := tp.TruncateText(text, len(TruncationMarker)+5)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "éé"+TruncationMarker, out)
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
	assert.Equal(t, "ok", tp.SanitizeUTF8("ok"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 4, EstimateTokens("0123456789", 3))
	assert.Equal(t, 0, EstimateTokens("", 3))
}
