package utils

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// TruncationMarker is appended to prompts cut to fit the model budget
const TruncationMarker = "\n[... Content truncated due to size limits ...]"

// TextProcessor provides utilities for processing prompt text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText cuts text to at most maxSize bytes, trimming from the end on a rune boundary.
// The marker is only appended when it fits in maxSize. Callers log the truncation.
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	marker := TruncationMarker
	if len(marker) >= maxSize {
		marker = ""
	}
	truncated := text[:maxSize-len(marker)]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + marker
}

// FitTokenBudget truncates a prompt to maxTokens using a conservative characters-per-token estimate
func (tp *TextProcessor) FitTokenBudget(text string, maxTokens, charsPerToken int) string {
	if maxTokens <= 0 {
		return text
	}
	if charsPerToken <= 0 {
		charsPerToken = 3
	}
	return tp.TruncateText(text, maxTokens*charsPerToken)
}

// EstimateTokens returns the token estimate of text
func EstimateTokens(text string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = 3
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// SanitizeUTF8 drops invalid UTF-8 sequences
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	sanitized := strings.ToValidUTF8(text, "")
	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))
	return sanitized
}

// ProcessText sanitizes and fits text in one operation
func (tp *TextProcessor) ProcessText(text string, maxTokens, charsPerToken int) string {
	return tp.FitTokenBudget(tp.SanitizeUTF8(text), maxTokens, charsPerToken)
}
