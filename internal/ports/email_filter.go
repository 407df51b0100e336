package ports

import (
	"context"

	"github.com/mikey/llm-reply-drafter/internal/core"
)

// EmailFilter defines the interface for intake transports that feed the draft pipeline
type EmailFilter interface {
	// ProcessEmail drafts a response for a raw message delivered to an account
	ProcessEmail(ctx context.Context, accountID string, raw []byte) *core.DraftResult

	// Start starts the intake service
	Start() error

	// Stop stops the intake service
	Stop() error
}

// DraftPipeline turns a raw message into a draft result
type DraftPipeline interface {
	Process(ctx context.Context, accountID string, raw []byte) *core.DraftResult
}
