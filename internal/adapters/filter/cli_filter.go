package filter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/ports"
	"go.uber.org/zap"
)

// CliFilter drafts a reply for one message and prints the result
type CliFilter struct {
	pipeline ports.DraftPipeline
	out      io.Writer
	logger   *zap.Logger
	verbose  bool
}

// NewCliFilter creates a new CLI filter writing to out
func NewCliFilter(pipeline ports.DraftPipeline, out io.Writer, logger *zap.Logger, verbose bool) *CliFilter {
	return &CliFilter{
		pipeline: pipeline,
		out:      out,
		logger:   logger,
		verbose:  verbose,
	}
}

// ProcessEmail runs the pipeline and displays the draft
func (f *CliFilter) ProcessEmail(ctx context.Context, accountID string, raw []byte) *core.DraftResult {
	f.logger.Debug("Processing email", zap.String("account_id", accountID), zap.Int("bytes", len(raw)))

	fmt.Fprintf(f.out, "=== Drafting ===\n")
	fmt.Fprintf(f.out, "Account: %s\n", accountID)
	fmt.Fprintf(f.out, "Message size: %d bytes\n", len(raw))

	startTime := time.Now()
	res := f.pipeline.Process(ctx, accountID, raw)
	duration := time.Since(startTime)

	if !res.Success {
		fmt.Fprintf(f.out, "\n=== Failed ===\n")
		fmt.Fprintf(f.out, "Error code: %s\n", res.ErrorCode)
		fmt.Fprintf(f.out, "Error: %s\n", res.Error)
		fmt.Fprintf(f.out, "Processing time: %v\n", duration)
		return res
	}

	d := res.Draft
	fmt.Fprintf(f.out, "\n=== Draft ===\n")
	fmt.Fprintf(f.out, "Action: %s\n", d.Action)
	fmt.Fprintf(f.out, "To: %s\n", strings.Join(d.To, ", "))
	if len(d.Cc) > 0 {
		fmt.Fprintf(f.out, "Cc: %s\n", strings.Join(d.Cc, ", "))
	}
	fmt.Fprintf(f.out, "Subject: %s\n", d.Subject)
	fmt.Fprintf(f.out, "Spam: %t (prior replies: %d)\n", d.Metadata.SpamVerdict.IsSpam, d.Metadata.SpamVerdict.SenderResponseCount)
	fmt.Fprintf(f.out, "Relationship: %s (%.2f)\n", d.Metadata.Relationship.Type, d.Metadata.Relationship.Confidence)
	fmt.Fprintf(f.out, "Examples used: %d\n", d.Metadata.ExampleCount)
	if f.verbose && len(d.Metadata.KeyConsiderations) > 0 {
		fmt.Fprintf(f.out, "Considerations:\n")
		for _, k := range d.Metadata.KeyConsiderations {
			fmt.Fprintf(f.out, "  - %s\n", k)
		}
	}
	if d.IsSilent() {
		fmt.Fprintf(f.out, "\n(no reply body for silent action)\n")
	} else {
		fmt.Fprintf(f.out, "\n%s\n", d.Body.Text)
	}
	fmt.Fprintf(f.out, "\nModel used: %s\n", d.Metadata.ModelUsed)
	fmt.Fprintf(f.out, "Processing time: %v\n", duration)

	return res
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
