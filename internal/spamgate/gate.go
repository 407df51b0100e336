package spamgate

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/llm-reply-drafter/internal/contract"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/whitelist"
	"go.uber.org/zap"
)

// DefaultWhitelistThreshold is the number of prior replies that marks established correspondence
const DefaultWhitelistThreshold = 2

// ModelWhitelist is recorded as the model of verdicts that skipped the classifier
const ModelWhitelist = "whitelist"

// ResponseHistory counts the replies a user has sent to an address
type ResponseHistory interface {
	CountRepliesTo(ctx context.Context, userID, address string) (int, error)
}

// Input is what the gate needs to judge one email
type Input struct {
	UserID       string
	Sender       string
	ReplyTo      string
	Subject      string
	Body         string
	DisplayNames []string
}

// Gate decides whether an incoming email is spam
type Gate struct {
	history   ResponseHistory
	invoker   core.ModelInvoker
	domains   *whitelist.Checker
	threshold int
	logger    *zap.Logger
}

// New creates a spam gate. Thresholds above DefaultWhitelistThreshold are capped to it.
func New(history ResponseHistory, invoker core.ModelInvoker, domains *whitelist.Checker, threshold int, logger *zap.Logger) *Gate {
	if threshold <= 0 || threshold > DefaultWhitelistThreshold {
		threshold = DefaultWhitelistThreshold
	}
	return &Gate{
		history:   history,
		invoker:   invoker,
		domains:   domains,
		threshold: threshold,
		logger:    logger,
	}
}

type classification struct {
	IsSpam     bool     `json:"isSpam"`
	Indicators []string `json:"spamIndicators"`
}

// Check returns the spam verdict for an email
func (g *Gate) Check(ctx context.Context, in Input) (*core.SpamVerdict, error) {
	count, err := g.responseCount(ctx, in)
	if err != nil {
		return nil, err
	}

	if count >= g.threshold {
		g.logger.Info("Skipping spam check for established correspondent",
			zap.String("sender", in.Sender),
			zap.Int("response_count", count),
			zap.String("action", "whitelist_bypass"))
		return whitelisted(count), nil
	}

	if g.domains != nil && g.domains.IsWhitelisted(in.Sender) {
		g.logger.Info("Skipping spam check for whitelisted domain",
			zap.String("sender", in.Sender),
			zap.String("action", "whitelist_bypass"))
		return whitelisted(count), nil
	}

	var out classification
	err = g.invoker.Invoke(ctx, core.ModelCall{
		Stage:   "spam",
		Prompt:  buildPrompt(in, count),
		Options: core.GenerateOptions{JSON: true, System: systemPrompt},
		Parse: func(raw string) error {
			out = classification{}
			return contract.Decode("spam", raw, &out, "isSpam", "spamIndicators")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("spam classification: %w", err)
	}

	indicators := out.Indicators
	if indicators == nil {
		indicators = []string{}
	}
	g.logger.Debug("Spam classification complete",
		zap.String("sender", in.Sender),
		zap.Bool("is_spam", out.IsSpam),
		zap.Strings("indicators", indicators))

	return &core.SpamVerdict{
		IsSpam:              out.IsSpam,
		Indicators:          indicators,
		SenderResponseCount: count,
		ModelUsed:           g.invoker.Model(),
	}, nil
}

// responseCount is the larger of the reply counts to the sender and to a distinct reply-to address
func (g *Gate) responseCount(ctx context.Context, in Input) (int, error) {
	count, err := g.history.CountRepliesTo(ctx, in.UserID, in.Sender)
	if err != nil {
		return 0, fmt.Errorf("count replies to sender: %w", err)
	}
	if in.ReplyTo == "" || strings.EqualFold(in.ReplyTo, in.Sender) {
		return count, nil
	}
	viaReplyTo, err := g.history.CountRepliesTo(ctx, in.UserID, in.ReplyTo)
	if err != nil {
		return 0, fmt.Errorf("count replies to reply-to: %w", err)
	}
	return max(count, viaReplyTo), nil
}

func whitelisted(count int) *core.SpamVerdict {
	return &core.SpamVerdict{
		IsSpam:              false,
		Indicators:          []string{},
		SenderResponseCount: count,
		Whitelisted:         true,
		ModelUsed:           ModelWhitelist,
	}
}
