// Package orchestrator turns an incoming email into a silent or reply draft.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/llm-reply-drafter/internal/contract"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/metrics"
	"github.com/mikey/llm-reply-drafter/internal/retrieval"
	"github.com/mikey/llm-reply-drafter/internal/spamgate"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UnknownRelationship is used for senders without a stored relationship
const UnknownRelationship = "unknown"

const (
	stageClassify = "classify"
	stageResponse = "response"
)

// Parser turns raw bytes into a normalized email
type Parser interface {
	Normalize(raw []byte) (*core.NormalizedEmail, error)
}

// SpamChecker judges incoming email
type SpamChecker interface {
	Check(ctx context.Context, in spamgate.Input) (*core.SpamVerdict, error)
}

// QueryEncoder produces the semantic and style vectors of the incoming email
type QueryEncoder interface {
	Encode(ctx context.Context, text string) (semantic, style []float32, err error)
}

// ExampleSearcher selects past emails to imitate
type ExampleSearcher interface {
	Search(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// PatternSource returns the writing patterns of a relationship
type PatternSource interface {
	Patterns(ctx context.Context, userID, relationship string, names ...string) (*core.WritingPatterns, error)
}

// StyleSource returns the aggregated style profile of a relationship
type StyleSource interface {
	Profile(ctx context.Context, userID, relationship string) (*core.StyleProfile, error)
}

// Options tunes example selection
type Options struct {
	TopN     int
	MinScore float64
	// Lookback bounds the age of examples; zero means no bound
	Lookback time.Duration
}

// Deps are the collaborators of the orchestrator. Encoder, Searcher, Styles and Drafts may be nil.
type Deps struct {
	Parser   Parser
	Accounts core.AccountRepository
	Spam     SpamChecker
	Invoker  core.ModelInvoker
	Encoder  QueryEncoder
	Searcher ExampleSearcher
	Patterns PatternSource
	Styles   StyleSource
	Drafts   core.DraftRepository
}

// Orchestrator runs the draft pipeline for one email at a time. It is safe for concurrent use.
type Orchestrator struct {
	deps    Deps
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an orchestrator
func New(deps Deps, opts Options, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Process runs the pipeline and wraps the outcome in the delivery envelope
func (o *Orchestrator) Process(ctx context.Context, accountID string, raw []byte) *core.DraftResult {
	start := time.Now()
	draft, err := o.Draft(ctx, accountID, raw)
	o.metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		code := core.CodeOf(err)
		o.metrics.DraftsTotal.WithLabelValues("failed").Inc()
		o.logger.Error("Draft pipeline failed",
			zap.String("account_id", accountID),
			zap.String("error_code", string(code)),
			zap.Error(err))
		return &core.DraftResult{Error: err.Error(), ErrorCode: code}
	}

	kind := "reply"
	if draft.IsSilent() {
		kind = "silent"
	}
	o.metrics.DraftsTotal.WithLabelValues(kind).Inc()
	return &core.DraftResult{Success: true, Draft: draft}
}

// Draft runs every stage and returns the finished draft. No draft is returned on error.
func (o *Orchestrator) Draft(ctx context.Context, accountID string, raw []byte) (*core.Draft, error) {
	email, err := o.deps.Parser.Normalize(raw)
	if err != nil {
		return nil, err
	}

	account, err := o.deps.Accounts.GetAccount(ctx, accountID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	rel, err := o.relationship(ctx, account.UserID, email.Sender())
	if err != nil {
		return nil, err
	}

	verdict, err := o.deps.Spam.Check(ctx, spamgate.Input{
		UserID:       account.UserID,
		Sender:       email.Sender(),
		ReplyTo:      email.ReplyToAddress(),
		Subject:      email.Subject,
		Body:         email.SafeBody,
		DisplayNames: account.DisplayNames,
	})
	if err != nil {
		return nil, err
	}

	cc := classifyContext{email: email, account: account, relationship: rel, verdict: verdict}
	if verdict.IsSpam {
		o.logger.Info("Email classified as spam",
			zap.String("message_id", email.MessageID),
			zap.Strings("indicators", verdict.Indicators))
		return o.finish(ctx, cc, core.ActionSilentSpam, nil, "", 0)
	}

	action, considerations, err := o.classify(ctx, cc)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("Action classified",
		zap.String("message_id", email.MessageID),
		zap.String("action", string(action)))

	silent, err := action.IsSilent()
	if err != nil {
		return nil, err
	}
	if silent {
		return o.finish(ctx, cc, action, considerations, "", 0)
	}

	rc, err := o.gather(ctx, cc)
	if err != nil {
		return nil, err
	}
	rc.action = action
	rc.considerations = considerations

	message, err := o.respond(ctx, rc)
	if err != nil {
		return nil, err
	}
	return o.finish(ctx, cc, action, considerations, message, len(rc.examples))
}

func (o *Orchestrator) relationship(ctx context.Context, userID, sender string) (core.Relationship, error) {
	if sender == "" {
		return core.Relationship{Type: UnknownRelationship}, nil
	}
	rel, err := o.deps.Accounts.GetRelationship(ctx, userID, sender)
	if errors.Is(err, core.ErrNotFound) {
		return core.Relationship{Type: UnknownRelationship}, nil
	}
	if err != nil {
		return core.Relationship{}, fmt.Errorf("load relationship: %w", err)
	}
	return *rel, nil
}

type classification struct {
	RecommendedAction string   `json:"recommendedAction"`
	KeyConsiderations []string `json:"keyConsiderations"`
}

func (o *Orchestrator) classify(ctx context.Context, cc classifyContext) (core.Action, []string, error) {
	var (
		out    classification
		action core.Action
	)
	err := o.deps.Invoker.Invoke(ctx, core.ModelCall{
		Stage:   stageClassify,
		Prompt:  buildClassifyPrompt(cc),
		Options: core.GenerateOptions{JSON: true, System: classifySystemPrompt},
		Parse: func(raw string) error {
			out = classification{}
			if err := contract.Decode("classification", raw, &out, "recommendedAction", "keyConsiderations"); err != nil {
				return err
			}
			a, err := core.ParseAction(out.RecommendedAction)
			if err != nil {
				return &core.JSONContractError{Contract: "classification", Reason: err.Error(), Raw: raw}
			}
			action = a
			return nil
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("action classification: %w", err)
	}
	return action, out.KeyConsiderations, nil
}

// patternKey is the relationship the pattern cache is keyed by
func patternKey(rel core.Relationship) string {
	if rel.Type == "" || rel.Type == UnknownRelationship {
		return core.AggregateRelationship
	}
	return rel.Type
}

// gather loads examples, writing patterns and the style profile concurrently
func (o *Orchestrator) gather(ctx context.Context, cc classifyContext) (responseContext, error) {
	rc := responseContext{classifyContext: cc}
	userID := cc.account.UserID
	key := patternKey(cc.relationship)

	g, gctx := errgroup.WithContext(ctx)
	if o.deps.Encoder != nil && o.deps.Searcher != nil {
		g.Go(func() error {
			examples, err := o.examples(gctx, cc)
			rc.examples = examples
			return err
		})
	}
	g.Go(func() error {
		p, err := o.deps.Patterns.Patterns(gctx, userID, key, cc.account.DisplayNames...)
		if err != nil {
			return fmt.Errorf("writing patterns: %w", err)
		}
		rc.patterns = p
		return nil
	})
	if o.deps.Styles != nil {
		g.Go(func() error {
			p, err := o.deps.Styles.Profile(gctx, userID, key)
			if err != nil {
				return fmt.Errorf("style profile: %w", err)
			}
			rc.style = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return responseContext{}, err
	}
	return rc, nil
}

func (o *Orchestrator) examples(ctx context.Context, cc classifyContext) ([]core.Example, error) {
	semantic, style, err := o.deps.Encoder.Encode(ctx, cc.email.Subject+"\n\n"+cc.email.SafeBody)
	if err != nil {
		return nil, fmt.Errorf("encode incoming email: %w", err)
	}

	q := retrieval.Query{
		UserID:         cc.account.UserID,
		Sender:         cc.email.Sender(),
		SemanticVector: semantic,
		StyleVector:    style,
		Text:           cc.email.SafeBody,
		MinScore:       o.opts.MinScore,
		TopN:           o.opts.TopN,
	}
	if cc.relationship.Type != UnknownRelationship {
		q.Relationship = cc.relationship.Type
	}
	if o.opts.Lookback > 0 {
		q.To = o.now()
		q.From = q.To.Add(-o.opts.Lookback)
	}

	res, err := o.deps.Searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("example search: %w", err)
	}
	return res.Examples, nil
}

type response struct {
	Message string `json:"message"`
}

func (o *Orchestrator) respond(ctx context.Context, rc responseContext) (string, error) {
	var out response
	err := o.deps.Invoker.Invoke(ctx, core.ModelCall{
		Stage:   stageResponse,
		Prompt:  buildResponsePrompt(rc),
		Options: core.GenerateOptions{JSON: true, System: responseSystemPrompt, Temperature: 0.7},
		Parse: func(raw string) error {
			out = response{}
			if err := contract.Decode("response", raw, &out, "message"); err != nil {
				return err
			}
			if strings.TrimSpace(out.Message) == "" {
				return &core.JSONContractError{Contract: "response", Reason: "empty message", Raw: raw}
			}
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("response generation: %w", err)
	}
	return StripSignature(out.Message, rc.account.DisplayNames), nil
}

// finish assembles the draft and persists it
func (o *Orchestrator) finish(ctx context.Context, cc classifyContext, action core.Action, considerations []string, message string, exampleCount int) (*core.Draft, error) {
	mode, err := action.Recipients()
	if err != nil {
		return nil, err
	}
	silent, err := action.IsSilent()
	if err != nil {
		return nil, err
	}
	to, ccList, err := resolveRecipients(mode, cc.email, cc.account)
	if err != nil {
		return nil, err
	}

	draft := &core.Draft{
		ID:                uuid.NewString(),
		AccountID:         cc.account.ID,
		OriginalMessageID: cc.email.MessageID,
		To:                to,
		Cc:                ccList,
		Subject:           replySubject(cc.email.Subject, mode),
		InReplyTo:         cc.email.MessageID,
		References:        references(cc.email),
		Action:            action,
		Metadata: core.DraftMetadata{
			SpamVerdict:       *cc.verdict,
			Relationship:      cc.relationship,
			ExampleCount:      exampleCount,
			KeyConsiderations: considerations,
			GeneratedAt:       o.now().UTC(),
			ModelUsed:         o.deps.Invoker.Model(),
		},
	}
	if !silent {
		draft.Body = core.DraftBody{
			Text: quoteText(message, cc.email, mode),
			HTML: quoteHTML(message, cc.email, mode),
		}
	}

	if o.deps.Drafts != nil {
		if err := o.deps.Drafts.SaveDraft(ctx, draft); err != nil {
			return nil, fmt.Errorf("save draft: %w", err)
		}
	}

	o.logger.Info("Draft created",
		zap.String("draft_id", draft.ID),
		zap.String("message_id", cc.email.MessageID),
		zap.String("action", string(action)),
		zap.Int("examples", exampleCount))
	return draft, nil
}
