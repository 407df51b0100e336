// Package patterns mines the writing habits of a user from their sent replies.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/metrics"
	"go.uber.org/zap"
)

// CorpusSource loads the reply texts of a user
type CorpusSource interface {
	LoadReplyCorpus(ctx context.Context, userID, relationship string, limit int) ([]string, error)
}

// Options tunes the analyzer
type Options struct {
	Thresholds      Thresholds
	BatchSize       int
	ConfidenceFloor float64
	LockWait        time.Duration
	CorpusLimit     int
}

// Analyzer computes writing patterns per (user, relationship) and caches them.
// Concurrent requests for the same pair are serialized with a shared lock so that
// only one worker runs the expensive computation.
type Analyzer struct {
	corpus   CorpusSource
	profiles core.ProfileRepository
	locker   core.Locker
	invoker  core.ModelInvoker
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAnalyzer creates a writing pattern analyzer
func NewAnalyzer(corpus CorpusSource, profiles core.ProfileRepository, locker core.Locker, invoker core.ModelInvoker, opts Options, m *metrics.Metrics, logger *zap.Logger) *Analyzer {
	if opts.Thresholds.Short <= 0 || opts.Thresholds.Long <= 0 {
		opts.Thresholds = DefaultThresholds
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ConfidenceFloor <= 0 {
		opts.ConfidenceFloor = DefaultConfidenceFloor
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 2 * time.Second
	}
	if opts.CorpusLimit <= 0 {
		opts.CorpusLimit = 500
	}
	return &Analyzer{
		corpus:   corpus,
		profiles: profiles,
		locker:   locker,
		invoker:  invoker,
		opts:     opts,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// LockKey derives the advisory lock key of a (user, relationship) pair
func LockKey(userID, relationship string) int64 {
	return int64(xxhash.Sum64String(userID + "\x00" + relationship))
}

func target(relationship string) string {
	if relationship == "" {
		relationship = core.AggregateRelationship
	}
	return core.PatternsTargetPrefix + relationship
}

// Patterns returns cached writing patterns, computing and caching them on a miss.
// names are known personal names redacted before any text is sent to the model.
func (a *Analyzer) Patterns(ctx context.Context, userID, relationship string, names ...string) (*core.WritingPatterns, error) {
	if relationship == "" {
		relationship = core.AggregateRelationship
	}
	if p, err := a.cached(ctx, userID, relationship); err != nil || p != nil {
		if p != nil {
			a.metrics.PatternCache.WithLabelValues("hit").Inc()
		}
		return p, err
	}
	a.metrics.PatternCache.WithLabelValues("miss").Inc()

	key := LockKey(userID, relationship)
	acquired, err := a.locker.Acquire(ctx, key, a.opts.LockWait)
	if err != nil {
		a.logger.Warn("Pattern lock unavailable, computing without it",
			zap.String("user_id", userID),
			zap.String("relationship", relationship),
			zap.Error(err))
	}
	if acquired {
		defer func() {
			if err := a.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				a.logger.Warn("Failed to release pattern lock", zap.Int64("key", key), zap.Error(err))
			}
		}()
	} else if err == nil {
		a.logger.Info("Pattern computation in progress elsewhere",
			zap.String("user_id", userID),
			zap.String("relationship", relationship),
			zap.NamedError("signal", core.ErrLockContention))
	}

	// another worker may have finished while we waited for the lock
	if p, err := a.cached(ctx, userID, relationship); err != nil || p != nil {
		if p != nil {
			a.metrics.PatternCache.WithLabelValues("wait_hit").Inc()
		}
		return p, err
	}

	p, err := a.Compute(ctx, userID, relationship, names...)
	if err != nil {
		return nil, err
	}
	if p.EmailCount == 0 {
		return p, nil
	}
	if err := a.store(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Compute mines writing patterns from the corpus without touching the cache
func (a *Analyzer) Compute(ctx context.Context, userID, relationship string, names ...string) (*core.WritingPatterns, error) {
	start := a.now()
	texts, err := a.corpus.LoadReplyCorpus(ctx, userID, relationship, a.opts.CorpusLimit)
	if err != nil {
		return nil, fmt.Errorf("load reply corpus: %w", err)
	}

	p := &core.WritingPatterns{
		UserID:             userID,
		Relationship:       relationship,
		EmailCount:         len(texts),
		Sentences:          SentenceStatistics(SentenceLengths(texts), a.opts.Thresholds),
		ParagraphStructure: map[string]int{},
		OpeningLines:       map[string]int{},
		Valedictions:       map[string]int{},
		NegativePatterns:   []core.NegativePattern{},
		UniqueExpressions:  []core.UniqueExpression{},
	}
	if len(texts) == 0 {
		a.logger.Debug("No replies to mine",
			zap.String("user_id", userID),
			zap.String("relationship", relationship))
		return p, nil
	}
	p.ParagraphStructure, p.OpeningLines, p.Valedictions = Histograms(texts)

	q, err := mine(ctx, a.invoker, relationship, texts, NewRedactor(names...), a.opts.BatchSize, a.opts.ConfidenceFloor)
	if err != nil {
		return nil, err
	}
	p.NegativePatterns = q.negative
	p.ResponseTiming = q.timing
	p.UniqueExpressions = q.expressions
	p.LastCalculated = a.now()

	a.logger.Info("Writing patterns computed",
		zap.String("user_id", userID),
		zap.String("relationship", relationship),
		zap.Int("emails", len(texts)),
		zap.Int("negative_patterns", len(p.NegativePatterns)),
		zap.Int("expressions", len(p.UniqueExpressions)),
		zap.Duration("took", a.now().Sub(start)))
	return p, nil
}

// Clear drops the cached patterns of a pair so the next request recomputes them
func (a *Analyzer) Clear(ctx context.Context, userID, relationship string) error {
	if err := a.profiles.Delete(ctx, userID, target(relationship)); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("clear patterns: %w", err)
	}
	return nil
}

func (a *Analyzer) cached(ctx context.Context, userID, relationship string) (*core.WritingPatterns, error) {
	entry, err := a.profiles.Get(ctx, userID, target(relationship))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached patterns: %w", err)
	}
	var p core.WritingPatterns
	if err := json.Unmarshal(entry.Data, &p); err != nil {
		a.logger.Warn("Ignoring unreadable cached patterns",
			zap.String("user_id", userID),
			zap.String("relationship", relationship),
			zap.Error(err))
		return nil, nil
	}
	return &p, nil
}

func (a *Analyzer) store(ctx context.Context, p *core.WritingPatterns) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patterns: %w", err)
	}
	if err := a.profiles.Set(ctx, &core.ProfileEntry{
		UserID:    p.UserID,
		Target:    target(p.Relationship),
		Data:      data,
		UpdatedAt: p.LastCalculated,
	}); err != nil {
		return fmt.Errorf("cache patterns: %w", err)
	}
	return nil
}
