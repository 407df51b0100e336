package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KeywordTarget is the profile target holding the fitted BM25 state of a user
const KeywordTarget = core.KeywordTarget

// Engine pairs the semantic and style encoders
type Engine struct {
	semantic core.Embedder
	style    core.Embedder
}

// NewEngine creates an engine from two independent encoders
func NewEngine(semantic, style core.Embedder) *Engine {
	return &Engine{semantic: semantic, style: style}
}

// Encode returns the semantic and style vectors of one text. Both encoders run concurrently.
func (e *Engine) Encode(ctx context.Context, text string) (semantic, style []float32, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.semantic.Embed(gctx, text)
		if err != nil {
			return fmt.Errorf("semantic encoding: %w", err)
		}
		if err := checkDimensions("semantic", e.semantic, v); err != nil {
			return err
		}
		semantic = v
		return nil
	})
	g.Go(func() error {
		v, err := e.style.Embed(gctx, text)
		if err != nil {
			return fmt.Errorf("style encoding: %w", err)
		}
		if err := checkDimensions("style", e.style, v); err != nil {
			return err
		}
		style = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return semantic, style, nil
}

// EncodeBatch encodes texts on both axes, in input order
func (e *Engine) EncodeBatch(ctx context.Context, texts []string) (semantic, style [][]float32, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.semantic.EmbedBatch(gctx, texts)
		if err != nil {
			return fmt.Errorf("semantic encoding: %w", err)
		}
		if err := checkDimensions("semantic", e.semantic, v...); err != nil {
			return err
		}
		semantic = v
		return nil
	})
	g.Go(func() error {
		v, err := e.style.EmbedBatch(gctx, texts)
		if err != nil {
			return fmt.Errorf("style encoding: %w", err)
		}
		if err := checkDimensions("style", e.style, v...); err != nil {
			return err
		}
		style = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(semantic) != len(texts) || len(style) != len(texts) {
		return nil, nil, fmt.Errorf("encoders returned %d/%d vectors for %d texts", len(semantic), len(style), len(texts))
	}
	return semantic, style, nil
}

// checkDimensions rejects vectors whose length differs from the encoder's configured size.
// An encoder reporting 0 dimensions keeps its native size and is not checked.
func checkDimensions(axis string, enc core.Embedder, vectors ...[]float32) error {
	want := enc.Dimensions()
	if want <= 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%s encoding: got %d dimensions, want %d", axis, len(v), want)
		}
	}
	return nil
}

// Indexer fills missing vectors of stored emails and keeps the keyword encoder of each user fitted
type Indexer struct {
	engine      *Engine
	emails      core.EmailRepository
	profiles    core.ProfileRepository
	corpusLimit int
	logger      *zap.Logger
}

// NewIndexer creates an indexer. corpusLimit bounds the documents the BM25 encoder is fitted on.
func NewIndexer(engine *Engine, emails core.EmailRepository, profiles core.ProfileRepository, corpusLimit int, logger *zap.Logger) *Indexer {
	if corpusLimit <= 0 {
		corpusLimit = 500
	}
	return &Indexer{engine: engine, emails: emails, profiles: profiles, corpusLimit: corpusLimit, logger: logger}
}

// IndexPending embeds up to limit stored emails that lack vectors and refits the user's BM25 encoder.
// It returns the number of emails embedded.
func (ix *Indexer) IndexPending(ctx context.Context, userID string, limit int) (int, error) {
	pending, err := ix.emails.ListUnembedded(ctx, userID, limit)
	if err != nil {
		return 0, fmt.Errorf("list unembedded: %w", err)
	}

	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, e := range pending {
			texts[i] = e.Body
		}
		sem, style, err := ix.engine.EncodeBatch(ctx, texts)
		if err != nil {
			return 0, err
		}
		for i, e := range pending {
			if err := ix.emails.SaveVectors(ctx, e.ID, sem[i], style[i]); err != nil {
				return i, fmt.Errorf("save vectors for %s: %w", e.ID, err)
			}
		}
		ix.logger.Info("Embedded stored emails",
			zap.String("user_id", userID),
			zap.Int("count", len(pending)))
	}

	if err := ix.RefitKeywords(ctx, userID); err != nil {
		return len(pending), err
	}
	return len(pending), nil
}

// RefitKeywords fits a BM25 encoder on the user's reply corpus and stores its state
func (ix *Indexer) RefitKeywords(ctx context.Context, userID string) error {
	corpus, err := ix.emails.LoadReplyCorpus(ctx, userID, core.AggregateRelationship, ix.corpusLimit)
	if err != nil {
		return fmt.Errorf("load reply corpus: %w", err)
	}
	if len(corpus) == 0 {
		return nil
	}

	enc := NewBM25(DefaultK1, DefaultB)
	enc.Fit(corpus)
	data, err := enc.MarshalState()
	if err != nil {
		return err
	}
	if err := ix.profiles.Set(ctx, &core.ProfileEntry{
		UserID:    userID,
		Target:    KeywordTarget,
		Data:      data,
		UpdatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("store bm25 state: %w", err)
	}

	ix.logger.Debug("Refitted keyword encoder",
		zap.String("user_id", userID),
		zap.Int("documents", len(corpus)),
		zap.Int("vocabulary", enc.VocabularySize()))
	return nil
}

// KeywordEncoder loads the stored BM25 encoder of a user
func (ix *Indexer) KeywordEncoder(ctx context.Context, userID string) (*BM25, error) {
	entry, err := ix.profiles.Get(ctx, userID, KeywordTarget)
	if err != nil {
		return nil, fmt.Errorf("load bm25 state: %w", err)
	}
	return LoadBM25(entry.Data)
}
