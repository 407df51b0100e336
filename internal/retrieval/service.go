package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/embedding"
	"github.com/mikey/llm-reply-drafter/internal/vector"
	"go.uber.org/zap"
)

// Weights are the per-axis weights of the combined score
type Weights struct {
	Semantic float64
	Style    float64
	Keyword  float64
}

// DefaultWeights favours style over topic
var DefaultWeights = Weights{Semantic: 0.4, Style: 0.6}

// KeywordSource loads the fitted BM25 encoder of a user. It returns core.ErrNotFound when none exists.
type KeywordSource interface {
	KeywordEncoder(ctx context.Context, userID string) (*embedding.BM25, error)
}

// Query describes one example search
type Query struct {
	UserID       string
	Relationship string
	Recipient    string
	// Sender of the incoming email, used to flag direct correspondence
	Sender         string
	From           time.Time
	To             time.Time
	ExcludeIDs     []string
	SemanticVector []float32
	StyleVector    []float32
	// Text feeds the keyword axis when it is enabled
	Text     string
	MinScore float64
	TopN     int
}

// Stats summarizes one search
type Stats struct {
	CandidateCount int           `json:"candidateCount"`
	Eligible       int           `json:"eligible"`
	Returned       int           `json:"returned"`
	AvgSemantic    float64       `json:"avgSemantic"`
	AvgStyle       float64       `json:"avgStyle"`
	AvgKeyword     float64       `json:"avgKeyword,omitempty"`
	FetchTime      time.Duration `json:"fetchTime"`
	ScoreTime      time.Duration `json:"scoreTime"`
	TotalTime      time.Duration `json:"totalTime"`
}

// Result is the ranked examples with search statistics
type Result struct {
	Examples []core.Example
	Stats    Stats
}

// Service selects past emails that are closest to an incoming email in topic and style
type Service struct {
	emails         core.EmailRepository
	keywords       KeywordSource
	weights        Weights
	candidateLimit int
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a retrieval service. keywords may be nil when the keyword axis is unused.
func NewService(emails core.EmailRepository, keywords KeywordSource, weights Weights, candidateLimit int, logger *zap.Logger) *Service {
	if candidateLimit <= 0 {
		candidateLimit = 300
	}
	return &Service{
		emails:         emails,
		keywords:       keywords,
		weights:        weights,
		candidateLimit: candidateLimit,
		logger:         logger,
		now:            time.Now,
	}
}

type candidate struct {
	email    core.StoredEmail
	semantic []float32
	style    []float32
}

// Search runs the two-phase search: a bounded candidate fetch followed by in-memory scoring
func (s *Service) Search(ctx context.Context, q Query) (*Result, error) {
	start := s.now()
	if vector.Norm(q.SemanticVector) == 0 || vector.Norm(q.StyleVector) == 0 {
		return nil, fmt.Errorf("query vectors must be non-zero")
	}

	rows, err := s.emails.FetchCandidates(ctx, core.CandidateQuery{
		UserID:       q.UserID,
		Relationship: q.Relationship,
		Recipient:    q.Recipient,
		From:         q.From,
		To:           q.To,
		ExcludeIDs:   q.ExcludeIDs,
		Limit:        s.candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	fetched := s.now()

	excluded := make(map[string]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}

	cands := make([]candidate, 0, len(rows))
	for _, row := range rows {
		if excluded[row.ID] || row.ID == "" {
			continue
		}
		if len(row.SemanticVector) != len(q.SemanticVector) || len(row.StyleVector) != len(q.StyleVector) {
			continue
		}
		if vector.Norm(row.SemanticVector) == 0 || vector.Norm(row.StyleVector) == 0 {
			continue
		}
		cands = append(cands, candidate{
			email:    row,
			semantic: vector.Normalize(row.SemanticVector),
			style:    vector.Normalize(row.StyleVector),
		})
	}
	if skipped := len(rows) - len(cands); skipped > 0 {
		s.logger.Debug("Skipped ineligible candidates", zap.Int("skipped", skipped))
	}

	semScores, styleScores, err := s.scoreDense(ctx, q, cands)
	if err != nil {
		return nil, err
	}
	kwScores := s.scoreKeywords(ctx, q, cands)

	now := s.now()
	stats := Stats{CandidateCount: len(rows), Eligible: len(cands)}
	examples := make([]core.Example, 0, len(cands))
	for _, c := range cands {
		id := c.email.ID
		scores := core.ExampleScores{
			Semantic: semScores[id],
			Style:    styleScores[id],
			Keyword:  kwScores[id],
		}
		scores.Combined = s.weights.Semantic*scores.Semantic + s.weights.Style*scores.Style + s.weights.Keyword*scores.Keyword
		scores.Temporal = scores.Combined * TemporalFactor(now.Sub(c.email.SentAt))

		stats.AvgSemantic += scores.Semantic
		stats.AvgStyle += scores.Style
		stats.AvgKeyword += scores.Keyword

		if scores.Combined < q.MinScore {
			continue
		}
		examples = append(examples, core.Example{
			ID:     id,
			Text:   c.email.Body,
			Scores: scores,
			Metadata: core.ExampleMetadata{
				Recipient:              c.email.Recipient,
				Relationship:           c.email.Relationship,
				SentAt:                 c.email.SentAt,
				Subject:                c.email.Subject,
				IsDirectCorrespondence: q.Sender != "" && strings.EqualFold(c.email.Recipient, q.Sender),
			},
		})
	}
	if n := float64(len(cands)); n > 0 {
		stats.AvgSemantic /= n
		stats.AvgStyle /= n
		stats.AvgKeyword /= n
	}

	sort.SliceStable(examples, func(i, j int) bool {
		a, b := examples[i], examples[j]
		if a.Scores.Temporal != b.Scores.Temporal {
			return a.Scores.Temporal > b.Scores.Temporal
		}
		if !a.Metadata.SentAt.Equal(b.Metadata.SentAt) {
			return a.Metadata.SentAt.After(b.Metadata.SentAt)
		}
		return a.ID < b.ID
	})
	if q.TopN > 0 && len(examples) > q.TopN {
		examples = examples[:q.TopN]
	}

	end := s.now()
	stats.Returned = len(examples)
	stats.FetchTime = fetched.Sub(start)
	stats.ScoreTime = end.Sub(fetched)
	stats.TotalTime = end.Sub(start)

	s.logger.Debug("Example search complete",
		zap.String("user_id", q.UserID),
		zap.Int("candidates", stats.CandidateCount),
		zap.Int("returned", stats.Returned),
		zap.Float64("avg_semantic", stats.AvgSemantic),
		zap.Float64("avg_style", stats.AvgStyle),
		zap.Duration("took", stats.TotalTime))

	return &Result{Examples: examples, Stats: stats}, nil
}

func (s *Service) scoreDense(ctx context.Context, q Query, cands []candidate) (map[string]float64, map[string]float64, error) {
	if len(cands) == 0 {
		return map[string]float64{}, map[string]float64{}, nil
	}
	ids := make([]string, len(cands))
	sem := make([][]float32, len(cands))
	style := make([][]float32, len(cands))
	for i, c := range cands {
		ids[i], sem[i], style[i] = c.email.ID, c.semantic, c.style
	}

	index := newEphemeralIndex()
	if err := index.add(ctx, "semantic", ids, sem); err != nil {
		return nil, nil, err
	}
	if err := index.add(ctx, "style", ids, style); err != nil {
		return nil, nil, err
	}
	semScores, err := index.similarities(ctx, "semantic", q.SemanticVector)
	if err != nil {
		return nil, nil, err
	}
	styleScores, err := index.similarities(ctx, "style", q.StyleVector)
	if err != nil {
		return nil, nil, err
	}
	return semScores, styleScores, nil
}

// scoreKeywords fills the optional BM25 axis. A missing encoder disables the axis for this query.
func (s *Service) scoreKeywords(ctx context.Context, q Query, cands []candidate) map[string]float64 {
	out := map[string]float64{}
	if s.weights.Keyword <= 0 || s.keywords == nil || q.Text == "" || len(cands) == 0 {
		return out
	}
	enc, err := s.keywords.KeywordEncoder(ctx, q.UserID)
	if err != nil {
		s.logger.Debug("Keyword axis unavailable", zap.String("user_id", q.UserID), zap.Error(err))
		return out
	}
	query := enc.Encode(q.Text)
	for _, c := range cands {
		out[c.email.ID] = embedding.SparseCosine(query, enc.Encode(c.email.Body))
	}
	return out
}
