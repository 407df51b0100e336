package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeEmails applies the relationship and recipient filters and ignores exclusions
type fakeEmails struct {
	core.EmailRepository
	rows []core.StoredEmail
	last core.CandidateQuery
}

func (f *fakeEmails) FetchCandidates(_ context.Context, q core.CandidateQuery) ([]core.StoredEmail, error) {
	f.last = q
	out := []core.StoredEmail{}
	for _, r := range f.rows {
		if q.Relationship != "" && r.Relationship != q.Relationship {
			continue
		}
		if q.Recipient != "" && r.Recipient != q.Recipient {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

type fakeKeywords struct {
	enc *embedding.BM25
}

func (f fakeKeywords) KeywordEncoder(context.Context, string) (*embedding.BM25, error) {
	if f.enc == nil {
		return nil, core.ErrNotFound
	}
	return f.enc, nil
}

func newTestService(rows []core.StoredEmail, weights Weights, kw KeywordSource) (*Service, *fakeEmails) {
	repo := &fakeEmails{rows: rows}
	s := NewService(repo, kw, weights, 100, zap.NewNop())
	s.now = func() time.Time { return now }
	return s, repo
}

func daysAgo(n int) time.Time { return now.Add(-time.Duration(n) * day) }

func TestTemporalFactorBoundaries(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{0, 1.0}, {90, 1.0}, {91, 0.85}, {180, 0.85}, {181, 0.7}, {365, 0.7}, {366, 0.5}, {2000, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TemporalFactor(time.Duration(tt.days)*day), "days=%d", tt.days)
	}
}

func TestSearchScoresRanksAndFilters(t *testing.T) {
	rows := []core.StoredEmail{
		{ID: "a", Recipient: "x@ex.com", Body: "A", SentAt: daysAgo(400), SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}},
		{ID: "b", Recipient: "boss@ex.com", Body: "B", SentAt: daysAgo(10), SemanticVector: []float32{0, 1}, StyleVector: []float32{1, 0}},
		{ID: "c", Recipient: "x@ex.com", Body: "C", SentAt: daysAgo(1), SemanticVector: []float32{1, 0}, StyleVector: []float32{0, 1}},
	}
	s, _ := newTestService(rows, DefaultWeights, nil)

	res, err := s.Search(context.Background(), Query{
		UserID:         "u1",
		Sender:         "Boss@ex.com",
		SemanticVector: []float32{2, 0},
		StyleVector:    []float32{3, 0},
		MinScore:       0.5,
		TopN:           5,
	})
	require.NoError(t, err)
	require.Len(t, res.Examples, 2)

	b, a := res.Examples[0], res.Examples[1]
	assert.Equal(t, "b", b.ID)
	assert.InDelta(t, 0.6, b.Scores.Combined, 1e-5)
	assert.InDelta(t, 0.6, b.Scores.Temporal, 1e-5)
	assert.True(t, b.Metadata.IsDirectCorrespondence)

	assert.Equal(t, "a", a.ID)
	assert.InDelta(t, 1.0, a.Scores.Combined, 1e-5)
	assert.InDelta(t, 0.5, a.Scores.Temporal, 1e-5)
	assert.False(t, a.Metadata.IsDirectCorrespondence)

	assert.Equal(t, 3, res.Stats.CandidateCount)
	assert.Equal(t, 2, res.Stats.Returned)
	assert.InDelta(t, 2.0/3.0, res.Stats.AvgSemantic, 1e-5)
	assert.InDelta(t, 2.0/3.0, res.Stats.AvgStyle, 1e-5)
}

func TestSearchScoresStayInRange(t *testing.T) {
	rows := []core.StoredEmail{
		{ID: "opp", SentAt: daysAgo(1), SemanticVector: []float32{-5, 0}, StyleVector: []float32{0, -7}},
	}
	s, _ := newTestService(rows, DefaultWeights, nil)
	res, err := s.Search(context.Background(), Query{SemanticVector: []float32{9, 0}, StyleVector: []float32{0, 0.1}, MinScore: -2})
	require.NoError(t, err)
	require.Len(t, res.Examples, 1)
	sc := res.Examples[0].Scores
	assert.InDelta(t, -1.0, sc.Semantic, 1e-5)
	assert.InDelta(t, -1.0, sc.Style, 1e-5)
	assert.GreaterOrEqual(t, sc.Semantic, -1.0)
}

func TestSearchNeverReturnsExcludedIDs(t *testing.T) {
	var rows []core.StoredEmail
	rels := []string{"colleague", "friend"}
	recips := []string{"a@ex.com", "b@ex.com"}
	for i := 0; i < 12; i++ {
		rows = append(rows, core.StoredEmail{
			ID:             fmt.Sprintf("e%d", i),
			Relationship:   rels[i%2],
			Recipient:      recips[(i/2)%2],
			SentAt:         daysAgo(i * 40),
			SemanticVector: []float32{1, float32(i) / 10},
			StyleVector:    []float32{float32(i) / 10, 1},
		})
	}
	s, repo := newTestService(rows, DefaultWeights, nil)

	exclusions := [][]string{nil, {"e0"}, {"e1", "e2", "e3"}, {"e4", "e5", "e6", "e7", "e8", "e9", "e10", "e11"}}
	for _, rel := range append([]string{""}, rels...) {
		for _, recip := range append([]string{""}, recips...) {
			for _, excl := range exclusions {
				res, err := s.Search(context.Background(), Query{
					Relationship:   rel,
					Recipient:      recip,
					ExcludeIDs:     excl,
					SemanticVector: []float32{1, 1},
					StyleVector:    []float32{1, 1},
					MinScore:       -1,
				})
				require.NoError(t, err)
				assert.Equal(t, excl, repo.last.ExcludeIDs)
				for _, ex := range res.Examples {
					assert.NotContains(t, excl, ex.ID, "rel=%q recip=%q", rel, recip)
				}
			}
		}
	}
}

func TestSearchSkipsIneligibleVectors(t *testing.T) {
	rows := []core.StoredEmail{
		{ID: "zero", SentAt: daysAgo(1), SemanticVector: []float32{0, 0}, StyleVector: []float32{1, 0}},
		{ID: "short", SentAt: daysAgo(1), SemanticVector: []float32{1}, StyleVector: []float32{1, 0}},
		{ID: "missing", SentAt: daysAgo(1)},
		{ID: "ok", SentAt: daysAgo(1), SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}},
	}
	s, _ := newTestService(rows, DefaultWeights, nil)
	res, err := s.Search(context.Background(), Query{SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}})
	require.NoError(t, err)
	require.Len(t, res.Examples, 1)
	assert.Equal(t, "ok", res.Examples[0].ID)
	assert.Equal(t, 4, res.Stats.CandidateCount)
	assert.Equal(t, 1, res.Stats.Eligible)
}

func TestSearchEmptyAndInvalid(t *testing.T) {
	s, _ := newTestService(nil, DefaultWeights, nil)
	res, err := s.Search(context.Background(), Query{SemanticVector: []float32{1}, StyleVector: []float32{1}})
	require.NoError(t, err)
	assert.Empty(t, res.Examples)

	_, err = s.Search(context.Background(), Query{SemanticVector: []float32{0}, StyleVector: []float32{1}})
	assert.Error(t, err)
}

func TestSearchTopN(t *testing.T) {
	var rows []core.StoredEmail
	for i := 0; i < 10; i++ {
		rows = append(rows, core.StoredEmail{ID: fmt.Sprintf("e%d", i), SentAt: daysAgo(i), SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}})
	}
	s, _ := newTestService(rows, DefaultWeights, nil)
	res, err := s.Search(context.Background(), Query{SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}, TopN: 3})
	require.NoError(t, err)
	require.Len(t, res.Examples, 3)
	// equal scores fall back to most recent first
	assert.Equal(t, []string{"e0", "e1", "e2"}, []string{res.Examples[0].ID, res.Examples[1].ID, res.Examples[2].ID})
}

func TestSearchKeywordAxis(t *testing.T) {
	rows := []core.StoredEmail{
		{ID: "invoice", Body: "the invoice for march is attached", SentAt: daysAgo(1), SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}},
		{ID: "lunch", Body: "lunch on friday works for me", SentAt: daysAgo(1), SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}},
	}
	enc := embedding.NewBM25(embedding.DefaultK1, embedding.DefaultB)
	enc.Fit([]string{rows[0].Body, rows[1].Body})

	s, _ := newTestService(rows, Weights{Semantic: 0.4, Style: 0.4, Keyword: 0.2}, fakeKeywords{enc: enc})
	res, err := s.Search(context.Background(), Query{
		SemanticVector: []float32{1, 0},
		StyleVector:    []float32{1, 0},
		Text:           "where is the march invoice",
	})
	require.NoError(t, err)
	require.Len(t, res.Examples, 2)
	assert.Equal(t, "invoice", res.Examples[0].ID)
	assert.Greater(t, res.Examples[0].Scores.Keyword, 0.0)
	assert.Zero(t, res.Examples[1].Scores.Keyword)

	// without an encoder the axis contributes nothing
	s, _ = newTestService(rows, Weights{Semantic: 0.4, Style: 0.4, Keyword: 0.2}, fakeKeywords{})
	res, err = s.Search(context.Background(), Query{SemanticVector: []float32{1, 0}, StyleVector: []float32{1, 0}, Text: "invoice"})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.Examples[0].Scores.Combined, 1e-5)
}
