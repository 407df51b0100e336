package retrieval

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/mikey/llm-reply-drafter/internal/vector"
	"github.com/philippgille/chromem-go"
)

var errPrecomputedOnly = errors.New("ephemeral index holds precomputed vectors only")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// ephemeralIndex is an in-memory similarity index over one candidate set. It is built per query and discarded.
type ephemeralIndex struct {
	db *chromem.DB
	n  int
}

// newEphemeralIndex creates an index with one collection per axis
func newEphemeralIndex() *ephemeralIndex {
	return &ephemeralIndex{db: chromem.NewDB()}
}

// add stores the vectors of one axis keyed by email id
func (x *ephemeralIndex) add(ctx context.Context, axis string, ids []string, vecs [][]float32) error {
	coll, err := x.db.CreateCollection(axis, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("create %s collection: %w", axis, err)
	}
	docs := make([]chromem.Document, len(ids))
	for i, id := range ids {
		docs[i] = chromem.Document{ID: id, Embedding: vecs[i]}
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("index %s vectors: %w", axis, err)
	}
	x.n = len(ids)
	return nil
}

// similarities returns the cosine similarity of every indexed document to the query on one axis
func (x *ephemeralIndex) similarities(ctx context.Context, axis string, query []float32) (map[string]float64, error) {
	out := make(map[string]float64, x.n)
	if x.n == 0 {
		return out, nil
	}
	coll := x.db.GetCollection(axis, noEmbedding)
	if coll == nil {
		return nil, fmt.Errorf("no %s collection", axis)
	}
	results, err := coll.QueryEmbedding(ctx, vector.Normalize(query), coll.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s collection: %w", axis, err)
	}
	for _, r := range results {
		out[r.ID] = clamp(float64(r.Similarity))
	}
	return out, nil
}

func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
