package clustering

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"go.uber.org/zap"
)

// StyleVectorSource loads stored style vectors keyed by email id
type StyleVectorSource interface {
	LoadStyleVectors(ctx context.Context, userID, relationship string) (map[string][]float32, error)
}

// Profiler builds the aggregated style profile of a relationship
type Profiler struct {
	vectors       StyleVectorSource
	clusters      core.ClusterRepository
	k             int
	maxIterations int
	seed          int64
	logger        *zap.Logger
}

// NewProfiler creates a style profiler. A zero seed draws a fresh seed per run.
func NewProfiler(vectors StyleVectorSource, clusters core.ClusterRepository, k, maxIterations int, seed int64, logger *zap.Logger) *Profiler {
	if k <= 0 {
		k = DefaultK
	}
	return &Profiler{
		vectors:       vectors,
		clusters:      clusters,
		k:             k,
		maxIterations: maxIterations,
		seed:          seed,
		logger:        logger,
	}
}

// Profile returns the style profile of (user, relationship). Persisted clusters are reused; otherwise the
// stored style vectors are clustered and the result persisted. It returns nil when the user has no vectors.
func (p *Profiler) Profile(ctx context.Context, userID, relationship string) (*core.StyleProfile, error) {
	clusters, err := p.clusters.LoadClusters(ctx, userID, relationship)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("load clusters: %w", err)
	}

	if len(clusters) == 0 {
		clusters, err = p.Recluster(ctx, userID, relationship)
		if err != nil {
			return nil, err
		}
		if len(clusters) == 0 {
			return nil, nil
		}
	}
	return Summarize(relationship, clusters), nil
}

// Recluster clusters the stored style vectors and replaces the persisted clusters
func (p *Profiler) Recluster(ctx context.Context, userID, relationship string) ([]core.StyleCluster, error) {
	byID, err := p.vectors.LoadStyleVectors(ctx, userID, relationship)
	if err != nil {
		return nil, fmt.Errorf("load style vectors: %w", err)
	}
	if len(byID) == 0 {
		p.logger.Debug("No style vectors to cluster",
			zap.String("user_id", userID),
			zap.String("relationship", relationship))
		return nil, nil
	}

	points := make([]Point, 0, len(byID))
	for id, v := range byID {
		points = append(points, Point{ID: id, Vector: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })

	clusters, err := KMeans(points, p.k, p.maxIterations, p.rng())
	if err != nil {
		return nil, err
	}
	for i := range clusters {
		clusters[i].ID = uuid.NewString()
	}

	if err := p.clusters.SaveClusters(ctx, userID, relationship, clusters); err != nil {
		return nil, fmt.Errorf("save clusters: %w", err)
	}
	p.logger.Info("Clustered writing styles",
		zap.String("user_id", userID),
		zap.String("relationship", relationship),
		zap.Int("emails", len(points)),
		zap.Int("clusters", len(clusters)))
	return clusters, nil
}

func (p *Profiler) rng() *rand.Rand {
	seed := uint64(p.seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// Summarize turns clusters into a profile with each cluster's share of the emails
func Summarize(relationship string, clusters []core.StyleCluster) *core.StyleProfile {
	profile := &core.StyleProfile{
		Relationship: relationship,
		Distribution: make(map[string]float64, len(clusters)),
		Clusters:     clusters,
	}
	total, best := 0, -1
	for _, c := range clusters {
		total += len(c.Members)
	}
	for _, c := range clusters {
		if total > 0 {
			profile.Distribution[c.Name] = float64(len(c.Members)) / float64(total)
		}
		if len(c.Members) > best {
			best = len(c.Members)
			profile.Dominant = c.Name
		}
	}
	return profile
}
