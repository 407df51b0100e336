package clustering

import (
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/vector"
)

// DefaultK is the conventional number of style groups
const DefaultK = 3

// DefaultMaxIterations bounds Lloyd's iteration
const DefaultMaxIterations = 100

// ConventionalNames label three clusters from largest to smallest
var ConventionalNames = []string{"formal", "neutral", "casual"}

// identical vectors are closer than this
const minDistance = 1e-9

// Point is one style vector to cluster
type Point struct {
	ID     string
	Vector []float32
}

// KMeans clusters points with k-means++ seeding and Lloyd's iteration on cosine distance.
// Every point ends up in exactly one returned cluster. When fewer than k distinct vectors exist the
// number of clusters shrinks to the number of distinct vectors.
func KMeans(points []Point, k, maxIterations int, rng *rand.Rand) ([]core.StyleCluster, error) {
	if len(points) == 0 {
		return nil, &core.ClusteringError{Reason: "no vectors to cluster"}
	}
	if k <= 0 {
		return nil, &core.ClusteringError{Reason: "k must be positive, got " + strconv.Itoa(k)}
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	dims := len(points[0].Vector)
	vecs := make([][]float32, len(points))
	for i, p := range points {
		if len(p.Vector) != dims {
			return nil, &core.ClusteringError{Reason: "vector " + p.ID + " has mismatched dimensions"}
		}
		if vector.Norm(p.Vector) == 0 {
			return nil, &core.ClusteringError{Reason: "vector " + p.ID + " is zero"}
		}
		vecs[i] = vector.Normalize(p.Vector)
	}

	centroids := seedCentroids(vecs, k, rng)
	assign := make([]int, len(vecs))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vecs {
			c := nearest(v, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		centroids = recompute(vecs, assign, centroids)
	}

	return buildClusters(points, vecs, assign, centroids, k), nil
}

// seedIndices runs k-means++ seeding and returns the chosen point indices
func seedIndices(vecs [][]float32, k int, rng *rand.Rand) []int {
	chosen := []int{rng.IntN(len(vecs))}
	dist := make([]float64, len(vecs))
	for i, v := range vecs {
		dist[i] = distance(v, vecs[chosen[0]])
	}

	for len(chosen) < k {
		total := 0.0
		for _, d := range dist {
			total += d * d
		}
		if total == 0 {
			break
		}
		target := rng.Float64() * total
		pick := -1
		for i, d := range dist {
			if d == 0 {
				continue
			}
			pick = i
			target -= d * d
			if target <= 0 {
				break
			}
		}
		chosen = append(chosen, pick)
		for i, v := range vecs {
			if d := distance(v, vecs[pick]); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return chosen
}

func seedCentroids(vecs [][]float32, k int, rng *rand.Rand) [][]float32 {
	idx := seedIndices(vecs, k, rng)
	out := make([][]float32, len(idx))
	for i, j := range idx {
		out[i] = append([]float32(nil), vecs[j]...)
	}
	return out
}

// distance is the cosine distance, snapped to zero for identical vectors
func distance(a, b []float32) float64 {
	d := 1 - vector.Cosine(a, b)
	if d < minDistance {
		return 0
	}
	return d
}

func nearest(v []float32, centroids [][]float32) int {
	best, bestSim := 0, -2.0
	for i, c := range centroids {
		if sim := vector.Cosine(v, c); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best
}

// recompute moves each centroid to the normalized mean of its members. An empty cluster keeps its centroid.
func recompute(vecs [][]float32, assign []int, centroids [][]float32) [][]float32 {
	members := make([][][]float32, len(centroids))
	for i, c := range assign {
		members[c] = append(members[c], vecs[i])
	}
	out := make([][]float32, len(centroids))
	for c := range centroids {
		if len(members[c]) == 0 {
			out[c] = centroids[c]
			continue
		}
		mean := vector.Mean(members[c])
		if vector.Norm(mean) == 0 {
			out[c] = centroids[c]
			continue
		}
		out[c] = vector.Normalize(mean)
	}
	return out
}

func buildClusters(points []Point, vecs [][]float32, assign []int, centroids [][]float32, k int) []core.StyleCluster {
	clusters := make([]core.StyleCluster, len(centroids))
	cohesion := make([]float64, len(centroids))
	for c := range clusters {
		clusters[c].Centroid = centroids[c]
	}
	for i, c := range assign {
		clusters[c].Members = append(clusters[c].Members, points[i].ID)
		cohesion[c] += vector.Cosine(vecs[i], centroids[c])
	}

	out := make([]core.StyleCluster, 0, len(clusters))
	for c, cl := range clusters {
		if len(cl.Members) == 0 {
			continue
		}
		cl.Cohesion = cohesion[c] / float64(len(cl.Members))
		out = append(out, cl)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Members) > len(out[j].Members)
	})
	for i := range out {
		out[i].ID = strconv.Itoa(i)
		out[i].Name = clusterName(i, k)
	}
	return out
}

func clusterName(rank, k int) string {
	if k == len(ConventionalNames) && rank < len(ConventionalNames) {
		return ConventionalNames[rank]
	}
	return "style-" + strconv.Itoa(rank+1)
}
