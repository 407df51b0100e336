// Package vector holds the dense vector math shared by embedding, retrieval and clustering.
package vector

import "math"

// Norm returns the euclidean length of v
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// IsUnit reports whether v has length 1 within tolerance
func IsUnit(v []float32) bool {
	return math.Abs(Norm(v)-1) < 1e-4
}

// Dot returns the dot product over the shared prefix of a and b
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a and b clamped to [-1, 1]. Zero vectors score 0.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(Dot(a, b) / (na * nb))
}

// Mean returns the element-wise mean of vs
func Mean(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	acc := make([]float64, len(vs[0]))
	for _, v := range vs {
		for i := range acc {
			if i < len(v) {
				acc[i] += float64(v[i])
			}
		}
	}
	out := make([]float32, len(acc))
	for i, x := range acc {
		out[i] = float32(x / float64(len(vs)))
	}
	return out
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
