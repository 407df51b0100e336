package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.True(t, IsUnit(v))

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
	assert.False(t, IsUnit(zero))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 1}, []float32{-2, -2}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 3}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestMean(t *testing.T) {
	assert.Equal(t, []float32{2, 3}, Mean([][]float32{{1, 2}, {3, 4}}))
	assert.Nil(t, Mean(nil))
}
