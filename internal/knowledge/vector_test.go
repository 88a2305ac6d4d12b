package knowledge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func l2norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestAdaptVectorTruncatesAndRenormalizes(t *testing.T) {
	raw := make([]float32, 1024)
	for i := range raw {
		raw[i] = float32(i%7) - 3
	}

	out := AdaptVector(raw, 256)
	require.Len(t, out, 256)
	assert.InDelta(t, 1.0, l2norm(out), 1e-6)
}

func TestAdaptVectorShorterInputOnlyRenormalizes(t *testing.T) {
	out := AdaptVector([]float32{3, 4}, 256)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0, l2norm(out), 1e-6)
	assert.InDelta(t, 0.6, float64(out[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(out[1]), 1e-6)
}

func TestAdaptVectorZeroVectorPassesThrough(t *testing.T) {
	out := AdaptVector(make([]float32, 512), 256)
	require.Len(t, out, 256)
	for _, v := range out {
		assert.Equal(t, float32(0), v, "zero stays zero, never NaN")
	}
}

func TestAdaptVectorPreservesCosineOrdering(t *testing.T) {
	query := AdaptVector([]float32{1, 0, 0, 0.2, -0.5}, 3)
	near := AdaptVector([]float32{0.9, 0.1, 0, 0.7, 0.7}, 3)
	far := AdaptVector([]float32{0, 1, 0, 0.7, 0.7}, 3)

	dot := func(a, b []float32) float64 {
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	}
	assert.Greater(t, dot(query, near), dot(query, far))
}
