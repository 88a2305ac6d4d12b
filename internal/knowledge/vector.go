package knowledge

import "math"

// AdaptVector fits a raw embedding to the stored dimensionality by
// truncating to the first dim components and L2-renormalizing. Embedding
// models trained Matryoshka-style keep prefixes semantically meaningful,
// so truncation plus renormalization preserves cosine ordering.
//
// A zero vector is truncated but never divided, so it stays zero.
func AdaptVector(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) == 0 {
		return vec
	}
	if len(vec) > dim {
		vec = vec[:dim]
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
