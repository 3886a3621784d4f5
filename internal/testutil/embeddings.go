package testutil

import "math"

// Basis returns a one-hot unit vector of the given dimension. Distinct
// axes are orthogonal, so cosine similarity between them is zero.
func Basis(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis%dim] = 1
	return v
}

// Blend mixes two vectors with the given weight on a (0..1) and
// normalizes the result. Blending a query axis with an off-axis vector
// gives a predictable cosine similarity against the pure axis.
func Blend(a, b []float32, weight float64) []float32 {
	out := make([]float32, len(a))
	var norm float64
	for i := range a {
		x := weight*float64(a[i]) + (1-weight)*float64(b[i])
		out[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}
