package rank

import (
	"hash/fnv"
	"math"
)

// HashDim is the dimensionality of the deterministic fallback embedding.
const HashDim = 256

// HashEmbedding maps text to a fixed-dimension bag-of-tokens vector:
// each token's FNV-1a hash picks a bucket, bucket values count occurrences,
// and the result is L2-normalized. It is a stable stand-in when the
// embedding service is unavailable — rankings degrade but stay strict and
// reproducible.
func HashEmbedding(text string, dim int) []float64 {
	if dim <= 0 {
		dim = HashDim
	}
	vec := make([]float64, dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok)) //nolint:errcheck
		vec[h.Sum64()%uint64(dim)]++
	}
	return l2Normalize(vec)
}

func l2Normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors, zero when either is
// empty, zero, or the dimensions disagree.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
