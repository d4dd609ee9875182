package memory

import (
	"hash/fnv"
	"math"
	"strings"
)

const defaultEmbeddingDim = 256

// HashingEmbedder produces deterministic unit-length vectors via signed
// feature hashing over unigrams and bigrams. It runs fully offline, which
// keeps repetition detection usable without an embedding backend.
type HashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = defaultEmbeddingDim
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Embed(text string) []float64 {
	vec := make([]float64, e.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		addFeature(vec, tok)
		if i+1 < len(tokens) {
			addFeature(vec, tok+" "+tokens[i+1])
		}
	}
	normalize(vec)
	return vec
}

func addFeature(vec []float64, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	sign := 1.0
	if sum&(1<<63) != 0 {
		sign = -1.0
	}
	vec[idx] += sign
}

func tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine computes cosine similarity between two vectors. Mismatched or empty
// vectors score zero rather than erroring.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
