package backend

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingEmbedder produces deterministic dense vectors by feature-hashing
// query terms. It needs no model download and matches collections that were
// indexed with the same scheme, which keeps local evaluation runs
// self-contained. Swap in a real model-backed Embedder for semantic search.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder producing vectors of the given
// dimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim < 1 {
		dim = 384
	}
	return &HashingEmbedder{dim: dim}
}

// Dim returns the vector dimension.
func (e *HashingEmbedder) Dim() int {
	return e.dim
}

// Embed hashes each term into the vector and L2-normalizes the result.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dim)

	for _, term := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum32()

		idx := int(sum % uint32(e.dim))
		// Sign bit spreads terms across both directions so unrelated
		// queries do not all accumulate positive mass.
		if sum&0x80000000 != 0 {
			vector[idx] -= 1
		} else {
			vector[idx] += 1
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
