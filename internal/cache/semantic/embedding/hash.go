package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEmbedder is a deterministic fallback embedder for environments
// without an embedding model. Vectors are derived from a SHA-256 stream
// over the input text and normalized to unit length, so identical texts
// always produce identical vectors and cache tests are reproducible.
// It has no notion of semantic similarity: distinct texts map to
// effectively random directions.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a deterministic embedder with the given
// dimension (default: 384).
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed generates a deterministic unit vector for the given text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dimension)

	// Expand the seed hash into enough bytes by chained hashing.
	seed := sha256.Sum256([]byte(text))
	block := seed
	var norm float64
	for i := 0; i < e.dimension; i++ {
		off := (i * 8) % sha256.Size
		if off == 0 && i > 0 {
			block = sha256.Sum256(block[:])
		}
		u := binary.BigEndian.Uint64(block[off : off+8])
		// Map to (-1, 1).
		v := float64(int64(u)) / math.MaxInt64
		vec[i] = v
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// EmbedBatch generates deterministic vectors for multiple texts.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Model returns the synthetic model name of the fallback embedder.
func (e *HashEmbedder) Model() string { return "hash-fallback" }

// Dimension returns the dimension of the embedding vectors.
func (e *HashEmbedder) Dimension() int { return e.dimension }
