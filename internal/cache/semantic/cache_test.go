package semantic

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/costgate/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/vector"
)

// stubEmbedder maps known texts to fixed unit vectors so similarity scores
// in tests are exact.
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Model() string  { return "stub" }
func (s *stubEmbedder) Dimension() int { return 3 }

// unitVector returns a unit vector at the given angle from the x axis,
// giving cosine similarity cos(angle) against {1,0,0}.
func unitVector(angle float64) []float64 {
	return []float64{math.Cos(angle), math.Sin(angle), 0}
}

func TestCache_New(t *testing.T) {
	store := vector.NewMemoryStore()
	emb := embedding.NewHashEmbedder(8)

	t.Run("requires embedder", func(t *testing.T) {
		_, err := New(nil, store, Config{})
		require.Error(t, err)
	})

	t.Run("requires store", func(t *testing.T) {
		_, err := New(emb, nil, Config{})
		require.Error(t, err)
	})

	t.Run("defaults threshold", func(t *testing.T) {
		c, err := New(emb, store, Config{})
		require.NoError(t, err)
		assert.Equal(t, 0.85, c.SimilarityThreshold())
	})
}

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{vectors: map[string][]float64{
		"what is go":       {1, 0, 0},
		"what is golang":   {1, 0, 0},
		"unrelated prompt": {0, 1, 0},
	}}
	c, err := New(emb, vector.NewMemoryStore(), Config{SimilarityThreshold: 0.85})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "t1", "what is go", "Go is a language", "gpt-4o", time.Hour))

	t.Run("identical embedding hits", func(t *testing.T) {
		res, err := c.Get(ctx, "t1", "what is golang", "")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "Go is a language", res.Response)
		assert.Equal(t, "what is go", res.CachedPrompt)
		assert.Equal(t, "gpt-4o", res.Model)
		assert.InDelta(t, 1.0, res.Similarity, 1e-9)
	})

	t.Run("dissimilar prompt misses", func(t *testing.T) {
		res, err := c.Get(ctx, "t1", "unrelated prompt", "")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("other tenant misses", func(t *testing.T) {
		res, err := c.Get(ctx, "t2", "what is go", "")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("model filter", func(t *testing.T) {
		res, err := c.Get(ctx, "t1", "what is go", "claude-3-haiku")
		require.NoError(t, err)
		assert.Nil(t, res)

		res, err = c.Get(ctx, "t1", "what is go", "gpt-4o")
		require.NoError(t, err)
		assert.NotNil(t, res)
	})
}

func TestCache_ThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly at threshold is a hit", func(t *testing.T) {
		// Identical unit vectors score exactly 1.0, so a threshold of 1.0
		// exercises the inclusive comparison without rounding slack.
		emb := &stubEmbedder{vectors: map[string][]float64{
			"stored": {1, 0, 0},
			"same":   {1, 0, 0},
		}}
		c, err := New(emb, vector.NewMemoryStore(), Config{SimilarityThreshold: 1.0})
		require.NoError(t, err)
		require.NoError(t, c.Set(ctx, "t1", "stored", "the answer", "", time.Hour))

		res, err := c.Get(ctx, "t1", "same", "")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, 1.0, res.Similarity)
	})

	t.Run("marginally below threshold is a miss", func(t *testing.T) {
		nearAngle := math.Acos(0.89)
		emb := &stubEmbedder{vectors: map[string][]float64{
			"stored": {1, 0, 0},
			"near":   unitVector(nearAngle),
		}}
		c, err := New(emb, vector.NewMemoryStore(), Config{SimilarityThreshold: 0.9})
		require.NoError(t, err)
		require.NoError(t, c.Set(ctx, "t1", "stored", "the answer", "", time.Hour))

		res, err := c.Get(ctx, "t1", "near", "")
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	c, err := New(emb, vector.NewMemoryStore(), Config{SimilarityThreshold: 0.85})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "t1", "q", "short-lived", "", time.Second))

	res, err := c.Get(ctx, "t1", "q", "")
	require.NoError(t, err)
	require.NotNil(t, res)

	time.Sleep(1100 * time.Millisecond)

	res, err = c.Get(ctx, "t1", "q", "")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCache_EmbedderFailure(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{err: errors.New("model not loaded")}
	c, err := New(emb, vector.NewMemoryStore(), Config{})
	require.NoError(t, err)

	_, err = c.Get(ctx, "t1", "prompt", "")
	require.Error(t, err)

	err = c.Set(ctx, "t1", "prompt", "response", "", 0)
	require.Error(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Errors)
}

func TestCache_Stats(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	c, err := New(emb, vector.NewMemoryStore(), Config{})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "t1", "q", "resp", "", 0))
	_, _ = c.Get(ctx, "t1", "q", "")       // hit
	_, _ = c.Get(ctx, "t1", "missing", "") // miss

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(3), stats.EmbedCalls)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}
