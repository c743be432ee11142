package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/costgate/internal/cache/semantic"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/vector"
)

// fixedEmbedder returns preassigned vectors so tests control similarity.
type fixedEmbedder struct {
	vectors map[string][]float64
}

func (e *fixedEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *fixedEmbedder) Model() string  { return "fixed-test" }
func (e *fixedEmbedder) Dimension() int { return 3 }

func newTestResponseCache(t *testing.T, emb *fixedEmbedder) (*ResponseCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exact := NewExactCache(client, ExactConfig{})

	var sem *semantic.Cache
	if emb != nil {
		var err error
		sem, err = semantic.New(emb, vector.NewMemoryStore(), semantic.Config{SimilarityThreshold: 0.85})
		require.NoError(t, err)
	}

	return NewResponseCache(exact, sem, ResponseCacheConfig{}), s
}

func TestResponseCache_ExactHitSkipsSemantic(t *testing.T) {
	ctx := context.Background()

	// No vector for the prompt: a semantic lookup would error, proving
	// the exact tier short-circuits.
	emb := &fixedEmbedder{vectors: map[string][]float64{}}
	c, _ := newTestResponseCache(t, emb)

	require.NoError(t, c.exact.Set(ctx, "tenant-a", "What is Go?", "Go is a language.", "gpt-4o"))

	hit, err := c.Lookup(ctx, "tenant-a", "What is Go?", "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, TierExact, hit.Tier)
	assert.Equal(t, 1.0, hit.Similarity)
	assert.Equal(t, "Go is a language.", hit.Response)
}

func TestResponseCache_SemanticFallback(t *testing.T) {
	ctx := context.Background()

	// Two differently worded prompts share one direction in vector space.
	emb := &fixedEmbedder{vectors: map[string][]float64{
		"What is Go?":             {1, 0, 0},
		"Explain the Go language": {0.99, 0.141, 0}, // cosine ~0.99 with {1,0,0}
	}}
	c, _ := newTestResponseCache(t, emb)

	require.NoError(t, c.Store(ctx, "tenant-a", "What is Go?", "Go is a language.", "gpt-4o"))

	hit, err := c.Lookup(ctx, "tenant-a", "Explain the Go language", "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, TierSemantic, hit.Tier)
	assert.Equal(t, "Go is a language.", hit.Response)
	assert.Greater(t, hit.Similarity, 0.85)
	assert.Less(t, hit.Similarity, 1.0)
}

func TestResponseCache_FullMiss(t *testing.T) {
	ctx := context.Background()

	emb := &fixedEmbedder{vectors: map[string][]float64{
		"unrelated question": {0, 1, 0},
	}}
	c, _ := newTestResponseCache(t, emb)

	hit, err := c.Lookup(ctx, "tenant-a", "unrelated question", "gpt-4o")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestResponseCache_SemanticErrorDegradesToMiss(t *testing.T) {
	ctx := context.Background()

	// Embedder has no vector for the prompt, so the semantic tier errors.
	emb := &fixedEmbedder{vectors: map[string][]float64{}}
	c, _ := newTestResponseCache(t, emb)

	hit, err := c.Lookup(ctx, "tenant-a", "no vector for this", "gpt-4o")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestResponseCache_ExactOnly(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestResponseCache(t, nil)

	require.NoError(t, c.Store(ctx, "tenant-a", "prompt", "answer", "gpt-4o"))

	hit, err := c.Lookup(ctx, "tenant-a", "prompt", "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, TierExact, hit.Tier)
}

func TestResponseCache_StoreWritesBothTiers(t *testing.T) {
	ctx := context.Background()

	emb := &fixedEmbedder{vectors: map[string][]float64{
		"What is Go?": {1, 0, 0},
	}}
	c, _ := newTestResponseCache(t, emb)

	require.NoError(t, c.Store(ctx, "tenant-a", "What is Go?", "Go is a language.", "gpt-4o"))

	exactStats, semStats := c.Stats()
	assert.Equal(t, int64(1), exactStats.Sets)
	assert.Equal(t, int64(1), semStats.Sets)
}

func TestResponseCache_StoreAsyncDrainsOnClose(t *testing.T) {
	ctx := context.Background()

	emb := &fixedEmbedder{vectors: map[string][]float64{
		"async prompt": {1, 0, 0},
	}}
	c, _ := newTestResponseCache(t, emb)

	c.StoreAsync("tenant-a", "async prompt", "async answer", "gpt-4o")
	require.NoError(t, c.Close())

	hit, err := c.Lookup(ctx, "tenant-a", "async prompt", "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "async answer", hit.Response)
}
