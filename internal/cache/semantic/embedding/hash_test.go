package embedding

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the same text")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the same text")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashEmbedder_UnitNorm(t *testing.T) {
	e := NewHashEmbedder(384)

	vec, err := e.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestHashEmbedder_DistinctTexts(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "first text")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "second text")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashEmbedder_Batch(t *testing.T) {
	e := NewHashEmbedder(32)

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "one"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestHashEmbedder_Defaults(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, 384, e.Dimension())
	assert.Equal(t, "hash-fallback", e.Model())
}

func TestOpenAIEmbedder(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		_, err := NewOpenAIEmbedder(OpenAIConfig{})
		require.Error(t, err)
	})

	t.Run("embed batch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			// Reversed index order to verify re-ordering by index.
			_, _ = w.Write([]byte(`{"object":"list","data":[
				{"object":"embedding","embedding":[0.4,0.5,0.6],"index":1},
				{"object":"embedding","embedding":[0.1,0.2,0.3],"index":0}
			],"model":"text-embedding-3-small"}`))
		}))
		defer server.Close()

		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    "test-key",
			APIBase:   server.URL,
			Dimension: 3,
		})
		require.NoError(t, err)

		vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, vecs[0])
		assert.Equal(t, []float64{0.4, 0.5, 0.6}, vecs[1])
	})

	t.Run("non-200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", APIBase: server.URL})
		require.NoError(t, err)

		_, err = e.Embed(context.Background(), "text")
		require.Error(t, err)
	})
}
