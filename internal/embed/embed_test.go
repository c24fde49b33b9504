package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// countingEmbedder wraps the static embedder and counts calls.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls atomic.Int64
	batchCalls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls.Add(1)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestStaticEmbedder_DimensionsAndNormalization(t *testing.T) {
	// Given: a 384-dimension static embedder
	e := NewStaticEmbedder(0)
	defer func() { _ = e.Close() }()

	// When: I embed prose
	vec, err := e.Embed(context.Background(), "The quarterly report covers revenue and churn.")

	// Then: the vector has the default dimension and unit length
	require.NoError(t, err)
	assert.Len(t, vec, DefaultDimensions)
	assert.InDelta(t, 1.0, magnitude(vec), 1e-3)
	assert.Equal(t, "static-384", e.ModelName())
}

func TestStaticEmbedder_DeterministicAndLexicallySimilar(t *testing.T) {
	e := NewStaticEmbedder(128)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "kubernetes cluster upgrade guide")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "kubernetes cluster upgrade guide")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "guide to upgrading a kubernetes cluster")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "banana bread recipe with walnuts")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Greater(t, dot(a1, near), dot(a1, far))
}

func TestStaticEmbedder_BlankTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(16)

	vec, err := e.Embed(context.Background(), "   ")

	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), vec)
}

func TestStaticEmbedder_BatchPreservesOrder(t *testing.T) {
	e := NewStaticEmbedder(64)
	ctx := context.Background()
	texts := []string{"alpha", "beta", "gamma"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], text)
	}
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder(8)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, e.Available(context.Background()))
}

func TestCachedEmbedder_CachesQueriesOnly(t *testing.T) {
	// Given: a cache around a counting embedder
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(32)}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	// When: the same query is embedded twice and a batch twice
	v1, err := cached.Embed(ctx, "what is the refund policy?")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "what is the refund policy?")
	require.NoError(t, err)
	_, err = cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	// Then: the query hit the model once, batches always pass through
	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, int64(2), inner.batchCalls.Load())
	assert.Equal(t, 1, cached.Len())
	assert.Equal(t, "static-32", cached.ModelName())
}

func TestCachedEmbedder_Evicts(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(8)}
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three", "one"} {
		_, err := cached.Embed(ctx, q)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(4), inner.embedCalls.Load())
	assert.Equal(t, 2, cached.Len())
}

func newOllamaServer(t *testing.T, dims int, hits *atomic.Int64, failFirst int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"all-minilm:latest"}]}`))
		case "/api/embed":
			n := hits.Add(1)
			if int(n) <= failFirst {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			count := 1
			if arr, ok := req.Input.([]any); ok {
				count = len(arr)
			}
			out := ollamaEmbedResponse{Model: req.Model}
			for i := 0; i < count; i++ {
				vec := make([]float64, dims)
				vec[i%dims] = 3
				out.Embeddings = append(out.Embeddings, vec)
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaEmbedder_DetectsDimensionsAndBatches(t *testing.T) {
	// Given: a fake Ollama returning 4-dimension vectors
	var hits atomic.Int64
	srv := newOllamaServer(t, 4, &hits, 0)
	defer srv.Close()

	// When: I create the embedder and embed five texts with batch size 2
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, BatchSize: 2})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "", "c", "d"})
	require.NoError(t, err)

	// Then: dimension came from the probe, blank text got a zero vector,
	// and the four non-blank texts took two requests after the probe
	assert.Equal(t, 4, e.Dimensions())
	require.Len(t, vecs, 5)
	assert.Equal(t, make([]float32, 4), vecs[2])
	assert.InDelta(t, 1.0, magnitude(vecs[0]), 1e-6)
	assert.Equal(t, int64(3), hits.Load())
	assert.Equal(t, "ollama/all-minilm", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := newOllamaServer(t, 4, &hits, 2)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, MaxRetries: 3})

	require.NoError(t, err)
	assert.Equal(t, int64(3), hits.Load())
	_ = e.Close()
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	var hits atomic.Int64
	srv := newOllamaServer(t, 4, &hits, 0)
	defer srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 384})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "384")
}

func TestNew_FallsBackToStatic(t *testing.T) {
	// Given: an ollama provider pointing at nothing
	cfg := Config{
		Provider:       ProviderOllama,
		Dimensions:     48,
		OllamaHost:     "http://127.0.0.1:1",
		FallbackStatic: true,
	}

	// When: I build the embedder
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: a cached static embedder of the configured size is used
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
	assert.Equal(t, 48, e.Dimensions())
}

func TestNew_NoFallbackReturnsError(t *testing.T) {
	cfg := Config{Provider: ProviderOllama, OllamaHost: "http://127.0.0.1:1"}

	_, err := New(context.Background(), cfg)

	assert.Error(t, err)
}

func TestNew_StaticWithoutCache(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: ProviderStatic, Dimensions: 12, CacheSize: -1})

	require.NoError(t, err)
	assert.IsType(t, &StaticEmbedder{}, e)
	assert.Equal(t, 12, e.Dimensions())
}
