package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmydocs/internal/domain"
)

const testKeyEnv = "ASKMYDOCS_TEST_API_KEY"

func newTestClient(t *testing.T, baseURL string, batchSize, dims int) *Client {
	t.Helper()
	t.Setenv(testKeyEnv, "test-key")
	c, err := NewClient(Config{
		BaseURL:    baseURL,
		APIKeyEnv:  testKeyEnv,
		Model:      "text-embedding-3-small",
		BatchSize:  batchSize,
		Dimensions: dims,
	})
	require.NoError(t, err)
	return c
}

func embeddingsHandler(t *testing.T, dims int, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			// Deliberately reversed order; the client must reorder by index.
			data[len(req.Input)-1-i] = item{Embedding: vec, Index: i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv(testKeyEnv, "")
	_, err := NewClient(Config{APIKeyEnv: testKeyEnv})
	assert.Error(t, err)
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(embeddingsHandler(t, 8, &calls))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 32, 8)
	vecs, err := c.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		require.Len(t, v, 8)
		assert.Equal(t, float32(i+1), v[0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatchSplitsIntoSubBatches(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(embeddingsHandler(t, 4, &calls))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 2, 4)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", 32, 8)

	var embErr *domain.EmbeddingError
	_, err := c.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &embErr)
}

func TestEmbedRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		vec := make([]float32, 4)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec, "index": 0}},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 32, 4)
	_, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "auth"},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 32, 4)
	var embErr *domain.EmbeddingError
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, embErr.Error(), "invalid api key")
}

func TestEmbedDimensionMismatchRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 2}, "index": 0}},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, 32, 4)
	var embErr *domain.EmbeddingError
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorAs(t, err, &embErr)
}

func TestKnownModelDimensions(t *testing.T) {
	t.Setenv(testKeyEnv, "test-key")
	c, err := NewClient(Config{APIKeyEnv: testKeyEnv, Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, c.Dimension())
}
