package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmydocs/internal/domain"
)

const testKeyEnv = "ASKMYDOCS_TEST_API_KEY"

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	t.Setenv(testKeyEnv, "test-key")
	c, err := NewClient(Config{BaseURL: baseURL, APIKeyEnv: testKeyEnv, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	return c
}

func TestGenerate(t *testing.T) {
	var gotPrompt string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)
		gotPrompt = req.Messages[0].Content

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  The answer.  "}, "finish_reason": "stop"},
			},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	answer, err := c.Generate(context.Background(), "What is in the soup?")
	require.NoError(t, err)
	assert.Equal(t, "The answer.", answer, "reply must be trimmed")
	assert.Equal(t, "What is in the soup?", gotPrompt)
}

func TestGenerateAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited", "type": "rate_limit"},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	var genErr *domain.GenerationError
	_, err := c.Generate(context.Background(), "q")
	require.Error(t, err)
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, genErr.Error(), "rate limited")
}

func TestGenerateNoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	var genErr *domain.GenerationError
	_, err := c.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorAs(t, err, &genErr)
}

func TestGenerateContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, ts.URL)
	_, err := c.Generate(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv(testKeyEnv, "")
	_, err := NewClient(Config{APIKeyEnv: testKeyEnv})
	assert.Error(t, err)
}
