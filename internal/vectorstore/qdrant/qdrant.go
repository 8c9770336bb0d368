package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"askmydocs/internal/domain"
)

// Storage is a minimal REST client to Qdrant using cosine distance. Point ids
// are UUIDv5 of "documentID:ordinal" so upserts replace instead of duplicate.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// Config contains connection details for a Qdrant instance.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewStorage creates a Qdrant-backed vector store for the given dimension.
func NewStorage(cfg Config, dimension int) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection and the document_id payload index if missing.
func (s *Storage) Init(ctx context.Context) error {
	if s.dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		return err
	}
	idx := map[string]any{
		"field_name":   "document_id",
		"field_schema": "keyword",
	}
	// Qdrant answers 400 when the payload index already exists; anything else
	// (auth failure, server error) is a real failure.
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/index", s.url, s.collection), idx); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusBadRequest {
			return nil
		}
		return err
	}
	return nil
}

// Upsert writes the chunks' vectors and payloads, replacing existing points
// with the same (documentID, ordinal).
func (s *Storage) Upsert(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		if ch.DocumentID != documentID {
			return &domain.ConsistencyError{Reason: fmt.Sprintf("chunk %d belongs to document %q, not %q", ch.Ordinal, ch.DocumentID, documentID)}
		}
		if len(ch.Embedding) != s.dimension {
			return &domain.ConsistencyError{Reason: fmt.Sprintf("chunk %d has dimension %d, index expects %d", ch.Ordinal, len(ch.Embedding), s.dimension)}
		}
		points[i] = map[string]any{
			"id":     pointID(documentID, ch.Ordinal),
			"vector": ch.Embedding,
			"payload": map[string]any{
				"document_id": ch.DocumentID,
				"ordinal":     ch.Ordinal,
				"text":        ch.Text,
				"source":      ch.SourceLabel,
				"page":        ch.Page,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

// Remove deletes all points of the document by payload filter; wait=true so
// the deletion is visible before the call returns.
func (s *Storage) Remove(ctx context.Context, documentID string) error {
	body := map[string]any{"filter": documentFilter(documentID)}
	return s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil)
}

// HasDocument reports whether any points carry the document's id.
func (s *Storage) HasDocument(ctx context.Context, documentID string) (bool, error) {
	body := map[string]any{"filter": documentFilter(documentID), "exact": true}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection), body, &resp); err != nil {
		return false, err
	}
	return resp.Result.Count > 0, nil
}

// Search runs a similarity search, optionally filtered to one document.
func (s *Storage) Search(ctx context.Context, vector []float32, k int, documentID string) ([]domain.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, &domain.ConsistencyError{Reason: fmt.Sprintf("query vector has dimension %d, index expects %d", len(vector), s.dimension)}
	}
	if k <= 0 {
		k = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if documentID != "" {
		ok, err := s.HasDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNoIndex
		}
		req["filter"] = documentFilter(documentID)
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := domain.Chunk{}
		if v, ok := r.Payload["document_id"].(string); ok {
			chunk.DocumentID = v
		}
		if v, ok := r.Payload["ordinal"].(float64); ok {
			chunk.Ordinal = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Text = v
		}
		if v, ok := r.Payload["source"].(string); ok {
			chunk.SourceLabel = v
		}
		if v, ok := r.Payload["page"].(float64); ok {
			chunk.Page = int(v)
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

func pointID(documentID string, ordinal int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", documentID, ordinal))).String()
}

func documentFilter(documentID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "document_id", "match": map[string]any{"value": documentID}},
		},
	}
}

// statusError carries the HTTP status of a failed Qdrant request so callers
// can distinguish expected rejections from real failures.
type statusError struct {
	method string
	url    string
	status int
	text   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.text)
}

func (s *Storage) putJSON(ctx context.Context, url string, body any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: http.MethodPut, url: url, status: resp.StatusCode, text: resp.Status}
	}
	return nil
}

func (s *Storage) postJSON(ctx context.Context, url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: http.MethodPost, url: url, status: resp.StatusCode, text: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
