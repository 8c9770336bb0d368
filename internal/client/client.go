// Package client provides Go bindings for the HTTP API, used by the
// terminal chat client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"askmydocs/internal/domain"
)

// Client talks to a running askmydocs server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL, e.g. "http://127.0.0.1:8000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 180 * time.Second},
	}
}

// UploadResult is the server's response to a document upload.
type UploadResult struct {
	DocumentID       string `json:"document_id"`
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// QueryResult is the server's response to a question.
type QueryResult struct {
	Answer           string                  `json:"answer"`
	Sources          []domain.SourceDocument `json:"sources"`
	Confidence       float64                 `json:"confidence"`
	ProcessingTimeMs int64                   `json:"processing_time_ms"`
	Timestamp        time.Time               `json:"timestamp"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Upload sends the file at path for ingestion.
func (c *Client) Upload(ctx context.Context, path string) (*UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	part, err := mp.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mp.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mp.FormDataContentType())
	var out UploadResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query asks a question, optionally scoped to one document.
func (c *Client) Query(ctx context.Context, question, documentID string, maxResults int) (*QueryResult, error) {
	payload := map[string]any{"question": question}
	if documentID != "" {
		payload["document_id"] = documentID
	}
	if maxResults > 0 {
		payload["max_results"] = maxResults
	}
	data, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/query", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out QueryResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Documents lists ingested documents, most recent first.
func (c *Client) Documents(ctx context.Context) ([]domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/documents", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Document fetches one document's metadata by id.
func (c *Client) Document(ctx context.Context, documentID string) (*domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/documents/"+documentID, nil)
	if err != nil {
		return nil, err
	}
	var out domain.Document
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a document and its index entries.
func (c *Client) Delete(ctx context.Context, documentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/documents/"+documentID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	if out != nil {
		return json.Unmarshal(body, out)
	}
	return nil
}
