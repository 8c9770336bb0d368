package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmydocs/internal/domain"
)

// stubPipeline returns canned results and records the last call arguments.
type stubPipeline struct {
	ingestDoc  *domain.Document
	ingestErr  error
	queryRes   *domain.QueryResult
	queryErr   error
	listDocs   []domain.Document
	listErr    error
	getDoc     *domain.Document
	getErr     error
	deleteErr  error
	lastUpload string
	lastQuery  string
	lastDocID  string
	lastK      int
}

func (s *stubPipeline) Ingest(_ context.Context, filename string, _ []byte) (*domain.Document, error) {
	s.lastUpload = filename
	return s.ingestDoc, s.ingestErr
}

func (s *stubPipeline) Query(_ context.Context, question, documentID string, maxResults int) (*domain.QueryResult, error) {
	s.lastQuery, s.lastDocID, s.lastK = question, documentID, maxResults
	return s.queryRes, s.queryErr
}

func (s *stubPipeline) List(context.Context) ([]domain.Document, error) { return s.listDocs, s.listErr }

func (s *stubPipeline) Get(_ context.Context, id string) (*domain.Document, error) {
	s.lastDocID = id
	return s.getDoc, s.getErr
}

func (s *stubPipeline) Delete(_ context.Context, id string) error {
	s.lastDocID = id
	return s.deleteErr
}

func newTestServer(p Pipeline) *httptest.Server {
	srv := New(Config{
		MaxUploadBytes:    1 << 20,
		AllowedExtensions: []string{".txt", ".md", ".markdown", ".html", ".htm"},
		Version:           "test",
	}, p)
	return httptest.NewServer(srv.Handler())
}

func multipartUpload(t *testing.T, url, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/v1/documents/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&stubPipeline{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestUploadSuccess(t *testing.T) {
	stub := &stubPipeline{ingestDoc: &domain.Document{
		ID:         "doc-1",
		Filename:   "notes.txt",
		CreatedAt:  time.Now().UTC(),
		ChunkCount: 3,
	}}
	ts := newTestServer(stub)
	defer ts.Close()

	resp := multipartUpload(t, ts.URL, "notes.txt", []byte("some document content"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[uploadResponse](t, resp)
	assert.Equal(t, "doc-1", body.DocumentID)
	assert.Equal(t, "notes.txt", body.Filename)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "notes.txt", stub.lastUpload)
}

func TestUploadUnsupportedExtension(t *testing.T) {
	ts := newTestServer(&stubPipeline{})
	defer ts.Close()

	resp := multipartUpload(t, ts.URL, "report.pdf", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, "unsupported_file_type", body.Error)
}

func TestUploadEmptyFile(t *testing.T) {
	ts := newTestServer(&stubPipeline{})
	defer ts.Close()

	resp := multipartUpload(t, ts.URL, "empty.txt", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, "invalid_upload", body.Error)
}

func TestUploadMissingFileField(t *testing.T) {
	ts := newTestServer(&stubPipeline{})
	defer ts.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/v1/documents/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadTooLarge(t *testing.T) {
	srv := New(Config{
		MaxUploadBytes:    1024,
		AllowedExtensions: []string{".txt"},
	}, &stubPipeline{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := multipartUpload(t, ts.URL, "big.txt", bytes.Repeat([]byte("x"), 64*1024))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	body := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, "file_too_large", body.Error)
}

func TestUploadEmptyDocumentMapsTo422(t *testing.T) {
	ts := newTestServer(&stubPipeline{ingestErr: domain.ErrEmptyDocument})
	defer ts.Close()

	resp := multipartUpload(t, ts.URL, "blank.txt", []byte("   "))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, "empty_document", body.Error)
}

func queryBody(question, docID string, maxResults int) *strings.Reader {
	req := queryRequest{Question: question, DocumentID: docID, MaxResults: maxResults}
	b, _ := json.Marshal(req)
	return strings.NewReader(string(b))
}

func TestQuerySuccess(t *testing.T) {
	stub := &stubPipeline{queryRes: &domain.QueryResult{
		Answer:           "Carrots and onions.",
		Sources:          []domain.SourceDocument{{Content: "passage", Source: "a.txt (section 1)", Score: 0.9}},
		Confidence:       0.9,
		ProcessingTimeMs: 12,
	}}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/query", "application/json",
		queryBody("What goes in the soup?", "doc-1", 5))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[queryResponse](t, resp)
	assert.Equal(t, "Carrots and onions.", body.Answer)
	assert.Len(t, body.Sources, 1)
	assert.InDelta(t, 0.9, body.Confidence, 1e-9)
	assert.False(t, body.Timestamp.IsZero())

	assert.Equal(t, "What goes in the soup?", stub.lastQuery)
	assert.Equal(t, "doc-1", stub.lastDocID)
	assert.Equal(t, 5, stub.lastK)
}

func TestQueryNilSourcesSerializedAsEmptyArray(t *testing.T) {
	ts := newTestServer(&stubPipeline{queryRes: &domain.QueryResult{Answer: "fallback"}})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/query", "application/json", queryBody("q", "", 0))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw := decodeJSON[map[string]json.RawMessage](t, resp)
	assert.JSONEq(t, "[]", string(raw["sources"]))
}

func TestQueryValidation(t *testing.T) {
	ts := newTestServer(&stubPipeline{})
	defer ts.Close()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", "{"},
		{"missing question", `{"question":"   "}`},
		{"question too long", `{"question":"` + strings.Repeat("q", 501) + `"}`},
		{"max_results too high", `{"question":"ok","max_results":11}`},
		{"max_results negative", `{"question":"ok","max_results":-1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/v1/query", "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestQueryErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no index", domain.ErrNoIndex, http.StatusNotFound, "no_index"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"embedding failure", &domain.EmbeddingError{Err: assert.AnError}, http.StatusBadGateway, "embedding_service_error"},
		{"generation failure", &domain.GenerationError{Err: assert.AnError}, http.StatusBadGateway, "generation_service_error"},
		{"inconsistency", &domain.ConsistencyError{Reason: "vector count"}, http.StatusInternalServerError, "index_inconsistency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(&stubPipeline{queryErr: tc.err})
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/api/v1/query", "application/json", queryBody("q", "", 0))
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, resp.StatusCode)

			body := decodeJSON[errorResponse](t, resp)
			assert.Equal(t, tc.wantCode, body.Error)
		})
	}
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(&stubPipeline{listDocs: []domain.Document{
		{ID: "doc-1", Filename: "a.txt", ChunkCount: 2},
		{ID: "doc-2", Filename: "b.md", ChunkCount: 5},
	}})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/documents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[struct {
		Documents []domain.Document `json:"documents"`
	}](t, resp)
	require.Len(t, body.Documents, 2)
	assert.Equal(t, "doc-1", body.Documents[0].ID)
}

func TestListDocumentsEmptyIsArray(t *testing.T) {
	ts := newTestServer(&stubPipeline{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/documents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw := decodeJSON[map[string]json.RawMessage](t, resp)
	assert.JSONEq(t, "[]", string(raw["documents"]))
}

func TestGetDocument(t *testing.T) {
	stub := &stubPipeline{getDoc: &domain.Document{
		ID:         "doc-1",
		Filename:   "a.txt",
		CreatedAt:  time.Now().UTC(),
		ChunkCount: 2,
	}}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/documents/doc-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[domain.Document](t, resp)
	assert.Equal(t, "doc-1", body.ID)
	assert.Equal(t, "a.txt", body.Filename)
	assert.Equal(t, "doc-1", stub.lastDocID)
}

func TestGetUnknownDocument(t *testing.T) {
	ts := newTestServer(&stubPipeline{getErr: domain.ErrNotFound})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/documents/missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, "not_found", body.Error)
}

func TestDeleteDocument(t *testing.T) {
	stub := &stubPipeline{}
	ts := newTestServer(stub)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/documents/doc-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "doc-1", stub.lastDocID)
}

func TestDeleteUnknownDocument(t *testing.T) {
	ts := newTestServer(&stubPipeline{deleteErr: domain.ErrNotFound})
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/documents/missing", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, "not_found", body.Error)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(&stubPipeline{})
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/query", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
