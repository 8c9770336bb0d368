package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"askmydocs/internal/domain"
)

const maxQuestionLen = 500

type uploadResponse struct {
	DocumentID       string `json:"document_id"`
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

type queryRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type queryResponse struct {
	Answer           string                  `json:"answer"`
	Sources          []domain.SourceDocument `json:"sources"`
	Confidence       float64                 `json:"confidence"`
	ProcessingTimeMs int64                   `json:"processing_time_ms"`
	Timestamp        time.Time               `json:"timestamp"`
}

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid_upload", "expected multipart form data with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_upload", "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := s.allowedExts[ext]; !ok {
		s.writeError(w, http.StatusBadRequest, "unsupported_file_type", "unsupported file type "+ext)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_upload", "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_upload", "empty file uploaded")
		return
	}

	doc, err := s.pipeline.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, uploadResponse{
		DocumentID:       doc.ID,
		Filename:         doc.Filename,
		Status:           "success",
		Message:          "Document processed successfully",
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.pipeline.List(r.Context())
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.pipeline.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.pipeline.Delete(r.Context(), id); err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Document deleted successfully",
		"document_id": id,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}
	if utf8.RuneCountInString(req.Question) > maxQuestionLen {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "question exceeds 500 characters")
		return
	}
	if req.MaxResults < 0 || req.MaxResults > 10 {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "max_results must be between 1 and 10")
		return
	}

	result, err := s.pipeline.Query(r.Context(), req.Question, req.DocumentID, req.MaxResults)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	if result.Sources == nil {
		result.Sources = []domain.SourceDocument{}
	}
	s.writeJSON(w, http.StatusOK, queryResponse{
		Answer:           result.Answer,
		Sources:          result.Sources,
		Confidence:       result.Confidence,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Timestamp:        time.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": time.Now().UTC(),
	})
}

// writePipelineError maps the pipeline's error taxonomy to stable HTTP
// code/message pairs.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var embErr *domain.EmbeddingError
	var genErr *domain.GenerationError
	var conErr *domain.ConsistencyError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", "document not found")
	case errors.Is(err, domain.ErrNoIndex):
		s.writeError(w, http.StatusNotFound, "no_index", "document is not indexed")
	case errors.Is(err, domain.ErrEmptyDocument):
		s.writeError(w, http.StatusUnprocessableEntity, "empty_document", "document contains no extractable text")
	case errors.As(err, &embErr):
		s.logger.Error("embedding service failure", "error", err)
		s.writeError(w, http.StatusBadGateway, "embedding_service_error", "embedding service is unavailable")
	case errors.As(err, &genErr):
		s.logger.Error("generation service failure", "error", err)
		s.writeError(w, http.StatusBadGateway, "generation_service_error", "answer generation service is unavailable")
	case errors.As(err, &conErr):
		s.logger.Error("index consistency violation", "error", err)
		s.writeError(w, http.StatusInternalServerError, "index_inconsistency", "internal index inconsistency")
	default:
		s.logger.Error("pipeline failure", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
