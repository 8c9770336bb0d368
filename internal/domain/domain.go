package domain

import (
	"context"
	"time"
)

// Document is the metadata of a single ingested document.
// It is immutable once indexed; re-uploading the same file creates a new one.
type Document struct {
	ID         string    `json:"document_id"`
	Filename   string    `json:"filename"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunk_count"`
	Summary    string    `json:"summary,omitempty"`
}

// Chunk is a contiguous, bounded-length span of a document's text, the unit
// of embedding and retrieval. Ordinal is the chunk's zero-based position
// within its document and is stable across re-ingestion of identical input.
type Chunk struct {
	DocumentID  string
	Ordinal     int
	Text        string
	Embedding   []float32
	SourceLabel string
	Page        int // 0 when the source format has no page numbering
}

// SearchResult is a matching chunk with the similarity score that ranked it.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// SourceDocument is a citation: a retrieved passage plus provenance and the
// score that justified its inclusion, captured at retrieval time.
type SourceDocument struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Score   float64 `json:"score"`
}

// QueryResult is constructed fresh per query and never persisted.
type QueryResult struct {
	Answer           string           `json:"answer"`
	Sources          []SourceDocument `json:"sources"`
	Confidence       float64          `json:"confidence"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

// Chunker splits extracted document text into overlapping retrievable units.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Embedder converts free text into fixed-dimension vectors. EmbedBatch is
// order-preserving and all-or-nothing: either every input gets a vector or
// the call fails as a unit.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from a grounded prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorStore indexes chunk embeddings and supports scoped similarity search.
// Upsert is idempotent per (documentID, ordinal); Remove is atomic with
// respect to concurrent searches.
type VectorStore interface {
	Upsert(ctx context.Context, documentID string, chunks []Chunk) error
	Remove(ctx context.Context, documentID string) error
	// Search returns up to k results ranked by descending score, ties broken
	// by ascending ordinal then documentID. An empty documentID searches the
	// full corpus.
	Search(ctx context.Context, vector []float32, k int, documentID string) ([]SearchResult, error)
	HasDocument(ctx context.Context, documentID string) (bool, error)
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
