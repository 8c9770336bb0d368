package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"askmydocs/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity
// (dot product over L2-normalized vectors). Vectors are partitioned by
// document id; a single RWMutex guarantees searches never observe a
// partially inserted or partially removed document.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	parts     map[string]map[int]domain.Chunk // documentID -> ordinal -> chunk
}

// NewStorage creates an empty store accepting vectors of the given dimension.
func NewStorage(dimension int) *Storage {
	if dimension <= 0 {
		dimension = 256
	}
	return &Storage{
		dimension: dimension,
		parts:     make(map[string]map[int]domain.Chunk),
	}
}

// Upsert inserts or replaces the given chunks. Replacement is keyed by
// (documentID, ordinal), so re-inserting a chunk never duplicates it.
func (s *Storage) Upsert(_ context.Context, documentID string, chunks []domain.Chunk) error {
	if documentID == "" {
		return &domain.ConsistencyError{Reason: "empty document id"}
	}
	for _, ch := range chunks {
		if ch.DocumentID != documentID {
			return &domain.ConsistencyError{Reason: fmt.Sprintf("chunk %d belongs to document %q, not %q", ch.Ordinal, ch.DocumentID, documentID)}
		}
		if len(ch.Embedding) != s.dimension {
			return &domain.ConsistencyError{Reason: fmt.Sprintf("chunk %d has dimension %d, index expects %d", ch.Ordinal, len(ch.Embedding), s.dimension)}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.parts[documentID]
	if part == nil {
		part = make(map[int]domain.Chunk, len(chunks))
		s.parts[documentID] = part
	}
	for _, ch := range chunks {
		part[ch.Ordinal] = ch
	}
	return nil
}

// Remove drops all of a document's vectors in one step. Removing an absent
// document is a no-op.
func (s *Storage) Remove(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parts, documentID)
	return nil
}

// HasDocument reports whether any vectors are indexed for the document.
func (s *Storage) HasDocument(_ context.Context, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.parts[documentID]
	return ok, nil
}

// Search returns up to k results ranked by descending score; ties break by
// ascending ordinal, then ascending document id. A non-empty documentID
// restricts candidates to that document and fails with domain.ErrNoIndex if
// it is not indexed.
func (s *Storage) Search(_ context.Context, vector []float32, k int, documentID string) ([]domain.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, &domain.ConsistencyError{Reason: fmt.Sprintf("query vector has dimension %d, index expects %d", len(vector), s.dimension)}
	}
	if k <= 0 {
		k = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []map[int]domain.Chunk
	if documentID != "" {
		part, ok := s.parts[documentID]
		if !ok {
			return nil, domain.ErrNoIndex
		}
		candidates = append(candidates, part)
	} else {
		for _, part := range s.parts {
			candidates = append(candidates, part)
		}
	}

	var results []domain.SearchResult
	for _, part := range candidates {
		for _, ch := range part {
			results = append(results, domain.SearchResult{Chunk: ch, Score: dot(ch.Embedding, vector)})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Ordinal != results[j].Chunk.Ordinal {
			return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
		}
		return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
