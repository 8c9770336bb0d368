package retriever

import (
	"context"

	"askmydocs/internal/domain"
)

// Retriever maps a query vector to citations. Results below the score
// threshold are dropped rather than padded, so an empty slice is a valid
// outcome distinct from domain.ErrNoIndex.
type Retriever struct {
	store    domain.VectorStore
	minScore float64
}

// New creates a retriever over the given store with a minimum score cutoff.
func New(store domain.VectorStore, minScore float64) *Retriever {
	return &Retriever{store: store, minScore: minScore}
}

// Retrieve returns at most k citations whose score clears the threshold.
// A non-empty documentID scopes the search to that document and fails with
// domain.ErrNoIndex if it was never ingested or has been deleted.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, documentID string, k int) ([]domain.SourceDocument, error) {
	if documentID != "" {
		ok, err := r.store.HasDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNoIndex
		}
	}
	results, err := r.store.Search(ctx, vector, k, documentID)
	if err != nil {
		return nil, err
	}
	sources := make([]domain.SourceDocument, 0, len(results))
	for _, res := range results {
		if res.Score < r.minScore {
			continue
		}
		sources = append(sources, domain.SourceDocument{
			Content: res.Chunk.Text,
			Source:  res.Chunk.SourceLabel,
			Page:    res.Chunk.Page,
			Score:   res.Score,
		})
	}
	return sources, nil
}
