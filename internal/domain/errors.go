package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyDocument means extraction produced no usable text. Ingestion aborts
// before any index mutation.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// ErrNoIndex means a query referenced a document id that was never ingested
// or has been deleted. Distinct from a legitimate empty retrieval result.
var ErrNoIndex = errors.New("document is not indexed")

// ErrNotFound means the referenced document does not exist.
var ErrNotFound = errors.New("document not found")

// EmbeddingError wraps a failure of the external embedding service.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding service: %v", e.Err) }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError wraps a failure of the external answer-generation service.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation service: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// ConsistencyError reports a violated index invariant (dimension mismatch,
// orphaned chunk). It indicates a defect and is fatal for the operation.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string { return "index consistency: " + e.Reason }
