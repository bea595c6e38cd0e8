package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRelevantMatch means no document cleared the relevance threshold.
	// It is an expected outcome, not a fault.
	ErrNoRelevantMatch = errors.New("no relevant match")

	ErrEmptyContent      = errors.New("content is empty")
	ErrInvalidTopK       = errors.New("topK must be positive")
	ErrInvalidType       = errors.New("invalid document type")
	ErrDuplicateID       = errors.New("duplicate document id")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// EmbeddingServiceError is returned when the external embedding service is
// unreachable, answers with a non-success status or sends a malformed vector.
type EmbeddingServiceError struct {
	Op     string
	Status int
	Err    error
}

func (e *EmbeddingServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("embedding service: %s (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// StorageError wraps a persistence failure. The operation that produced it
// was not committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ScoringError reports a stored embedding whose length differs from the query
// vector. It means an earlier ingest persisted a malformed vector.
type ScoringError struct {
	DocumentID string
	Want       int
	Got        int
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring: document %s has %d dimensions, query has %d", e.DocumentID, e.Got, e.Want)
}

func (e *ScoringError) Is(target error) bool { return target == ErrDimensionMismatch }
