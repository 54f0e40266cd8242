package rag

import "errors"

var (
	// ErrEmbeddingUnavailable means the query could not be embedded after bounded retries.
	// Callers treat it as "no context available".
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrIndexUnavailable means the vector index failed after bounded retries.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrInvalidQuery is returned for blank queries.
	ErrInvalidQuery = errors.New("query must not be empty")
	// ErrInvalidFilter is returned for filters that cannot match anything.
	ErrInvalidFilter = errors.New("invalid retrieval filter")
)
