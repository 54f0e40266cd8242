package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks research-agent/internal/vectorstore VectorStore

import (
	"context"
	"errors"
)

// IDKey is the payload key holding the caller's point ID.
// Backends that require UUID point IDs map the caller's ID and keep the original here.
const IDKey = "point_id"

// ErrDimensionMismatch is returned when a vector does not match the collection size.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
// Score is the cosine similarity; higher is closer.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// Range bounds a numeric payload field. Nil bounds are open.
type Range struct {
	Key string
	Gte *float64
	Lte *float64
}

// Filter restricts a search to points whose payload matches.
// All conditions must hold.
type Filter struct {
	// Match holds exact-equality conditions on string, integer or bool payload fields.
	Match  map[string]any
	Ranges []Range
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.Match) == 0 && len(f.Ranges) == 0
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// EnsureCollection creates the collection if missing and validates its vector size otherwise.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to k points ordered by descending similarity, honouring filter.
	Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points stored in the collection.
	Count(ctx context.Context, collection string) (int, error)
}
