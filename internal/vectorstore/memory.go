package vectorstore

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process VectorStore using brute-force cosine similarity.
// Contents are lost when the process exits.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	size   int
	points map[string]Point
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// EnsureCollection creates the collection or validates its vector size.
func (m *MemoryStore) EnsureCollection(_ context.Context, collection string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be greater than 0")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[collection]; ok {
		if c.size != vectorSize {
			return fmt.Errorf("%w: collection %s expects %d, configured %d", ErrDimensionMismatch, collection, c.size, vectorSize)
		}
		return nil
	}
	m.collections[collection] = &memoryCollection{size: vectorSize, points: make(map[string]Point)}
	return nil
}

// CollectionExists reports whether the collection was created.
func (m *MemoryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[collection]
	return ok, nil
}

func (m *MemoryStore) collection(name string) (*memoryCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return c, nil
}

// Upsert inserts or replaces points by ID.
func (m *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vec) != c.size {
			return fmt.Errorf("%w: point %s has %d dimensions, collection %s expects %d", ErrDimensionMismatch, p.ID, len(p.Vec), collection, c.size)
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vec))
		copy(vec, p.Vec)
		c.points[p.ID] = Point{ID: p.ID, Vec: vec, Meta: maps.Clone(p.Meta)}
	}
	return nil
}

// Search returns the k most similar points that satisfy filter.
func (m *MemoryStore) Search(_ context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(query) != c.size {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s expects %d", ErrDimensionMismatch, len(query), collection, c.size)
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if !matches(p.Meta, filter) {
			continue
		}
		results = append(results, SearchResult{
			PointID: p.ID,
			Score:   cosine(query, p.Vec),
			Meta:    maps.Clone(p.Meta),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes points by ID. Unknown IDs are ignored.
func (m *MemoryStore) Delete(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

// Count returns the number of stored points.
func (m *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(collection)
	if err != nil {
		return 0, err
	}
	return len(c.points), nil
}

func matches(meta map[string]any, f Filter) bool {
	for key, want := range f.Match {
		got, ok := meta[key]
		if !ok {
			return false
		}
		if gi, ok := toFloat(got); ok {
			wi, ok := toFloat(want)
			if !ok || gi != wi {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	for _, r := range f.Ranges {
		v, ok := toFloat(meta[r.Key])
		if !ok {
			return false
		}
		if r.Gte != nil && v < *r.Gte {
			return false
		}
		if r.Lte != nil && v > *r.Lte {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
