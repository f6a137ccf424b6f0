// Package vectorindex is a thin wrapper over a nearest-neighbour search
// backend keyed by recipe id. QdrantIndex is the production implementation;
// Memory is an exact in-process index for tests and local runs.
package vectorindex

import "context"

// Point is a vector stored under id with an arbitrary payload.
type Point struct {
	// ID is the recipe id. Qdrant stores it in the payload and keys the
	// point by a UUID derived from it.
	ID     string
	Vector []float32
	// Payload holds scalar, list or nested map values.
	Payload map[string]any
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Index is the interface for storing and searching recipe vectors.
// Implementations must be safe to call from multiple goroutines.
type Index interface {
	// Upsert stores or replaces points.
	Upsert(ctx context.Context, points []Point) error
	// Search returns up to limit hits ordered by descending similarity,
	// skipping the first offset hits.
	Search(ctx context.Context, vector []float32, limit, offset int) ([]Hit, error)
	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	// Count returns the number of stored points.
	Count(ctx context.Context) (int, error)
}

// IDs returns the ids of hits in order.
func IDs(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}
