// Package memory is a brute-force cosine vector store. It backs tests and
// local runs that have no Qdrant server.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/index"
)

type entry struct {
	chunk  core.Chunk
	vector []float32
}

// Store keeps every collection as an in-memory slice and scans it on
// search. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]entry
	dimension   int
}

// NewStore creates an empty store for vectors of the given dimension.
func NewStore(dimension int) *Store {
	return &Store{
		collections: make(map[string][]entry),
		dimension:   dimension,
	}
}

// Upsert inserts or replaces a chunk in one collection, keyed by chunk ID.
func (s *Store) Upsert(_ context.Context, collection string, chunk core.Chunk, vector []float32) error {
	if len(vector) != s.dimension {
		return &core.StorageError{
			Op:  "upsert",
			Err: fmt.Errorf("vector dimension %d, want %d", len(vector), s.dimension),
		}
	}
	if !index.ValidCollection(collection) {
		return &core.StorageError{Op: "upsert", Err: fmt.Errorf("unknown collection %q", collection)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.collections[collection]
	for i := range entries {
		if entries[i].chunk.ID == chunk.ID {
			entries[i] = entry{chunk: chunk, vector: vector}
			return nil
		}
	}
	s.collections[collection] = append(entries, entry{chunk: chunk, vector: vector})
	return nil
}

// Search scans one collection and returns the top candidates for a single
// container by cosine similarity.
func (s *Store) Search(_ context.Context, collection string, vector []float32, containerID string, limit int) ([]core.Candidate, error) {
	if len(vector) != s.dimension {
		return nil, &core.StorageError{
			Op:  "search",
			Err: fmt.Errorf("vector dimension %d, want %d", len(vector), s.dimension),
		}
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []core.Candidate
	for _, e := range s.collections[collection] {
		if e.chunk.ContainerID != containerID {
			continue
		}
		candidates = append(candidates, core.Candidate{
			Chunk:      e.chunk,
			Similarity: cosine(vector, e.vector),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// PurgeContainer removes a container's chunks from every collection.
func (s *Store) PurgeContainer(_ context.Context, containerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for col, entries := range s.collections {
		kept := entries[:0]
		for _, e := range entries {
			if e.chunk.ContainerID != containerID {
				kept = append(kept, e)
			}
		}
		s.collections[col] = kept
	}
	return nil
}

// Len returns the number of entries in one collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
