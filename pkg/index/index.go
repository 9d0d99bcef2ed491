// Package index routes chunks into the vector collections and runs
// container-scoped searches over them.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/logseer/pkg/core"
)

// Collection names. Every chunk lands in exact and approximate; only
// chunks at or above the error threshold land in errors.
const (
	CollectionExact  = "exact"
	CollectionApprox = "approximate"
	CollectionErrors = "errors"
)

// ValidCollection reports whether name is a known collection.
func ValidCollection(name string) bool {
	switch name {
	case CollectionExact, CollectionApprox, CollectionErrors:
		return true
	}
	return false
}

// Store is the vector storage backend behind the index.
type Store interface {
	// Upsert writes a chunk and its embedding into one collection.
	Upsert(ctx context.Context, collection string, chunk core.Chunk, vector []float32) error

	// Search returns up to limit candidates from one collection, scoped
	// to a single container, ranked by descending similarity.
	Search(ctx context.Context, collection string, vector []float32, containerID string, limit int) ([]core.Candidate, error)

	// PurgeContainer removes a container's chunks from all collections.
	PurgeContainer(ctx context.Context, containerID string) error
}

// Options tune the index facade.
type Options struct {
	// ErrorThreshold is the minimum severity for the error collection.
	ErrorThreshold float64

	// RetainRemoved keeps a destroyed container's chunks searchable.
	RetainRemoved bool

	// WriteRetries bounds upsert attempts before a chunk is dropped.
	WriteRetries int

	// RetryBase is the first backoff delay between write attempts.
	RetryBase time.Duration
}

// Stats are the index counters, reported over the daemon transport.
type Stats struct {
	ChunksIndexed uint64 `json:"chunks_indexed"`
	ErrorChunks   uint64 `json:"error_chunks"`
	Dropped       uint64 `json:"dropped"`
	Searches      uint64 `json:"searches"`
	Purged        uint64 `json:"purged_containers"`
}

// Index fans chunk writes out to the collections and scopes searches.
type Index struct {
	store  Store
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates an index over the given store.
func New(store Store, opts Options, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteRetries < 1 {
		opts.WriteRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	return &Index{store: store, opts: opts, logger: logger}
}

// Add writes a chunk into the exact and approximate collections, and into
// the error collection when its severity qualifies. Failed writes are
// retried with backoff, then dropped and counted; a dropped chunk never
// fails the caller.
func (ix *Index) Add(ctx context.Context, chunk core.Chunk, vector []float32) {
	collections := []string{CollectionExact, CollectionApprox}
	isError := chunk.Severity >= ix.opts.ErrorThreshold
	if isError {
		collections = append(collections, CollectionErrors)
	}

	dropped := false
	for _, col := range collections {
		if err := ix.upsertWithRetry(ctx, col, chunk, vector); err != nil {
			dropped = true
			ix.logger.Error("chunk dropped", "container", chunk.ContainerID,
				"chunk", chunk.ID, "collection", col, "err", err)
		}
	}

	ix.mu.Lock()
	if dropped {
		ix.stats.Dropped++
	} else {
		ix.stats.ChunksIndexed++
		if isError {
			ix.stats.ErrorChunks++
		}
	}
	ix.mu.Unlock()
}

func (ix *Index) upsertWithRetry(ctx context.Context, collection string, chunk core.Chunk, vector []float32) error {
	var err error
	for i := 1; i <= ix.opts.WriteRetries; i++ {
		err = ix.store.Upsert(ctx, collection, chunk, vector)
		if err == nil {
			return nil
		}
		if !core.IsTransient(err) || i == ix.opts.WriteRetries {
			break
		}
		shift := i - 1
		if shift > 5 {
			shift = 5
		}
		delay := ix.opts.RetryBase << uint(shift)
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Search returns up to limit candidates from one collection, scoped to
// containerID. Search failures are transient storage errors; a search
// never returns partial results.
func (ix *Index) Search(ctx context.Context, collection string, vector []float32, containerID string, limit int) ([]core.Candidate, error) {
	if !ValidCollection(collection) {
		return nil, &core.ValidationError{Field: "collection", Msg: fmt.Sprintf("unknown collection %q", collection)}
	}
	ix.mu.Lock()
	ix.stats.Searches++
	ix.mu.Unlock()

	candidates, err := ix.store.Search(ctx, collection, vector, containerID, limit)
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// Remove applies the retention policy for a destroyed container. With
// retention on this is a no-op; otherwise the container's chunks are
// purged from every collection.
func (ix *Index) Remove(ctx context.Context, containerID string) error {
	if ix.opts.RetainRemoved {
		return nil
	}
	if err := ix.store.PurgeContainer(ctx, containerID); err != nil {
		return err
	}
	ix.mu.Lock()
	ix.stats.Purged++
	ix.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the index counters.
func (ix *Index) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.stats
}
