package core

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a lookup that matched nothing. For queries it maps
// to an empty-sources response, not a failure.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input. Never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ProviderError wraps a failure from an external model provider.
// Transient failures may be retried with backoff; permanent ones may not.
type ProviderError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StorageError wraps a failure from the vector index backend.
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IngestionError wraps a failure in one container's ingestion path. It
// never escapes the owning task; the watcher logs it and recovers.
type IngestionError struct {
	ContainerID string
	Op          string
	Err         error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s %s: %v", e.Op, e.ContainerID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider or storage
// failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}
