// Package qdrant is a REST client for a Qdrant server, holding one Qdrant
// collection per index collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/index"
)

// Store talks to Qdrant over its REST API. Cosine distance throughout;
// the exact and error collections are searched exhaustively, the
// approximate collection uses Qdrant's default HNSW index.
type Store struct {
	url    string
	apiKey string
	client *http.Client
}

// Config holds connection settings for a Store.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// NewStore creates a Qdrant-backed store.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

func collectionName(collection string) string {
	return "logseer_" + collection
}

// EnsureCollections creates the three collections if they do not exist.
func (s *Store) EnsureCollections(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return &core.StorageError{Op: "init", Err: fmt.Errorf("invalid dimension %d", dimension)}
	}
	for _, col := range []string{index.CollectionExact, index.CollectionApprox, index.CollectionErrors} {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		url := fmt.Sprintf("%s/collections/%s", s.url, collectionName(col))
		if err := s.do(ctx, http.MethodPut, url, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes one chunk into a collection, waiting for the write to be
// durable.
func (s *Store) Upsert(ctx context.Context, collection string, chunk core.Chunk, vector []float32) error {
	point := map[string]any{
		"id":     chunk.ID,
		"vector": vector,
		"payload": map[string]any{
			"container_id": chunk.ContainerID,
			"seq":          chunk.Seq,
			"text":         chunk.Text,
			"overlap":      chunk.Overlap,
			"first_seq":    chunk.FirstSeq,
			"last_seq":     chunk.LastSeq,
			"start":        chunk.Start.Format(time.RFC3339Nano),
			"end":          chunk.End.Format(time.RFC3339Nano),
			"severity":     chunk.Severity,
			"max_level":    string(chunk.MaxLevel),
			"lines":        chunk.Lines,
		},
	}
	body := map[string]any{"points": []any{point}}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, collectionName(collection))
	return s.do(ctx, http.MethodPut, url, body, nil)
}

// Search runs a scored vector search scoped to one container. The exact
// and error collections bypass the ANN index.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, containerID string, limit int) ([]core.Candidate, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]any{
			"must": []any{
				map[string]any{
					"key":   "container_id",
					"match": map[string]any{"value": containerID},
				},
			},
		},
	}
	if collection != index.CollectionApprox {
		req["params"] = map[string]any{"exact": true}
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, collectionName(collection))
	if err := s.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}

	candidates := make([]core.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		candidates = append(candidates, core.Candidate{
			Chunk:      chunkFromPayload(r.ID, r.Payload),
			Similarity: r.Score,
		})
	}
	return candidates, nil
}

// PurgeContainer deletes a container's points from every collection.
func (s *Store) PurgeContainer(ctx context.Context, containerID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{
					"key":   "container_id",
					"match": map[string]any{"value": containerID},
				},
			},
		},
	}
	for _, col := range []string{index.CollectionExact, index.CollectionApprox, index.CollectionErrors} {
		url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, collectionName(col))
		if err := s.do(ctx, http.MethodPost, url, body, nil); err != nil {
			return err
		}
	}
	return nil
}

func chunkFromPayload(id string, payload map[string]any) core.Chunk {
	chunk := core.Chunk{ID: id}
	if v, ok := payload["container_id"].(string); ok {
		chunk.ContainerID = v
	}
	if v, ok := payload["seq"].(float64); ok {
		chunk.Seq = uint64(v)
	}
	if v, ok := payload["text"].(string); ok {
		chunk.Text = v
	}
	if v, ok := payload["overlap"].(float64); ok {
		chunk.Overlap = int(v)
	}
	if v, ok := payload["first_seq"].(float64); ok {
		chunk.FirstSeq = uint64(v)
	}
	if v, ok := payload["last_seq"].(float64); ok {
		chunk.LastSeq = uint64(v)
	}
	if v, ok := payload["start"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			chunk.Start = t
		}
	}
	if v, ok := payload["end"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			chunk.End = t
		}
	}
	if v, ok := payload["severity"].(float64); ok {
		chunk.Severity = v
	}
	if v, ok := payload["max_level"].(string); ok {
		chunk.MaxLevel = core.Level(v)
	}
	if v, ok := payload["lines"].(float64); ok {
		chunk.Lines = int(v)
	}
	return chunk
}

func (s *Store) do(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &core.StorageError{Op: "encode", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return &core.StorageError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &core.StorageError{Op: "request", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &core.StorageError{
			Op:        "request",
			Transient: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("qdrant %s %s: %s: %s", method, url, resp.Status, msg),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &core.StorageError{Op: "decode", Err: err}
		}
	}
	return nil
}
