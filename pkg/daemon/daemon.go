// Package daemon wires the watcher, index, and retriever behind the UDS
// transport.
package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modoterra/logseer/internal/buildinfo"
	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/index"
	"github.com/modoterra/logseer/pkg/retrieve"
	"github.com/modoterra/logseer/pkg/transport/uds"
)

// Querier answers log questions. *retrieve.Retriever satisfies it.
type Querier interface {
	Query(ctx context.Context, req retrieve.Request) (retrieve.Response, error)
}

// ContainerLister reports the tracked container set. *ingest.Watcher
// satisfies it.
type ContainerLister interface {
	Containers() []core.ContainerHandle
}

// Daemon is the logseerd process: it owns the transport and dispatches
// requests to the pipeline components.
type Daemon struct {
	server  *uds.Server
	querier Querier
	lister  ContainerLister
	index   *index.Index
	logger  *slog.Logger
}

// New creates a daemon instance.
func New(socketPath string, querier Querier, lister ContainerLister, ix *index.Index, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		server:  uds.NewServer(socketPath, logger),
		querier: querier,
		lister:  lister,
		index:   ix,
		logger:  logger,
	}
	d.registerHandlers()
	return d
}

// Run starts the daemon and blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	return d.server.Start(ctx)
}

// Shutdown cleans up resources.
func (d *Daemon) Shutdown() {
	d.server.Shutdown()
}

// Server returns the underlying UDS server (for broadcasting events).
func (d *Daemon) Server() *uds.Server {
	return d.server
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodQuery, d.handleQuery)
	d.server.Handle(uds.MethodListContainers, d.handleListContainers)
	d.server.Handle(uds.MethodStats, d.handleStats)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: buildinfo.Version}, nil
}

func (d *Daemon) handleQuery(ctx context.Context, msg uds.Message) (any, error) {
	var req uds.QueryRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	resp, err := d.querier.Query(ctx, retrieve.Request{
		ContainerID: req.ContainerID,
		Question:    req.Question,
		K:           req.K,
		Collection:  req.Collection,
	})
	if err != nil {
		d.logger.Warn("query failed", "container", req.ContainerID, "err", err)
		return nil, err
	}

	out := uds.QueryResponse{
		Answer:  resp.Answer,
		Sources: make([]uds.QuerySource, len(resp.Sources)),
	}
	for i, s := range resp.Sources {
		out.Sources[i] = uds.QuerySource{
			ChunkID:     s.ChunkID,
			ContainerID: s.ContainerID,
			FirstTS:     s.FirstTS,
			LastTS:      s.LastTS,
			Snippet:     s.Snippet,
			Score:       s.Score,
		}
	}
	return out, nil
}

func (d *Daemon) handleListContainers(_ context.Context, _ uds.Message) (any, error) {
	return d.lister.Containers(), nil
}

func (d *Daemon) handleStats(_ context.Context, _ uds.Message) (any, error) {
	handles := d.lister.Containers()
	streaming := 0
	for _, h := range handles {
		if h.State == core.StateStreaming {
			streaming++
		}
	}

	stats := d.index.Stats()
	return uds.StatsResponse{
		Containers:    len(handles),
		Streaming:     streaming,
		ChunksIndexed: stats.ChunksIndexed,
		ErrorChunks:   stats.ErrorChunks,
		Dropped:       stats.Dropped,
		Searches:      stats.Searches,
		Purged:        stats.Purged,
	}, nil
}
