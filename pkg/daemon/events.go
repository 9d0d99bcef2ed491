package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/transport/uds"
)

// PollLoop snapshots the tracked container set every interval and
// broadcasts a delta event when it changed.
type PollLoop struct {
	daemon   *Daemon
	interval time.Duration
	logger   *slog.Logger
	prev     map[string]core.ContainerHandle
}

// NewPollLoop creates a poll loop for the given daemon.
func NewPollLoop(d *Daemon, interval time.Duration, logger *slog.Logger) *PollLoop {
	return &PollLoop{
		daemon:   d,
		interval: interval,
		logger:   logger,
		prev:     make(map[string]core.ContainerHandle),
	}
}

// Run starts the poll loop. Blocks until ctx is cancelled.
func (pl *PollLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(pl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.tick()
		}
	}
}

func (pl *PollLoop) tick() {
	cur := make(map[string]core.ContainerHandle)
	for _, h := range pl.daemon.lister.Containers() {
		cur[h.ID] = h
	}

	delta := computeDelta(pl.prev, cur)
	pl.prev = cur

	if !delta.HasChanges() {
		return
	}
	evt, err := uds.NewEvent(uds.EventContainersDelta, delta)
	if err != nil {
		pl.logger.Error("encode delta event", "err", err)
		return
	}
	pl.daemon.Server().Broadcast(evt)
}

// Delta represents container set changes between poll cycles.
type Delta struct {
	Added   []core.ContainerHandle `json:"added,omitempty"`
	Updated []core.ContainerHandle `json:"updated,omitempty"`
	Removed []string               `json:"removed,omitempty"`
}

// HasChanges returns true if the delta contains any changes.
func (d Delta) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Updated) > 0 || len(d.Removed) > 0
}

func computeDelta(old, new map[string]core.ContainerHandle) Delta {
	var d Delta

	for id, h := range new {
		prev, existed := old[id]
		if !existed {
			d.Added = append(d.Added, h)
		} else if handleChanged(prev, h) {
			d.Updated = append(d.Updated, h)
		}
	}

	for id := range old {
		if _, exists := new[id]; !exists {
			d.Removed = append(d.Removed, id)
		}
	}

	return d
}

func handleChanged(a, b core.ContainerHandle) bool {
	return a.State != b.State ||
		a.Name != b.Name ||
		a.Chunks != b.Chunks
}
