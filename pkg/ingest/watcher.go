package ingest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/llm"
)

// Indexer receives embedded chunks and retention requests. *index.Index
// satisfies it.
type Indexer interface {
	Add(ctx context.Context, chunk core.Chunk, vector []float32)
	Remove(ctx context.Context, containerID string) error
}

// WatcherOptions tune the watcher and the per-container tasks it spawns.
type WatcherOptions struct {
	Chunking ChunkerOptions

	// EmbedRetries bounds embedding attempts per chunk.
	EmbedRetries int

	// RetryBase is the first backoff delay for embeds and event-stream
	// reconnects.
	RetryBase time.Duration

	// FlushInterval is how often tasks check for stale buffers.
	FlushInterval time.Duration
}

// Watcher tracks container lifecycles and runs one ingestion task per
// streaming container. The event loop is the only writer of the
// container set.
type Watcher struct {
	rt       core.Runtime
	embedder llm.Embedder
	indexer  Indexer
	opts     WatcherOptions
	logger   *slog.Logger

	mu         sync.Mutex
	containers map[string]core.ContainerHandle
	tasks      map[string]*task
	chunks     map[string]uint64
}

type task struct {
	cancel context.CancelFunc
	ctrl   chan bool     // true pauses, false resumes
	stop   chan struct{} // closed to request a drain-and-flush exit
	done   chan struct{} // closed when the task has fully exited
}

// NewWatcher creates a watcher over the given runtime.
func NewWatcher(rt core.Runtime, embedder llm.Embedder, indexer Indexer, opts WatcherOptions, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.EmbedRetries < 1 {
		opts.EmbedRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Watcher{
		rt:         rt,
		embedder:   embedder,
		indexer:    indexer,
		opts:       opts,
		logger:     logger,
		containers: make(map[string]core.ContainerHandle),
		tasks:      make(map[string]*task),
		chunks:     make(map[string]uint64),
	}
}

// Run primes the container set from a full list, then consumes lifecycle
// events until ctx is cancelled. A broken event stream is re-established
// with exponential backoff followed by a resync against the runtime.
func (w *Watcher) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := w.resync(ctx); err != nil {
			failures++
			w.logger.Error("resync failed", "err", err)
			select {
			case <-time.After(reconnectBackoff(w.opts.RetryBase, failures)):
				continue
			case <-ctx.Done():
				w.stopAll()
				return nil
			}
		}

		events, errs := w.rt.Events(ctx)

	consume:
		for {
			select {
			case <-ctx.Done():
				w.stopAll()
				return nil
			case ev, ok := <-events:
				if !ok {
					w.logger.Warn("event stream closed")
					break consume
				}
				failures = 0
				w.handleEvent(ctx, ev)
			case err := <-errs:
				w.logger.Warn("event stream broken", "err", err)
				break consume
			}
		}

		failures++
		select {
		case <-time.After(reconnectBackoff(w.opts.RetryBase, failures)):
		case <-ctx.Done():
			w.stopAll()
			return nil
		}
	}
}

// Containers returns the known handles sorted by name, with chunk counts.
func (w *Watcher) Containers() []core.ContainerHandle {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]core.ContainerHandle, 0, len(w.containers))
	for id, h := range w.containers {
		h.Chunks = w.chunks[id]
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resync diffs the runtime's container list against the tracked set:
// missing running containers get tasks, vanished ones are stopped.
// Already-streaming containers are left alone.
func (w *Watcher) resync(ctx context.Context) error {
	handles, err := w.rt.List(ctx)
	if err != nil {
		return &core.IngestionError{Op: "resync", Err: err}
	}

	seen := make(map[string]bool, len(handles))
	for _, h := range handles {
		seen[h.ID] = true

		w.mu.Lock()
		_, hasTask := w.tasks[h.ID]
		known, tracked := w.containers[h.ID]
		w.mu.Unlock()

		switch {
		case h.State == core.StateStreaming && !hasTask:
			w.startTask(ctx, h)
		case h.State != core.StateStreaming && hasTask:
			w.stopTask(h.ID, core.StateStopped)
		case !tracked:
			w.setHandle(h)
		case tracked && !hasTask && known.State != h.State:
			w.setHandle(h)
		}
	}

	w.mu.Lock()
	var vanished []string
	for id := range w.tasks {
		if !seen[id] {
			vanished = append(vanished, id)
		}
	}
	w.mu.Unlock()
	for _, id := range vanished {
		w.stopTask(id, core.StateStopped)
	}
	return nil
}

// handleEvent applies one lifecycle event. Duplicate events are
// idempotent and unknown transitions are ignored.
func (w *Watcher) handleEvent(ctx context.Context, ev core.ContainerEvent) {
	w.mu.Lock()
	handle, tracked := w.containers[ev.ContainerID]
	t, hasTask := w.tasks[ev.ContainerID]
	w.mu.Unlock()

	switch ev.Kind {
	case core.EventStart:
		if hasTask {
			return
		}
		if !tracked {
			handle = core.ContainerHandle{ID: ev.ContainerID, Name: ev.Name}
		}
		handle.State = core.StateStreaming
		w.startTask(ctx, handle)

	case core.EventPause:
		if !hasTask || handle.State != core.StateStreaming {
			return
		}
		select {
		case t.ctrl <- true:
		default:
		}
		handle.State = core.StatePaused
		w.setHandle(handle)

	case core.EventUnpause:
		if !hasTask || handle.State != core.StatePaused {
			return
		}
		select {
		case t.ctrl <- false:
		default:
		}
		handle.State = core.StateStreaming
		w.setHandle(handle)

	case core.EventStop, core.EventDie:
		if !hasTask {
			if tracked && handle.State != core.StateStopped {
				handle.State = core.StateStopped
				w.setHandle(handle)
			}
			return
		}
		w.stopTask(ev.ContainerID, core.StateStopped)

	case core.EventDestroy:
		if hasTask {
			w.stopTask(ev.ContainerID, core.StateRemoved)
		}
		w.mu.Lock()
		delete(w.containers, ev.ContainerID)
		delete(w.chunks, ev.ContainerID)
		w.mu.Unlock()
		if err := w.indexer.Remove(ctx, ev.ContainerID); err != nil {
			w.logger.Error("retention purge failed", "container", ev.ContainerID, "err", err)
		}
	}
}

func (w *Watcher) setHandle(h core.ContainerHandle) {
	w.mu.Lock()
	w.containers[h.ID] = h
	w.mu.Unlock()
}

func (w *Watcher) startTask(ctx context.Context, handle core.ContainerHandle) {
	taskCtx, cancel := context.WithCancel(ctx)
	lines, err := w.rt.FollowLogs(taskCtx, handle.ID)
	if err != nil {
		cancel()
		ierr := &core.IngestionError{ContainerID: handle.ID, Op: "follow", Err: err}
		w.logger.Error("follow logs failed", "err", ierr)
		handle.State = core.StateDiscovered
		w.setHandle(handle)
		return
	}

	t := &task{
		cancel: cancel,
		ctrl:   make(chan bool, 4),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	handle.State = core.StateStreaming

	w.mu.Lock()
	w.containers[handle.ID] = handle
	w.tasks[handle.ID] = t
	w.mu.Unlock()

	w.logger.Info("ingestion started", "container", handle.ID, "name", handle.Name)
	go w.runTask(taskCtx, handle.ID, lines, t)
}

// stopTask asks the task to drain and flush, waits for it to exit, and
// records the container's final state.
func (w *Watcher) stopTask(containerID string, final core.ContainerState) {
	w.mu.Lock()
	t, ok := w.tasks[containerID]
	if ok {
		delete(w.tasks, containerID)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	close(t.stop)
	<-t.done
	t.cancel()

	w.mu.Lock()
	if h, tracked := w.containers[containerID]; tracked {
		h.State = final
		w.containers[containerID] = h
	}
	w.mu.Unlock()
	w.logger.Info("ingestion stopped", "container", containerID, "state", final)
}

func (w *Watcher) stopAll() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.tasks))
	for id := range w.tasks {
		ids = append(ids, id)
	}
	w.mu.Unlock()
	for _, id := range ids {
		w.stopTask(id, core.StateStopped)
	}
}

// runTask is one container's ingestion loop: it sequences lines, feeds
// the chunker, and hands emitted chunks to the indexing pipeline. Pause
// suspends consumption without dropping the stream.
func (w *Watcher) runTask(ctx context.Context, containerID string, lines <-chan core.LogLine, t *task) {
	defer close(t.done)

	chunker := NewChunker(containerID, w.opts.Chunking)
	pipe := make(chan core.Chunk, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runPipeline(ctx, containerID, pipe)
	}()

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	var seq uint64
	paused := false
	next := func(line core.LogLine) {
		line.Seq = seq
		seq++
		for _, chunk := range chunker.Add(line) {
			pipe <- chunk
		}
	}

	defer func() {
		if chunk, ok := chunker.Flush(); ok {
			pipe <- chunk
		}
		close(pipe)
		wg.Wait()
	}()

	for {
		lineCh := lines
		if paused {
			lineCh = nil
		}
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			// Drain whatever the runtime already delivered.
			for {
				select {
				case line, ok := <-lines:
					if !ok {
						return
					}
					next(line)
				default:
					return
				}
			}
		case paused = <-t.ctrl:
		case line, ok := <-lineCh:
			if !ok {
				return
			}
			next(line)
		case now := <-ticker.C:
			if chunk, ok := chunker.FlushStale(now); ok {
				pipe <- chunk
			}
		}
	}
}

// runPipeline embeds and indexes chunks strictly in emission order,
// concurrent with further line consumption. A chunk whose embedding
// exhausts the retry budget is dropped with a report.
func (w *Watcher) runPipeline(ctx context.Context, containerID string, pipe <-chan core.Chunk) {
	for chunk := range pipe {
		var vectors [][]float32
		err := llm.Retry(ctx, w.opts.EmbedRetries, w.opts.RetryBase, func() error {
			var err error
			vectors, err = w.embedder.Embed(ctx, []string{chunk.Text})
			return err
		})
		if err != nil || len(vectors) != 1 {
			w.logger.Error("embed failed, chunk dropped",
				"container", containerID, "chunk", chunk.ID, "err", err)
			continue
		}
		w.indexer.Add(ctx, chunk, vectors[0])

		w.mu.Lock()
		w.chunks[containerID]++
		w.mu.Unlock()
	}
}

// reconnectBackoff returns exponential backoff delay capped at 30s. The
// shift count is clamped so long outages cannot overflow the duration.
func reconnectBackoff(base time.Duration, failures int) time.Duration {
	if failures > 6 {
		failures = 6
	}
	d := base << uint(failures-1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
