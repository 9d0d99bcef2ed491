package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/logseer/pkg/core"
)

type fakeRuntime struct {
	mu           sync.Mutex
	handles      []core.ContainerHandle
	logs         map[string]chan core.LogLine
	followed     map[string]int
	listFailures int
	eventsCalls  int
	events       chan core.ContainerEvent
	errs         chan error
}

func newFakeRuntime(handles ...core.ContainerHandle) *fakeRuntime {
	return &fakeRuntime{
		handles:  handles,
		logs:     make(map[string]chan core.LogLine),
		followed: make(map[string]int),
	}
}

func (r *fakeRuntime) List(_ context.Context) ([]core.ContainerHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listFailures > 0 {
		r.listFailures--
		return nil, errors.New("docker daemon unavailable")
	}
	return append([]core.ContainerHandle(nil), r.handles...), nil
}

func (r *fakeRuntime) Events(_ context.Context) (<-chan core.ContainerEvent, <-chan error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventsCalls++
	r.events = make(chan core.ContainerEvent)
	r.errs = make(chan error, 1)
	return r.events, r.errs
}

func (r *fakeRuntime) eventsCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventsCalls
}

func (r *fakeRuntime) FollowLogs(_ context.Context, containerID string) (<-chan core.LogLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followed[containerID]++
	ch, ok := r.logs[containerID]
	if !ok {
		ch = make(chan core.LogLine, 64)
		r.logs[containerID] = ch
	}
	return ch, nil
}

func (r *fakeRuntime) followCount(containerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.followed[containerID]
}

func (r *fakeRuntime) send(containerID, text string) {
	r.mu.Lock()
	ch := r.logs[containerID]
	r.mu.Unlock()
	ch <- core.LogLine{ContainerID: containerID, Time: time.Now(), Text: text}
}

type fakeEmbedder struct {
	mu       sync.Mutex
	failures int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failures > 0 {
		e.failures--
		return nil, &core.ProviderError{Op: "embed", Transient: true, Err: errors.New("unavailable")}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeIndexer struct {
	mu     sync.Mutex
	chunks []core.Chunk
	purged []string
}

func (ix *fakeIndexer) Add(_ context.Context, chunk core.Chunk, _ []float32) {
	ix.mu.Lock()
	ix.chunks = append(ix.chunks, chunk)
	ix.mu.Unlock()
}

func (ix *fakeIndexer) Remove(_ context.Context, containerID string) error {
	ix.mu.Lock()
	ix.purged = append(ix.purged, containerID)
	ix.mu.Unlock()
	return nil
}

func (ix *fakeIndexer) count() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.chunks)
}

func testWatcher(rt *fakeRuntime) (*Watcher, *fakeIndexer) {
	ix := &fakeIndexer{}
	opts := WatcherOptions{
		Chunking: ChunkerOptions{
			MaxChunkSize: 10000,
			MinChunkSize: 1,
			MaxLines:     1,
			Timeout:      time.Hour,
		},
		EmbedRetries:  2,
		RetryBase:     time.Millisecond,
		FlushInterval: 10 * time.Millisecond,
	}
	return NewWatcher(rt, &fakeEmbedder{}, ix, opts, nil), ix
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestResyncStartsRunningContainers(t *testing.T) {
	rt := newFakeRuntime(
		core.ContainerHandle{ID: "web", Name: "web", State: core.StateStreaming},
		core.ContainerHandle{ID: "db", Name: "db", State: core.StateStopped},
	)
	w, ix := testWatcher(rt)
	defer w.stopAll()

	if err := w.resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	if got := rt.followCount("web"); got != 1 {
		t.Errorf("web followed %d times, want 1", got)
	}
	if got := rt.followCount("db"); got != 0 {
		t.Errorf("db followed %d times, want 0", got)
	}

	rt.send("web", "hello from web")
	waitFor(t, "chunk never indexed", func() bool { return ix.count() == 1 })
}

func TestResyncDoesNotDoubleStart(t *testing.T) {
	rt := newFakeRuntime(core.ContainerHandle{ID: "web", Name: "web", State: core.StateStreaming})
	w, _ := testWatcher(rt)
	defer w.stopAll()

	for i := 0; i < 3; i++ {
		if err := w.resync(context.Background()); err != nil {
			t.Fatalf("resync %d: %v", i, err)
		}
	}
	if got := rt.followCount("web"); got != 1 {
		t.Errorf("web followed %d times, want 1", got)
	}
}

func TestResyncStopsVanishedContainers(t *testing.T) {
	rt := newFakeRuntime(core.ContainerHandle{ID: "web", Name: "web", State: core.StateStreaming})
	w, _ := testWatcher(rt)
	defer w.stopAll()

	if err := w.resync(context.Background()); err != nil {
		t.Fatal(err)
	}

	rt.mu.Lock()
	rt.handles = nil
	rt.mu.Unlock()

	if err := w.resync(context.Background()); err != nil {
		t.Fatal(err)
	}

	w.mu.Lock()
	_, hasTask := w.tasks["web"]
	w.mu.Unlock()
	if hasTask {
		t.Error("vanished container still has a task")
	}
}

func TestDuplicateStartIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	w, _ := testWatcher(rt)
	defer w.stopAll()

	ev := core.ContainerEvent{ContainerID: "web", Name: "web", Kind: core.EventStart}
	w.handleEvent(context.Background(), ev)
	w.handleEvent(context.Background(), ev)

	if got := rt.followCount("web"); got != 1 {
		t.Errorf("web followed %d times, want 1", got)
	}
}

func TestPauseSuspendsConsumption(t *testing.T) {
	rt := newFakeRuntime()
	w, ix := testWatcher(rt)
	defer w.stopAll()

	ctx := context.Background()
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Name: "web", Kind: core.EventStart})

	rt.send("web", "before pause")
	waitFor(t, "first chunk never indexed", func() bool { return ix.count() == 1 })

	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Kind: core.EventPause})
	time.Sleep(50 * time.Millisecond) // let the task observe the pause

	rt.send("web", "while paused")
	time.Sleep(100 * time.Millisecond)
	if got := ix.count(); got != 1 {
		t.Fatalf("chunks during pause: got %d, want 1", got)
	}

	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Kind: core.EventUnpause})
	waitFor(t, "paused line never indexed after resume", func() bool { return ix.count() == 2 })
}

func TestDuplicatePauseIgnored(t *testing.T) {
	rt := newFakeRuntime()
	w, _ := testWatcher(rt)
	defer w.stopAll()

	ctx := context.Background()
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Name: "web", Kind: core.EventStart})
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Kind: core.EventPause})
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Kind: core.EventPause})

	handles := w.Containers()
	if len(handles) != 1 || handles[0].State != core.StatePaused {
		t.Fatalf("handles: %+v, want one paused container", handles)
	}
}

func TestStopFlushesPartialChunk(t *testing.T) {
	rt := newFakeRuntime()
	ix := &fakeIndexer{}
	opts := WatcherOptions{
		Chunking: ChunkerOptions{
			MaxChunkSize: 10000,
			MinChunkSize: 500,
			MaxLines:     100,
			Timeout:      time.Hour,
		},
		EmbedRetries:  2,
		RetryBase:     time.Millisecond,
		FlushInterval: time.Hour,
	}
	w := NewWatcher(rt, &fakeEmbedder{}, ix, opts, nil)
	defer w.stopAll()

	ctx := context.Background()
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Name: "web", Kind: core.EventStart})

	rt.send("web", "one")
	rt.send("web", "two")

	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Kind: core.EventDie})

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(ix.chunks) != 1 {
		t.Fatalf("chunks: got %d, want 1", len(ix.chunks))
	}
	if ix.chunks[0].Lines != 2 {
		t.Errorf("flushed chunk lines: got %d, want 2", ix.chunks[0].Lines)
	}

	handles := w.Containers()
	if len(handles) != 1 || handles[0].State != core.StateStopped {
		t.Errorf("handles: %+v, want one stopped container", handles)
	}
}

func TestDestroyAppliesRetention(t *testing.T) {
	rt := newFakeRuntime()
	w, ix := testWatcher(rt)
	defer w.stopAll()

	ctx := context.Background()
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Name: "web", Kind: core.EventStart})
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Kind: core.EventDestroy})

	ix.mu.Lock()
	purged := append([]string(nil), ix.purged...)
	ix.mu.Unlock()
	if len(purged) != 1 || purged[0] != "web" {
		t.Errorf("purged: %v, want [web]", purged)
	}
	if handles := w.Containers(); len(handles) != 0 {
		t.Errorf("handles after destroy: %+v, want none", handles)
	}
}

func TestEmbedExhaustionDropsChunk(t *testing.T) {
	rt := newFakeRuntime()
	ix := &fakeIndexer{}
	opts := WatcherOptions{
		Chunking: ChunkerOptions{
			MaxChunkSize: 10000,
			MinChunkSize: 1,
			MaxLines:     1,
			Timeout:      time.Hour,
		},
		EmbedRetries:  2,
		RetryBase:     time.Millisecond,
		FlushInterval: time.Hour,
	}
	embedder := &fakeEmbedder{failures: 10}
	w := NewWatcher(rt, embedder, ix, opts, nil)
	defer w.stopAll()

	ctx := context.Background()
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "web", Name: "web", Kind: core.EventStart})

	rt.send("web", "doomed chunk")
	time.Sleep(100 * time.Millisecond)
	if got := ix.count(); got != 0 {
		t.Errorf("chunks after embed exhaustion: got %d, want 0", got)
	}

	// Recovered embedder: the next chunk goes through.
	embedder.mu.Lock()
	embedder.failures = 0
	embedder.mu.Unlock()
	rt.send("web", "healthy chunk")
	waitFor(t, "chunk after recovery never indexed", func() bool { return ix.count() == 1 })
}

func TestRunRetriesInitialResync(t *testing.T) {
	rt := newFakeRuntime(core.ContainerHandle{ID: "web", Name: "web", State: core.StateStreaming})
	rt.listFailures = 2
	w, _ := testWatcher(rt)
	defer w.stopAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, "ingestion never started after transient list failures", func() bool {
		return rt.followCount("web") == 1
	})
}

func TestRunReconnectsOnClosedEventStream(t *testing.T) {
	rt := newFakeRuntime()
	w, _ := testWatcher(rt)
	defer w.stopAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, "event stream never opened", func() bool { return rt.eventsCount() >= 1 })

	rt.mu.Lock()
	close(rt.events)
	rt.mu.Unlock()

	waitFor(t, "event stream never reopened", func() bool { return rt.eventsCount() >= 2 })
}

func TestDieWithoutTaskMarksStopped(t *testing.T) {
	rt := newFakeRuntime(core.ContainerHandle{ID: "db", Name: "db", State: core.StateDiscovered})
	w, _ := testWatcher(rt)
	defer w.stopAll()

	if err := w.resync(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.handleEvent(context.Background(), core.ContainerEvent{ContainerID: "db", Kind: core.EventDie})

	handles := w.Containers()
	if len(handles) != 1 || handles[0].State != core.StateStopped {
		t.Fatalf("handles: %+v, want one stopped container", handles)
	}
}

func TestReconnectBackoffLargeFailureCounts(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
		{35, 30 * time.Second},
		{64, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		got := reconnectBackoff(time.Second, tt.failures)
		if got != tt.want {
			t.Errorf("reconnectBackoff(1s, %d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestUnknownTransitionIgnored(t *testing.T) {
	rt := newFakeRuntime()
	w, _ := testWatcher(rt)
	defer w.stopAll()

	ctx := context.Background()
	// Stop and unpause for an untracked container are no-ops.
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "ghost", Kind: core.EventStop})
	w.handleEvent(ctx, core.ContainerEvent{ContainerID: "ghost", Kind: core.EventUnpause})

	if handles := w.Containers(); len(handles) != 0 {
		t.Errorf("handles: %+v, want none", handles)
	}
}
