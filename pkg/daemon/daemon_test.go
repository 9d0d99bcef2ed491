package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/index"
	"github.com/modoterra/logseer/pkg/index/memory"
	"github.com/modoterra/logseer/pkg/retrieve"
	"github.com/modoterra/logseer/pkg/transport/uds"
)

type fakeQuerier struct {
	resp retrieve.Response
	err  error
	got  retrieve.Request
}

func (f *fakeQuerier) Query(_ context.Context, req retrieve.Request) (retrieve.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeLister struct {
	handles []core.ContainerHandle
}

func (f *fakeLister) Containers() []core.ContainerHandle {
	return f.handles
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDaemon(q Querier, l ContainerLister) *Daemon {
	ix := index.New(memory.NewStore(4), index.Options{ErrorThreshold: 1.0, RetainRemoved: true}, testLogger())
	return New("/tmp/unused.sock", q, l, ix, testLogger())
}

func queryMessage(t *testing.T, req uds.QueryRequest) uds.Message {
	t.Helper()
	msg, err := uds.NewRequest(uds.MethodQuery, req)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return msg
}

func TestHandlePing(t *testing.T) {
	d := newTestDaemon(&fakeQuerier{}, &fakeLister{})

	out, err := d.handlePing(context.Background(), uds.Message{})
	if err != nil {
		t.Fatalf("handlePing: %v", err)
	}
	pong, ok := out.(uds.PingResponse)
	if !ok {
		t.Fatalf("got %T, want PingResponse", out)
	}
	if !pong.Pong {
		t.Error("expected pong=true")
	}
}

func TestHandleQueryMapsRequestAndSources(t *testing.T) {
	q := &fakeQuerier{resp: retrieve.Response{
		Answer: "the db restarted",
		Sources: []retrieve.Source{
			{ChunkID: "c1", ContainerID: "web", Snippet: "db gone", Score: 0.91},
		},
	}}
	d := newTestDaemon(q, &fakeLister{})

	msg := queryMessage(t, uds.QueryRequest{ContainerID: "web", Question: "why down?", K: 5, Collection: "errors"})
	out, err := d.handleQuery(context.Background(), msg)
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}

	if q.got.ContainerID != "web" || q.got.Question != "why down?" || q.got.K != 5 || q.got.Collection != "errors" {
		t.Errorf("request not forwarded: %+v", q.got)
	}

	resp, ok := out.(uds.QueryResponse)
	if !ok {
		t.Fatalf("got %T, want QueryResponse", out)
	}
	if resp.Answer != "the db restarted" {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ChunkID != "c1" || resp.Sources[0].Score != 0.91 {
		t.Errorf("sources: got %+v", resp.Sources)
	}
}

func TestHandleQueryPropagatesError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	d := newTestDaemon(&fakeQuerier{err: wantErr}, &fakeLister{})

	msg := queryMessage(t, uds.QueryRequest{ContainerID: "web", Question: "?"})
	if _, err := d.handleQuery(context.Background(), msg); !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestHandleQueryRejectsMissingData(t *testing.T) {
	d := newTestDaemon(&fakeQuerier{}, &fakeLister{})

	if _, err := d.handleQuery(context.Background(), uds.Message{Type: uds.MsgTypeReq, Method: uds.MethodQuery}); err == nil {
		t.Error("expected error for request without data")
	}
}

func TestHandleListContainers(t *testing.T) {
	lister := &fakeLister{handles: []core.ContainerHandle{
		{ID: "a", Name: "api", State: core.StateStreaming},
		{ID: "b", Name: "web", State: core.StateStopped},
	}}
	d := newTestDaemon(&fakeQuerier{}, lister)

	out, err := d.handleListContainers(context.Background(), uds.Message{})
	if err != nil {
		t.Fatalf("handleListContainers: %v", err)
	}
	handles, ok := out.([]core.ContainerHandle)
	if !ok {
		t.Fatalf("got %T, want []core.ContainerHandle", out)
	}
	if len(handles) != 2 {
		t.Errorf("got %d handles, want 2", len(handles))
	}
}

func TestHandleStatsCountsStreaming(t *testing.T) {
	lister := &fakeLister{handles: []core.ContainerHandle{
		{ID: "a", State: core.StateStreaming},
		{ID: "b", State: core.StateStreaming},
		{ID: "c", State: core.StatePaused},
	}}
	d := newTestDaemon(&fakeQuerier{}, lister)

	out, err := d.handleStats(context.Background(), uds.Message{})
	if err != nil {
		t.Fatalf("handleStats: %v", err)
	}
	stats, ok := out.(uds.StatsResponse)
	if !ok {
		t.Fatalf("got %T, want StatsResponse", out)
	}
	if stats.Containers != 3 {
		t.Errorf("containers: got %d, want 3", stats.Containers)
	}
	if stats.Streaming != 2 {
		t.Errorf("streaming: got %d, want 2", stats.Streaming)
	}
}
