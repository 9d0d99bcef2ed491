package uds

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startServer(t *testing.T, srv *Server) (context.CancelFunc, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx)

	// Wait for socket to appear
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(srv.socketPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cancel, srv.socketPath
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPingRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "test.sock")

	srv := NewServer(sock, testLogger())
	srv.Handle(MethodPing, func(_ context.Context, _ Message) (any, error) {
		return PingResponse{Pong: true, Version: "test"}, nil
	})
	cancel, _ := startServer(t, srv)
	defer cancel()
	defer srv.Shutdown()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	resp, err := client.Request(reqCtx, MethodPing, nil)
	if err != nil {
		t.Fatalf("ping request: %v", err)
	}

	var pong PingResponse
	if err := json.Unmarshal(resp.Data, &pong); err != nil {
		t.Fatalf("unmarshal pong: %v", err)
	}
	if !pong.Pong {
		t.Error("expected pong=true")
	}
}

func TestQueryRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "test.sock")

	srv := NewServer(sock, testLogger())
	srv.Handle(MethodQuery, func(_ context.Context, msg Message) (any, error) {
		var req QueryRequest
		if err := msg.UnmarshalData(&req); err != nil {
			return nil, err
		}
		return QueryResponse{
			Answer: "answered: " + req.Question,
			Sources: []QuerySource{
				{ChunkID: "c1", ContainerID: req.ContainerID, Score: 0.9},
			},
		}, nil
	})
	cancel, _ := startServer(t, srv)
	defer cancel()
	defer srv.Shutdown()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	resp, err := client.Request(reqCtx, MethodQuery, QueryRequest{
		ContainerID: "web",
		Question:    "what failed?",
	})
	if err != nil {
		t.Fatalf("query request: %v", err)
	}

	var qr QueryResponse
	if err := resp.UnmarshalData(&qr); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if qr.Answer != "answered: what failed?" {
		t.Errorf("answer: got %q", qr.Answer)
	}
	if len(qr.Sources) != 1 || qr.Sources[0].ContainerID != "web" {
		t.Errorf("sources: got %+v", qr.Sources)
	}
}

func TestUnknownMethod(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "test.sock")

	srv := NewServer(sock, testLogger())
	cancel, _ := startServer(t, srv)
	defer cancel()
	defer srv.Shutdown()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	_, err = client.Request(reqCtx, "NoSuchMethod", nil)
	if err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestBroadcastEvent(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "test.sock")

	srv := NewServer(sock, testLogger())
	srv.Handle(MethodPing, func(_ context.Context, _ Message) (any, error) {
		return PingResponse{Pong: true}, nil
	})
	cancel, _ := startServer(t, srv)
	defer cancel()
	defer srv.Shutdown()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	evtCh := make(chan Message, 1)
	client.OnEvent(func(msg Message) {
		evtCh <- msg
	})

	// Ensure connection is established by doing a ping first
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	if _, err := client.Request(pingCtx, MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	evt, _ := NewEvent(EventContainersDelta, map[string]string{"test": "data"})
	srv.Broadcast(evt)

	select {
	case msg := <-evtCh:
		if msg.Method != EventContainersDelta {
			t.Errorf("expected method %s, got %s", EventContainersDelta, msg.Method)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for broadcast event")
	}
}
