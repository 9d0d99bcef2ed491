package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/index"
)

func seed(t *testing.T, s *Store, containerID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		chunk := core.Chunk{
			ID:          fmt.Sprintf("%s-chunk-%d", containerID, i),
			ContainerID: containerID,
			Seq:         uint64(i),
			Text:        fmt.Sprintf("log chunk %d", i),
		}
		vec := []float32{float32(i), 1, 0}
		if err := s.Upsert(context.Background(), index.CollectionExact, chunk, vec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
}

func TestSearchScopedToContainer(t *testing.T) {
	s := NewStore(3)
	seed(t, s, "web", 5)
	seed(t, s, "db", 5)

	got, err := s.Search(context.Background(), index.CollectionExact, []float32{1, 1, 0}, "web", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("candidates: got %d, want 5", len(got))
	}
	for _, c := range got {
		if c.Chunk.ContainerID != "web" {
			t.Errorf("candidate from container %q leaked into web's results", c.Chunk.ContainerID)
		}
	}
}

func TestSearchRankedAndLimited(t *testing.T) {
	s := NewStore(3)
	seed(t, s, "web", 5)

	got, err := s.Search(context.Background(), index.CollectionExact, []float32{1, 0, 0}, "web", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("candidates: got %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Similarity < got[i].Similarity {
			t.Errorf("results not in descending similarity order: %v then %v",
				got[i-1].Similarity, got[i].Similarity)
		}
	}
}

func TestSearchDeterministic(t *testing.T) {
	s := NewStore(3)
	seed(t, s, "web", 8)

	query := []float32{0.5, 0.5, 0}
	first, err := s.Search(context.Background(), index.CollectionExact, query, "web", 4)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Search(context.Background(), index.CollectionExact, query, "web", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Chunk.ID != second[i].Chunk.ID {
			t.Errorf("position %d: %q vs %q", i, first[i].Chunk.ID, second[i].Chunk.ID)
		}
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	s := NewStore(2)
	chunk := core.Chunk{ID: "c1", ContainerID: "web", Text: "first"}
	if err := s.Upsert(context.Background(), index.CollectionExact, chunk, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	chunk.Text = "second"
	if err := s.Upsert(context.Background(), index.CollectionExact, chunk, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}

	if n := s.Len(index.CollectionExact); n != 1 {
		t.Fatalf("entries: got %d, want 1", n)
	}
	got, err := s.Search(context.Background(), index.CollectionExact, []float32{1, 0}, "web", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Chunk.Text != "second" {
		t.Errorf("text: got %q, want %q", got[0].Chunk.Text, "second")
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := NewStore(3)
	chunk := core.Chunk{ID: "c1", ContainerID: "web"}
	if err := s.Upsert(context.Background(), index.CollectionExact, chunk, []float32{1, 0}); err == nil {
		t.Error("expected upsert error for wrong dimension")
	}
	if _, err := s.Search(context.Background(), index.CollectionExact, []float32{1}, "web", 5); err == nil {
		t.Error("expected search error for wrong dimension")
	}
}

func TestPurgeContainer(t *testing.T) {
	s := NewStore(3)
	seed(t, s, "web", 4)
	seed(t, s, "db", 4)

	if err := s.PurgeContainer(context.Background(), "web"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	got, err := s.Search(context.Background(), index.CollectionExact, []float32{1, 1, 0}, "web", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("purged container still has %d chunks", len(got))
	}

	kept, err := s.Search(context.Background(), index.CollectionExact, []float32{1, 1, 0}, "db", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 4 {
		t.Errorf("db chunks: got %d, want 4", len(kept))
	}
}
