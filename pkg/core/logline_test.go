package core

import "testing"

func TestDetectLevel(t *testing.T) {
	tests := []struct {
		text string
		want Level
	}{
		{"ERROR: connection refused", LevelError},
		{"caught exception in handler", LevelError},
		{"request failed with status 500", LevelError},
		{"CRITICAL disk full", LevelError},
		{"WARN slow query took 2.3s", LevelWarn},
		{"warning: config option deprecated", LevelWarn},
		{"DEBUG cache hit for key abc", LevelDebug},
		{"trace id=42 span=7", LevelDebug},
		{"INFO server started on :8080", LevelInfo},
		{"notice: rotating logs", LevelInfo},
		{"GET /healthz 200 3ms", LevelUnknown},
		{"", LevelUnknown},
		// Error keywords outrank warn keywords on the same line.
		{"warning: previous attempt failed", LevelError},
		// Substrings do not match; word boundaries are required.
		{"terrors of the deep", LevelUnknown},
		{"loggingworks fine", LevelUnknown},
	}
	for _, tt := range tests {
		if got := DetectLevel(tt.text); got != tt.want {
			t.Errorf("DetectLevel(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestLevelWeightOrdering(t *testing.T) {
	order := []Level{LevelError, LevelWarn, LevelInfo, LevelDebug, LevelUnknown}
	for i := 1; i < len(order); i++ {
		if order[i-1].Weight() <= order[i].Weight() {
			t.Errorf("weight of %q (%v) should exceed %q (%v)",
				order[i-1], order[i-1].Weight(), order[i], order[i].Weight())
		}
	}
}

func TestChunkBody(t *testing.T) {
	c := Chunk{Text: "tail of previous\nfresh line", Overlap: 17}
	if got := c.Body(); got != "fresh line" {
		t.Errorf("Body() = %q, want %q", got, "fresh line")
	}

	whole := Chunk{Text: "no overlap here"}
	if got := whole.Body(); got != "no overlap here" {
		t.Errorf("Body() = %q, want full text", got)
	}
}
