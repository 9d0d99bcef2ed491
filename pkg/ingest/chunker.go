// Package ingest turns container log streams into indexed chunks: the
// Watcher tracks container lifecycles and the Chunker splits each stream
// into bounded, overlapping windows.
package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modoterra/logseer/pkg/core"
)

// ChunkerOptions bound the chunks a Chunker emits.
type ChunkerOptions struct {
	MaxChunkSize int
	MinChunkSize int
	MaxLines     int
	Timeout      time.Duration
	OverlapChars int
}

// Chunker accumulates one container's log lines and emits chunks when a
// bound is hit: size ceiling first, then line ceiling, then timeout. Not
// safe for concurrent use; each ingestion task owns one.
type Chunker struct {
	opts        ChunkerOptions
	containerID string

	seq      uint64
	lines    []core.LogLine
	bodySize int
	carry    string
	since    time.Time
}

// NewChunker creates a chunker for one container's stream.
func NewChunker(containerID string, opts ChunkerOptions) *Chunker {
	return &Chunker{opts: opts, containerID: containerID}
}

// Add buffers a line and returns any chunks it caused to be emitted. A
// line that would push the buffer past the size ceiling closes the
// current chunk before being buffered; a line at the line ceiling or a
// single oversized line closes the chunk after.
func (c *Chunker) Add(line core.LogLine) []core.Chunk {
	if line.Level == "" {
		line.Level = core.DetectLevel(line.Text)
	}

	var out []core.Chunk
	if len(c.lines) > 0 && len(c.carry)+c.bodySize+1+len(line.Text) > c.opts.MaxChunkSize {
		out = append(out, c.emit())
	}

	if len(c.lines) == 0 {
		c.since = line.Time
	}
	c.lines = append(c.lines, line)
	if c.bodySize > 0 {
		c.bodySize++ // joining newline
	}
	c.bodySize += len(line.Text)

	if len(c.carry)+c.bodySize >= c.opts.MaxChunkSize || len(c.lines) >= c.opts.MaxLines {
		out = append(out, c.emit())
	}
	return out
}

// FlushStale emits the buffered chunk when it has been open past the
// timeout and has reached the minimum size.
func (c *Chunker) FlushStale(now time.Time) (core.Chunk, bool) {
	if len(c.lines) == 0 {
		return core.Chunk{}, false
	}
	if now.Sub(c.since) < c.opts.Timeout || c.bodySize < c.opts.MinChunkSize {
		return core.Chunk{}, false
	}
	return c.emit(), true
}

// Flush force-emits whatever is buffered, even below the minimum size.
// Used when a container stops.
func (c *Chunker) Flush() (core.Chunk, bool) {
	if len(c.lines) == 0 {
		return core.Chunk{}, false
	}
	return c.emit(), true
}

// Pending returns the number of buffered lines.
func (c *Chunker) Pending() int {
	return len(c.lines)
}

func (c *Chunker) emit() core.Chunk {
	texts := make([]string, len(c.lines))
	maxLevel := core.LevelUnknown
	severity := 0.0
	for i, l := range c.lines {
		texts[i] = l.Text
		if w := l.Level.Weight(); w > severity {
			severity = w
			maxLevel = l.Level
		}
	}
	body := strings.Join(texts, "\n")

	first, last := c.lines[0], c.lines[len(c.lines)-1]
	chunk := core.Chunk{
		ID:          uuid.NewString(),
		ContainerID: c.containerID,
		Seq:         c.seq,
		Text:        c.carry + body,
		Overlap:     len(c.carry),
		FirstSeq:    first.Seq,
		LastSeq:     last.Seq,
		Start:       first.Time,
		End:         last.Time,
		Severity:    severity,
		MaxLevel:    maxLevel,
		Lines:       len(c.lines),
	}
	c.seq++

	c.carry = ""
	if c.opts.OverlapChars > 0 {
		tail := body
		if len(tail) > c.opts.OverlapChars {
			tail = tail[len(tail)-c.opts.OverlapChars:]
		}
		if tail != "" {
			c.carry = tail + "\n"
		}
	}
	c.lines = nil
	c.bodySize = 0
	return chunk
}
