package core

import "time"

// Chunk is a bounded window of consecutive log lines from one container.
// Text includes the overlap prefix carried from the previous chunk; the
// first Overlap bytes of Text belong to that prefix. Chunks are immutable
// once emitted.
type Chunk struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"container_id"`
	Seq         uint64    `json:"seq"`
	Text        string    `json:"text"`
	Overlap     int       `json:"overlap"`
	FirstSeq    uint64    `json:"first_seq"`
	LastSeq     uint64    `json:"last_seq"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Severity    float64   `json:"severity"`
	MaxLevel    Level     `json:"max_level"`
	Lines       int       `json:"lines"`
}

// Body returns the chunk text without the overlap prefix.
func (c Chunk) Body() string {
	if c.Overlap >= len(c.Text) {
		return ""
	}
	return c.Text[c.Overlap:]
}

// Candidate is a chunk scored against a query. Similarity comes from the
// vector search; Relevance is filled in by the reranker.
type Candidate struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
	Relevance  float64 `json:"relevance"`
}
