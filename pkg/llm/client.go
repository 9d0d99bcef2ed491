// Package llm holds the clients for the external model providers: Voyage
// for embeddings and reranking, Gemini for generation.
package llm

import "context"

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RankedDoc is one reranker result: the index of the input document and
// its relevance score.
type RankedDoc struct {
	Index int
	Score float64
}

// Reranker scores documents against a query and returns the top results
// in descending relevance order.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topK int) ([]RankedDoc, error)
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
