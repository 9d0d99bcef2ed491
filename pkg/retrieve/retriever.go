// Package retrieve answers natural-language questions about a container's
// logs: embed the question, search the index, rerank, assemble a
// time-ordered context, and generate an answer with cited sources.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/index"
	"github.com/modoterra/logseer/pkg/llm"
)

// Searcher is the index surface the retriever needs. *index.Index
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, containerID string, limit int) ([]core.Candidate, error)
}

// Options tune the retrieval pipeline.
type Options struct {
	InitialK           int
	FinalK             int
	UseReranking       bool
	ContextBudgetChars int
	MaxRetries         int
	RetryBase          time.Duration
}

// Request is one question about one container.
type Request struct {
	ContainerID string `json:"container_id"`
	Question    string `json:"question"`
	// K caps the reranked result count. Zero means the configured
	// final_k; it must never exceed initial_k.
	K int `json:"k,omitempty"`
	// Collection selects the search collection; empty means approximate.
	Collection string `json:"collection,omitempty"`
}

// Source cites one chunk that grounded the answer.
type Source struct {
	ChunkID     string    `json:"chunk_id"`
	ContainerID string    `json:"container_id"`
	FirstTS     time.Time `json:"first_ts"`
	LastTS      time.Time `json:"last_ts"`
	Snippet     string    `json:"snippet"`
	Score       float64   `json:"score"`
}

// Response is the generated answer with its sources in relevance order.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Retriever runs the two-stage query pipeline. Stateless per request and
// safe for concurrent use.
type Retriever struct {
	searcher  Searcher
	embedder  llm.Embedder
	reranker  llm.Reranker
	generator llm.Generator
	opts      Options
	logger    *slog.Logger
}

// New creates a retriever. The reranker may be nil, in which case
// similarity order is used.
func New(searcher Searcher, embedder llm.Embedder, reranker llm.Reranker, generator llm.Generator, opts Options, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InitialK <= 0 {
		opts.InitialK = 20
	}
	if opts.FinalK <= 0 {
		opts.FinalK = 8
	}
	if opts.ContextBudgetChars <= 0 {
		opts.ContextBudgetChars = 12000
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	return &Retriever{
		searcher:  searcher,
		embedder:  embedder,
		reranker:  reranker,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

// Query answers one request. Zero stage-1 candidates is not an error: the
// response carries the no-data answer and empty sources. An embedding or
// generation failure after retries fails the request; a rerank failure
// degrades to similarity order.
func (r *Retriever) Query(ctx context.Context, req Request) (Response, error) {
	if err := r.validate(req); err != nil {
		return Response{}, err
	}

	vector, err := r.embedQuestion(ctx, req.Question)
	if err != nil {
		return Response{}, err
	}

	collection := req.Collection
	if collection == "" {
		collection = index.CollectionApprox
	}
	candidates, err := r.searcher.Search(ctx, collection, vector, req.ContainerID, r.opts.InitialK)
	if err != nil {
		return Response{}, err
	}
	if len(candidates) == 0 {
		return Response{Answer: NoDataAnswer, Sources: []Source{}}, nil
	}

	finalK := r.opts.FinalK
	if req.K > 0 && req.K < finalK {
		finalK = req.K
	}
	selected := r.rerank(ctx, req.Question, candidates, finalK)
	selected = fitBudget(selected, r.opts.ContextBudgetChars)

	// The prompt reads chronologically; sources keep relevance order.
	ordered := append([]core.Candidate(nil), selected...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Chunk.Start.Before(ordered[j].Chunk.Start)
	})
	chunks := make([]core.Chunk, len(ordered))
	for i, c := range ordered {
		chunks[i] = c.Chunk
	}

	prompt := buildPrompt(req.Question, chunks)
	var answer string
	err = llm.Retry(ctx, r.opts.MaxRetries, r.opts.RetryBase, func() error {
		var genErr error
		answer, genErr = r.generator.Generate(ctx, prompt)
		return genErr
	})
	if err != nil {
		return Response{}, err
	}

	sources := make([]Source, len(selected))
	for i, c := range selected {
		sources[i] = Source{
			ChunkID:     c.Chunk.ID,
			ContainerID: c.Chunk.ContainerID,
			FirstTS:     c.Chunk.Start,
			LastTS:      c.Chunk.End,
			Snippet:     snippet(c.Chunk),
			Score:       c.Relevance,
		}
	}
	return Response{Answer: answer, Sources: sources}, nil
}

func (r *Retriever) validate(req Request) error {
	if req.ContainerID == "" {
		return &core.ValidationError{Field: "container_id", Msg: "must not be empty"}
	}
	if req.Question == "" {
		return &core.ValidationError{Field: "question", Msg: "must not be empty"}
	}
	if req.K < 0 {
		return &core.ValidationError{Field: "k", Msg: "must not be negative"}
	}
	if req.K > r.opts.InitialK {
		return &core.ValidationError{Field: "k", Msg: "must not exceed initial_k"}
	}
	if req.Collection != "" && !index.ValidCollection(req.Collection) {
		return &core.ValidationError{Field: "collection", Msg: "unknown collection"}
	}
	return nil
}

func (r *Retriever) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	var vectors [][]float32
	err := llm.Retry(ctx, r.opts.MaxRetries, r.opts.RetryBase, func() error {
		var embErr error
		vectors, embErr = r.embedder.Embed(ctx, []string{question})
		return embErr
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &core.ProviderError{Op: "embed", Err: fmt.Errorf("got %d embeddings for one question", len(vectors))}
	}
	return vectors[0], nil
}

// rerank scores the candidates against the question and returns a
// duplicate-free subset of at most finalK, most relevant first. A rerank
// failure, or reranking being disabled, degrades to similarity order.
func (r *Retriever) rerank(ctx context.Context, question string, candidates []core.Candidate, finalK int) []core.Candidate {
	if finalK > len(candidates) {
		finalK = len(candidates)
	}

	if r.opts.UseReranking && r.reranker != nil {
		docs := make([]string, len(candidates))
		for i, c := range candidates {
			docs[i] = c.Chunk.Text
		}
		var ranked []llm.RankedDoc
		err := llm.Retry(ctx, r.opts.MaxRetries, r.opts.RetryBase, func() error {
			var rerankErr error
			ranked, rerankErr = r.reranker.Rerank(ctx, question, docs, finalK)
			return rerankErr
		})
		if err == nil {
			seen := make(map[int]bool, len(ranked))
			selected := make([]core.Candidate, 0, finalK)
			for _, rd := range ranked {
				if rd.Index < 0 || rd.Index >= len(candidates) || seen[rd.Index] {
					continue
				}
				seen[rd.Index] = true
				c := candidates[rd.Index]
				c.Relevance = rd.Score
				selected = append(selected, c)
				if len(selected) == finalK {
					break
				}
			}
			if len(selected) > 0 {
				return selected
			}
		} else {
			r.logger.Warn("rerank failed, using similarity order", "err", err)
		}
	}

	selected := make([]core.Candidate, finalK)
	for i := 0; i < finalK; i++ {
		c := candidates[i]
		c.Relevance = c.Similarity
		selected[i] = c
	}
	return selected
}

func snippet(c core.Chunk) string {
	body := c.Body()
	if len(body) > 160 {
		return body[:160]
	}
	return body
}
