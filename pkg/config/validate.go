package config

import "fmt"

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket path is required"))
	}

	ch := c.Chunking
	if ch.MinChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking: min_chunk_size must be positive, got %d", ch.MinChunkSize))
	}
	if ch.MaxChunkSize <= ch.MinChunkSize {
		errs = append(errs, fmt.Errorf("chunking: max_chunk_size (%d) must exceed min_chunk_size (%d)", ch.MaxChunkSize, ch.MinChunkSize))
	}
	if ch.MaxLines <= 0 {
		errs = append(errs, fmt.Errorf("chunking: max_lines must be positive, got %d", ch.MaxLines))
	}
	if ch.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("chunking: timeout_seconds must be positive, got %d", ch.TimeoutSeconds))
	}
	if ch.OverlapChars < 0 {
		errs = append(errs, fmt.Errorf("chunking: overlap_chars must not be negative, got %d", ch.OverlapChars))
	}
	if ch.OverlapChars >= ch.MaxChunkSize {
		errs = append(errs, fmt.Errorf("chunking: overlap_chars (%d) must be smaller than max_chunk_size (%d)", ch.OverlapChars, ch.MaxChunkSize))
	}

	r := c.Retrieval
	if r.InitialK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval: initial_k must be positive, got %d", r.InitialK))
	}
	if r.FinalK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval: final_k must be positive, got %d", r.FinalK))
	}
	if r.FinalK > r.InitialK {
		errs = append(errs, fmt.Errorf("retrieval: final_k (%d) must not exceed initial_k (%d)", r.FinalK, r.InitialK))
	}
	if r.ContextBudgetChars <= 0 {
		errs = append(errs, fmt.Errorf("retrieval: context_budget_chars must be positive, got %d", r.ContextBudgetChars))
	}

	switch c.Index.Backend {
	case "memory":
	case "qdrant":
		if c.Index.Qdrant.URL == "" {
			errs = append(errs, fmt.Errorf("index: qdrant backend requires a url"))
		}
	case "":
		errs = append(errs, fmt.Errorf("index: backend is required"))
	default:
		errs = append(errs, fmt.Errorf("index: unknown backend %q", c.Index.Backend))
	}
	if c.Index.ErrorThreshold < 0 || c.Index.ErrorThreshold > 1 {
		errs = append(errs, fmt.Errorf("index: error_threshold must be in [0,1], got %g", c.Index.ErrorThreshold))
	}

	p := c.Providers
	if p.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("providers: max_retries must be at least 1, got %d", p.MaxRetries))
	}
	if p.Voyage.EmbedModel == "" {
		errs = append(errs, fmt.Errorf("providers: voyage embed_model is required"))
	}
	if p.Voyage.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("providers: voyage dimension must be positive, got %d", p.Voyage.Dimension))
	}
	if c.Retrieval.UseReranking && p.Voyage.RerankModel == "" {
		errs = append(errs, fmt.Errorf("providers: voyage rerank_model is required when use_reranking is on"))
	}
	if p.Gemini.Model == "" {
		errs = append(errs, fmt.Errorf("providers: gemini model is required"))
	}

	return errs
}
