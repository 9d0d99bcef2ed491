package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modoterra/logseer/pkg/core"
)

// VoyageClient talks to the Voyage AI REST API for embeddings and
// reranking.
type VoyageClient struct {
	baseURL     string
	apiKey      string
	embedModel  string
	rerankModel string
	httpClient  *http.Client
}

// VoyageConfig holds the settings for a VoyageClient.
type VoyageConfig struct {
	BaseURL     string
	APIKey      string
	EmbedModel  string
	RerankModel string
	Timeout     time.Duration
}

// NewVoyageClient creates a client for the Voyage API.
func NewVoyageClient(cfg VoyageConfig) *VoyageClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.voyageai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &VoyageClient{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		embedModel:  cfg.EmbedModel,
		rerankModel: cfg.RerankModel,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type voyageEmbedRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (c *VoyageClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := voyageEmbedRequest{
		Input: texts,
		Model: c.embedModel,
	}
	var resp voyageEmbedResponse
	if err := c.postJSON(ctx, "/embeddings", "embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, &core.ProviderError{
			Op:  "embed",
			Err: fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, &core.ProviderError{
				Op:  "embed",
				Err: fmt.Errorf("embedding index %d out of range", d.Index),
			}
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

type voyageRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopK      int      `json:"top_k,omitempty"`
}

type voyageRerankResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
}

// Rerank scores docs against the query and returns up to topK results in
// descending relevance order.
func (c *VoyageClient) Rerank(ctx context.Context, query string, docs []string, topK int) ([]RankedDoc, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	req := voyageRerankRequest{
		Query:     query,
		Documents: docs,
		Model:     c.rerankModel,
		TopK:      topK,
	}
	var resp voyageRerankResponse
	if err := c.postJSON(ctx, "/rerank", "rerank", req, &resp); err != nil {
		return nil, err
	}
	ranked := make([]RankedDoc, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(docs) {
			return nil, &core.ProviderError{
				Op:  "rerank",
				Err: fmt.Errorf("rerank index %d out of range", d.Index),
			}
		}
		ranked = append(ranked, RankedDoc{Index: d.Index, Score: d.RelevanceScore})
	}
	return ranked, nil
}

func (c *VoyageClient) postJSON(ctx context.Context, endpoint, op string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return &core.ProviderError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return &core.ProviderError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network failures are worth retrying.
		return &core.ProviderError{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &core.ProviderError{
			Op:        op,
			Transient: transientStatus(resp.StatusCode),
			Err:       fmt.Errorf("voyage API status %d: %s", resp.StatusCode, msg),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.ProviderError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// transientStatus reports whether an HTTP status is worth retrying:
// rate limits and server-side failures, but not other client errors.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
