// Package config defines the logseer.yaml configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of a logseer.yaml file.
type Config struct {
	Socket    string    `yaml:"socket"    json:"socket"`
	Chunking  Chunking  `yaml:"chunking"  json:"chunking"`
	Retrieval Retrieval `yaml:"retrieval" json:"retrieval"`
	Index     Index     `yaml:"index"     json:"index"`
	Providers Providers `yaml:"providers" json:"providers"`

	// FilePath is the path the config was loaded from. Not serialized.
	FilePath string `yaml:"-" json:"-"`
}

// Chunking controls how log streams are split into chunks.
type Chunking struct {
	MaxChunkSize   int `yaml:"max_chunk_size"  json:"max_chunk_size"`
	MinChunkSize   int `yaml:"min_chunk_size"  json:"min_chunk_size"`
	MaxLines       int `yaml:"max_lines"       json:"max_lines"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	OverlapChars   int `yaml:"overlap_chars"   json:"overlap_chars"`
}

// Retrieval controls the two-stage query pipeline.
type Retrieval struct {
	InitialK           int  `yaml:"initial_k"            json:"initial_k"`
	FinalK             int  `yaml:"final_k"              json:"final_k"`
	UseReranking       bool `yaml:"use_reranking"        json:"use_reranking"`
	ContextBudgetChars int  `yaml:"context_budget_chars" json:"context_budget_chars"`
}

// Index selects and configures the vector store backend.
type Index struct {
	Backend        string  `yaml:"backend"         json:"backend"` // memory | qdrant
	ErrorThreshold float64 `yaml:"error_threshold" json:"error_threshold"`
	RetainRemoved  *bool   `yaml:"retain_removed"  json:"retain_removed,omitempty"`
	Qdrant         Qdrant  `yaml:"qdrant"          json:"qdrant"`
}

// Qdrant holds connection settings for a Qdrant server.
type Qdrant struct {
	URL            string `yaml:"url"             json:"url"`
	APIKeyEnv      string `yaml:"api_key_env"     json:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Providers configures the external model endpoints.
type Providers struct {
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
	Voyage     Voyage `yaml:"voyage"      json:"voyage"`
	Gemini     Gemini `yaml:"gemini"      json:"gemini"`
}

// Voyage configures the embedding and rerank models.
type Voyage struct {
	BaseURL        string `yaml:"base_url"        json:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"     json:"api_key_env"`
	EmbedModel     string `yaml:"embed_model"     json:"embed_model"`
	RerankModel    string `yaml:"rerank_model"    json:"rerank_model"`
	Dimension      int    `yaml:"dimension"       json:"dimension"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Gemini configures the generation model.
type Gemini struct {
	BaseURL        string `yaml:"base_url"        json:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"     json:"api_key_env"`
	Model          string `yaml:"model"           json:"model"`
	MaxTokens      int    `yaml:"max_tokens"      json:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Default returns a config with every field at its default value.
func Default() *Config {
	retain := true
	return &Config{
		Socket: "/tmp/logseer.sock",
		Chunking: Chunking{
			MaxChunkSize:   1500,
			MinChunkSize:   200,
			MaxLines:       25,
			TimeoutSeconds: 30,
			OverlapChars:   200,
		},
		Retrieval: Retrieval{
			InitialK:           20,
			FinalK:             8,
			UseReranking:       true,
			ContextBudgetChars: 12000,
		},
		Index: Index{
			Backend:        "memory",
			ErrorThreshold: 1.0,
			RetainRemoved:  &retain,
			Qdrant: Qdrant{
				URL:            "http://localhost:6333",
				APIKeyEnv:      "QDRANT_API_KEY",
				TimeoutSeconds: 15,
			},
		},
		Providers: Providers{
			MaxRetries: 3,
			Voyage: Voyage{
				BaseURL:        "https://api.voyageai.com/v1",
				APIKeyEnv:      "VOYAGE_API_KEY",
				EmbedModel:     "voyage-3",
				RerankModel:    "rerank-2",
				Dimension:      1024,
				TimeoutSeconds: 30,
			},
			Gemini: Gemini{
				BaseURL:        "https://generativelanguage.googleapis.com",
				APIKeyEnv:      "GEMINI_API_KEY",
				Model:          "gemini-2.0-flash",
				MaxTokens:      2048,
				TimeoutSeconds: 60,
			},
		},
	}
}

// RetainRemoved reports whether chunks from destroyed containers are kept.
func (c *Config) RetainRemoved() bool {
	if c.Index.RetainRemoved == nil {
		return true
	}
	return *c.Index.RetainRemoved
}

// Load reads a config file, layering it over defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.FilePath = path
	return cfg, nil
}

// Save writes the config to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
