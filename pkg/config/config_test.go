package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("default config invalid: %v", errs)
	}
	if cfg.Chunking.MaxChunkSize != 1500 {
		t.Errorf("max_chunk_size: got %d, want 1500", cfg.Chunking.MaxChunkSize)
	}
	if cfg.Retrieval.InitialK != 20 || cfg.Retrieval.FinalK != 8 {
		t.Errorf("retrieval defaults: got %d/%d, want 20/8", cfg.Retrieval.InitialK, cfg.Retrieval.FinalK)
	}
	if !cfg.RetainRemoved() {
		t.Error("retain_removed should default to true")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logseer.yaml")
	content := []byte(`chunking:
  max_chunk_size: 2000
retrieval:
  final_k: 5
index:
  backend: qdrant
  retain_removed: false
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Chunking.MaxChunkSize != 2000 {
		t.Errorf("max_chunk_size: got %d, want 2000", cfg.Chunking.MaxChunkSize)
	}
	if cfg.Chunking.MinChunkSize != 200 {
		t.Errorf("min_chunk_size should keep default 200, got %d", cfg.Chunking.MinChunkSize)
	}
	if cfg.Retrieval.FinalK != 5 {
		t.Errorf("final_k: got %d, want 5", cfg.Retrieval.FinalK)
	}
	if cfg.Index.Backend != "qdrant" {
		t.Errorf("backend: got %q, want qdrant", cfg.Index.Backend)
	}
	if cfg.RetainRemoved() {
		t.Error("retain_removed should be false")
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("loaded config invalid: %v", errs)
	}
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"final_k above initial_k", func(c *Config) { c.Retrieval.FinalK = 50 }},
		{"min above max", func(c *Config) { c.Chunking.MinChunkSize = 5000 }},
		{"zero max_lines", func(c *Config) { c.Chunking.MaxLines = 0 }},
		{"overlap above max size", func(c *Config) { c.Chunking.OverlapChars = 1500 }},
		{"unknown backend", func(c *Config) { c.Index.Backend = "redis" }},
		{"threshold above one", func(c *Config) { c.Index.ErrorThreshold = 1.5 }},
		{"zero retries", func(c *Config) { c.Providers.MaxRetries = 0 }},
		{"missing embed model", func(c *Config) { c.Providers.Voyage.EmbedModel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if errs := Validate(cfg); len(errs) == 0 {
				t.Error("expected validation error, got none")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logseer.yaml")
	cfg := Default()
	cfg.Retrieval.FinalK = 4
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Retrieval.FinalK != 4 {
		t.Errorf("final_k after round trip: got %d, want 4", loaded.Retrieval.FinalK)
	}
}
