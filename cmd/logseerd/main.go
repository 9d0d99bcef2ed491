package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"github.com/modoterra/logseer/internal/buildinfo"
	"github.com/modoterra/logseer/pkg/config"
	"github.com/modoterra/logseer/pkg/daemon"
	"github.com/modoterra/logseer/pkg/index"
	"github.com/modoterra/logseer/pkg/index/memory"
	"github.com/modoterra/logseer/pkg/index/qdrant"
	"github.com/modoterra/logseer/pkg/ingest"
	"github.com/modoterra/logseer/pkg/llm"
	"github.com/modoterra/logseer/pkg/retrieve"
	"github.com/modoterra/logseer/pkg/runtime/docker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("logseerd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// API keys commonly live in a local .env during development.
	_ = godotenv.Load()

	configPath := "logseer.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Error("config load failed", "path", configPath, "err", err)
			os.Exit(1)
		}
		logger.Info("no config file, using defaults", "path", configPath)
		cfg = config.Default()
	} else {
		logger.Info("config loaded", "path", configPath)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config validation", "err", e)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	rt, err := docker.New(logger)
	if err != nil {
		logger.Error("docker connect failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("index backend init failed", "backend", cfg.Index.Backend, "err", err)
		os.Exit(1)
	}

	ix := index.New(store, index.Options{
		ErrorThreshold: cfg.Index.ErrorThreshold,
		RetainRemoved:  cfg.RetainRemoved(),
	}, logger)

	voyage := llm.NewVoyageClient(llm.VoyageConfig{
		BaseURL:     cfg.Providers.Voyage.BaseURL,
		APIKey:      os.Getenv(cfg.Providers.Voyage.APIKeyEnv),
		EmbedModel:  cfg.Providers.Voyage.EmbedModel,
		RerankModel: cfg.Providers.Voyage.RerankModel,
		Timeout:     time.Duration(cfg.Providers.Voyage.TimeoutSeconds) * time.Second,
	})
	gemini := llm.NewGeminiClient(llm.GeminiConfig{
		BaseURL:   cfg.Providers.Gemini.BaseURL,
		APIKey:    os.Getenv(cfg.Providers.Gemini.APIKeyEnv),
		Model:     cfg.Providers.Gemini.Model,
		MaxTokens: cfg.Providers.Gemini.MaxTokens,
		Timeout:   time.Duration(cfg.Providers.Gemini.TimeoutSeconds) * time.Second,
	})

	watcher := ingest.NewWatcher(rt, voyage, ix, ingest.WatcherOptions{
		Chunking: ingest.ChunkerOptions{
			MaxChunkSize: cfg.Chunking.MaxChunkSize,
			MinChunkSize: cfg.Chunking.MinChunkSize,
			MaxLines:     cfg.Chunking.MaxLines,
			Timeout:      time.Duration(cfg.Chunking.TimeoutSeconds) * time.Second,
			OverlapChars: cfg.Chunking.OverlapChars,
		},
		EmbedRetries: cfg.Providers.MaxRetries,
	}, logger)
	go watcher.Run(ctx)

	retriever := retrieve.New(ix, voyage, voyage, gemini, retrieve.Options{
		InitialK:           cfg.Retrieval.InitialK,
		FinalK:             cfg.Retrieval.FinalK,
		UseReranking:       cfg.Retrieval.UseReranking,
		ContextBudgetChars: cfg.Retrieval.ContextBudgetChars,
		MaxRetries:         cfg.Providers.MaxRetries,
	}, logger)

	d := daemon.New(cfg.Socket, retriever, watcher, ix, logger)
	defer d.Shutdown()

	pollLoop := daemon.NewPollLoop(d, 1*time.Second, logger)
	go pollLoop.Run(ctx)

	logger.Info("starting logseerd", "version", buildinfo.Version, "socket", cfg.Socket, "backend", cfg.Index.Backend)
	sddaemon.SdNotify(false, sddaemon.SdNotifyReady)

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "err", err)
		os.Exit(1)
	}
}

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (index.Store, error) {
	switch cfg.Index.Backend {
	case "qdrant":
		store := qdrant.NewStore(qdrant.Config{
			URL:     cfg.Index.Qdrant.URL,
			APIKey:  os.Getenv(cfg.Index.Qdrant.APIKeyEnv),
			Timeout: time.Duration(cfg.Index.Qdrant.TimeoutSeconds) * time.Second,
		})
		if err := store.EnsureCollections(ctx, cfg.Providers.Voyage.Dimension); err != nil {
			return nil, err
		}
		logger.Info("qdrant ready", "url", cfg.Index.Qdrant.URL)
		return store, nil
	default:
		return memory.NewStore(cfg.Providers.Voyage.Dimension), nil
	}
}
