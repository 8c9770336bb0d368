package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"askmydocs/internal/chunker"
	"askmydocs/internal/config"
	"askmydocs/internal/docstore"
	"askmydocs/internal/domain"
	embeddinglocal "askmydocs/internal/embedding/local"
	embeddingopenai "askmydocs/internal/embedding/openai"
	generationopenai "askmydocs/internal/generation/openai"
	"askmydocs/internal/server"
	"askmydocs/internal/service"
	"askmydocs/internal/summarizer"
	"askmydocs/internal/vectorstore/memory"
	"askmydocs/internal/vectorstore/qdrant"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/askmydocs/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "local", "":
		emb = embeddinglocal.NewEmbedder(cfg.Embedder.Local.Dimension)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := embeddingopenai.NewClient(embeddingopenai.Config{
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:  cfg.Embedder.OpenAI.APIKeyEnv,
			Model:      cfg.Embedder.OpenAI.Model,
			Timeout:    time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:  cfg.Embedder.OpenAI.BatchSize,
			Dimensions: cfg.Embedder.OpenAI.Dimensions,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var gen domain.Generator
	switch cfg.Generator.Type {
	case "openai", "":
		client, err := generationopenai.NewClient(generationopenai.Config{
			BaseURL:     cfg.Generator.OpenAI.BaseURL,
			APIKeyEnv:   cfg.Generator.OpenAI.APIKeyEnv,
			Model:       cfg.Generator.OpenAI.Model,
			Timeout:     time.Duration(cfg.Generator.OpenAI.TimeoutSecs) * time.Second,
			MaxTokens:   cfg.Generator.OpenAI.MaxTokens,
			Temperature: cfg.Generator.OpenAI.Temperature,
		})
		if err != nil {
			log.Fatalf("openai generator init failed: %v", err)
		}
		gen = client
	default:
		log.Fatalf("unknown generator: %s", cfg.Generator.Type)
	}

	var st domain.VectorStore
	switch cfg.VectorStore.Type {
	case "memory", "":
		st = memory.NewStorage(emb.Dimension())
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		qst := qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		}, emb.Dimension())
		if err := qst.Init(context.Background()); err != nil {
			log.Fatalf("qdrant init failed: %v", err)
		}
		st = qst
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("cannot determine home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".askmydocs", "data", "askmydocs.db")
	}
	docs, err := docstore.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}
	defer docs.Close()

	pipeline := service.New(service.Options{
		Chunker:          chunker.NewTextChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap),
		Embedder:         emb,
		Store:            st,
		Generator:        gen,
		Summarizer:       summarizer.NewFrequencySummarizer(),
		Docs:             docs,
		Logger:           logger,
		MinScore:         cfg.Retrieval.MinScore,
		MaxResults:       cfg.Retrieval.MaxResults,
		SummarySentences: cfg.Summary.MaxSentences,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Restore(ctx); err != nil {
		log.Fatalf("failed to restore index: %v", err)
	}

	srv := server.New(server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		AllowedExtensions: cfg.Server.AllowedExtensions,
		Version:           version,
		Logger:            logger,
	}, pipeline)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
