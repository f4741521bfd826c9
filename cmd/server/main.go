package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/siherrmann/docrag"
	"github.com/siherrmann/docrag/core/composer"
	"github.com/siherrmann/docrag/embedding"
	"github.com/siherrmann/docrag/generation"
	"github.com/siherrmann/docrag/helper"
	"github.com/siherrmann/docrag/loader"
	"github.com/siherrmann/docrag/model"
	"github.com/siherrmann/docrag/server"
)

func main() {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	cfg := server.Load()

	slog.Info("Starting docrag",
		"port", cfg.Port,
		"embed_provider", cfg.EmbedProvider,
		"ollama_chat", cfg.OllamaChatURL,
	)

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		slog.Error("failed to load database configuration", "error", err)
		os.Exit(1)
	}

	embedder, closeEmbedder, err := newEmbedder(cfg)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	defer closeEmbedder()

	var generator composer.Generator
	generator, err = generation.NewOllamaGenerator(generation.OllamaConfig{
		BaseURL: cfg.OllamaChatURL,
		Model:   cfg.OllamaChatModel,
		Token:   cfg.OllamaChatToken,
	})
	if err != nil {
		slog.Error("failed to create generator", "error", err)
		os.Exit(1)
	}

	rag, err := docrag.New(dbConfig, loader.NewPDFLoader(), embedder, generator, docrag.Options{
		Split: model.SplitConfig{
			ChunkSize: cfg.ChunkSize,
			Overlap:   cfg.ChunkOverlap,
		},
		Query: model.QueryConfig{
			TopK:                cfg.TopK,
			SimilarityThreshold: cfg.SimilarityThreshold,
		},
		EmbedBatchSize:  cfg.EmbedBatchSize,
		ContextBudget:   cfg.ContextBudget,
		StaleClaimAfter: time.Duration(cfg.StaleClaimMinutes) * time.Minute,
	})
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer rag.Close()

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	server.NewHandler(rag, rag, cfg.RawPDFDir).Register(app)

	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// newEmbedder picks the embedding provider from the configuration. The hugot
// provider runs the model in process, the ollama provider calls out over HTTP.
func newEmbedder(cfg *server.Config) (docrag.Embedder, func(), error) {
	switch cfg.EmbedProvider {
	case "ollama":
		embedder, err := embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:   cfg.OllamaEmbedURL,
			Model:     cfg.OllamaEmbedModel,
			Token:     cfg.OllamaEmbedToken,
			Dimension: cfg.OllamaEmbedDimension,
		})
		if err != nil {
			return nil, nil, err
		}
		return embedder, func() {}, nil
	default:
		embedder, err := embedding.NewHugotEmbedder(cfg.EmbedModelDir)
		if err != nil {
			return nil, nil, err
		}
		return embedder, func() {
			if err := embedder.Close(); err != nil {
				slog.Warn("failed to close embedder", "error", err)
			}
		}, nil
	}
}
