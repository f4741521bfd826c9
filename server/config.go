package server

import (
	"os"
	"strconv"
)

// Config holds the server configuration loaded from environment variables.
// Database settings come from helper.NewDatabaseConfiguration.
type Config struct {
	// Server
	Port    string
	AppName string

	// Embedding provider: "hugot" (in process) or "ollama"
	EmbedProvider  string
	EmbedModelDir  string
	OllamaEmbedURL string
	// Ollama embed settings (ignored for hugot)
	OllamaEmbedModel     string
	OllamaEmbedToken     string // Bearer token for Ollama Cloud (empty = local)
	OllamaEmbedDimension int

	// Generation
	OllamaChatURL   string
	OllamaChatModel string
	OllamaChatToken string // Bearer token for Ollama Cloud (empty = local)

	// Ingestion and retrieval
	RawPDFDir           string // directory scanned by directory-wide ingestion
	ChunkSize           int
	ChunkOverlap        int
	EmbedBatchSize      int
	StaleClaimMinutes   int
	TopK                int
	SimilarityThreshold float64
	ContextBudget       int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envOrDefault("PORT", "3001"),
		AppName: envOrDefault("APP_NAME", "docrag"),

		EmbedProvider:        envOrDefault("EMBED_PROVIDER", "hugot"),
		EmbedModelDir:        envOrDefault("EMBED_MODEL_DIR", "./models"),
		OllamaEmbedURL:       envOrDefault("OLLAMA_EMBED_URL", envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434")),
		OllamaEmbedModel:     envOrDefault("OLLAMA_EMBED_MODEL", "all-minilm"),
		OllamaEmbedToken:     os.Getenv("OLLAMA_EMBED_TOKEN"),
		OllamaEmbedDimension: envOrDefaultInt("OLLAMA_EMBED_DIMENSION", 384),

		OllamaChatURL:   envOrDefault("OLLAMA_CHAT_URL", envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434")),
		OllamaChatModel: envOrDefault("OLLAMA_CHAT_MODEL", "llama3.1:8b"),
		OllamaChatToken: os.Getenv("OLLAMA_CHAT_TOKEN"),

		RawPDFDir:           envOrDefault("RAW_PDF_DIR", "./data/raw"),
		ChunkSize:           envOrDefaultInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        envOrDefaultInt("CHUNK_OVERLAP", 150),
		EmbedBatchSize:      envOrDefaultInt("EMBED_BATCH_SIZE", 32),
		StaleClaimMinutes:   envOrDefaultInt("STALE_CLAIM_MINUTES", 15),
		TopK:                envOrDefaultInt("TOP_K", 5),
		SimilarityThreshold: envOrDefaultFloat("SIMILARITY_THRESHOLD", 0.3),
		ContextBudget:       envOrDefaultInt("CONTEXT_BUDGET", 6000),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
