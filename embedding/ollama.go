package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OllamaConfig holds the configuration for an Ollama embedding endpoint.
type OllamaConfig struct {
	BaseURL   string // e.g. http://localhost:11434 or https://api.ollama.com
	Model     string // e.g. all-minilm, bge-m3
	Token     string // Bearer token for Ollama Cloud (empty = no auth)
	Dimension int
}

// OllamaEmbedder calls the Ollama /api/embed endpoint. Used instead of the
// in-process embedder when the model should run on a separate host.
type OllamaEmbedder struct {
	config     OllamaConfig
	httpClient *http.Client
}

// NewOllamaEmbedder creates an Ollama-backed embedder.
func NewOllamaEmbedder(config OllamaConfig) (*OllamaEmbedder, error) {
	if config.BaseURL == "" || config.Model == "" {
		return nil, fmt.Errorf("ollama base URL and model must be set")
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("ollama embedding dimension must be positive, got %d", config.Dimension)
	}

	return &OllamaEmbedder{
		config:     config,
		httpClient: &http.Client{},
	}, nil
}

// Embed generates one embedding per input text in a single call.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := map[string]interface{}{
		"model": e.config.Model,
		"input": texts,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/api/embed", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.Token)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	return result.Embeddings, nil
}

// ModelID returns the model identifier recorded with every vector.
func (e *OllamaEmbedder) ModelID() string {
	return e.config.Model
}

// Dimension returns the embedding dimension of the configured model.
func (e *OllamaEmbedder) Dimension() int {
	return e.config.Dimension
}
