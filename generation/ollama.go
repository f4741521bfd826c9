package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/siherrmann/docrag/model"
)

// OllamaConfig holds the configuration for an Ollama chat endpoint.
type OllamaConfig struct {
	BaseURL string // e.g. http://localhost:11434 or https://api.ollama.com
	Model   string // e.g. llama3.1:8b, qwen3
	Token   string // Bearer token for Ollama Cloud (empty = no auth)
	Timeout time.Duration
}

// DefaultGenerationTimeout bounds one chat completion call.
const DefaultGenerationTimeout = 60 * time.Second

// OllamaGenerator produces answers through the Ollama /api/chat endpoint.
// Generation always runs with temperature zero.
type OllamaGenerator struct {
	config     OllamaConfig
	httpClient *http.Client
}

// NewOllamaGenerator creates an Ollama-backed generator.
func NewOllamaGenerator(config OllamaConfig) (*OllamaGenerator, error) {
	if config.BaseURL == "" || config.Model == "" {
		return nil, fmt.Errorf("ollama base URL and model must be set")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultGenerationTimeout
	}

	return &OllamaGenerator{
		config:     config,
		httpClient: &http.Client{},
	}, nil
}

// Generate sends a chat completion request and returns the model output.
// Exceeding the configured timeout maps to model.ErrGenerationTimeout.
func (g *OllamaGenerator) Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	payload := map[string]interface{}{
		"model": g.config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0,
		},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/api/chat", bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.Token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", model.ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama chat decode: %w", err)
	}

	return result.Message.Content, nil
}

// ModelID returns the chat model identifier.
func (g *OllamaGenerator) ModelID() string {
	return g.config.Model
}
