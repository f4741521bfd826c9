package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/siherrmann/docrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatServer(t *testing.T, handler http.HandlerFunc) *OllamaGenerator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	generator, err := NewOllamaGenerator(OllamaConfig{
		BaseURL: server.URL,
		Model:   "llama3.1:8b",
	})
	require.NoError(t, err)
	return generator
}

func TestNewOllamaGenerator(t *testing.T) {
	t.Run("Missing base URL", func(t *testing.T) {
		_, err := NewOllamaGenerator(OllamaConfig{Model: "llama3.1:8b"})
		assert.Error(t, err)
	})

	t.Run("Timeout fallback", func(t *testing.T) {
		generator, err := NewOllamaGenerator(OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama3.1:8b"})
		require.NoError(t, err)
		assert.Equal(t, DefaultGenerationTimeout, generator.config.Timeout)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("Request shape and response", func(t *testing.T) {
		var gotPath string
		var gotBody map[string]interface{}
		generator := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": "Invoices are due within 30 days."},
			})
		})

		answer, err := generator.Generate(context.Background(), "You are a legal assistant.", "Question: when are invoices due")
		require.NoError(t, err, "Expected Generate to not return an error")

		assert.Equal(t, "/api/chat", gotPath)
		assert.Equal(t, "llama3.1:8b", gotBody["model"])
		assert.Equal(t, false, gotBody["stream"])

		options, ok := gotBody["options"].(map[string]interface{})
		require.True(t, ok)
		assert.EqualValues(t, 0, options["temperature"], "Expected deterministic generation")

		messages, ok := gotBody["messages"].([]interface{})
		require.True(t, ok)
		require.Len(t, messages, 2)

		assert.Equal(t, "Invoices are due within 30 days.", answer)
	})

	t.Run("Timeout maps to generation timeout error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		generator, err := NewOllamaGenerator(OllamaConfig{
			BaseURL: server.URL,
			Model:   "llama3.1:8b",
			Timeout: 20 * time.Millisecond,
		})
		require.NoError(t, err)

		_, err = generator.Generate(context.Background(), "system", "user")
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrGenerationTimeout)
	})

	t.Run("API error carries status and body", func(t *testing.T) {
		generator := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"model not loaded"}`, http.StatusInternalServerError)
		})

		_, err := generator.Generate(context.Background(), "system", "user")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("Bearer token is sent when configured", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": map[string]string{"content": "ok"},
			})
		}))
		defer server.Close()

		generator, err := NewOllamaGenerator(OllamaConfig{
			BaseURL: server.URL,
			Model:   "llama3.1:8b",
			Token:   "secret",
		})
		require.NoError(t, err)

		_, err = generator.Generate(context.Background(), "system", "user")
		require.NoError(t, err)
		assert.Equal(t, "Bearer secret", gotAuth)
	})
}
