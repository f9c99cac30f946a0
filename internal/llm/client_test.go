package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medireport/platform/internal/shared/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{"", config.ProviderOllama, false},
		{config.ProviderOllama, config.ProviderOllama, false},
		{config.ProviderOpenAI, config.ProviderOpenAI, false},
		{"anthropic", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := New(config.LLMConfig{Provider: tt.provider, BaseURL: "http://localhost:11434"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Provider())
		})
	}
}

func TestOllamaGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{
			"model":    Model,
			"response": `{"summary":"ok"}`,
			"done":     true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL + "/"})
	text, err := c.Generate(context.Background(), "analyze this")
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"ok"}`, text)
	assert.Equal(t, "llama3.2:latest", got.Model)
	assert.Equal(t, "analyze this", got.Prompt)
	assert.False(t, got.Stream)
}

func TestOllamaGenerateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "llama3.2:latest" not found`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "p")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "404")
}

func TestOllamaGenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewOllamaClient(config.LLMConfig{BaseURL: url})
	_, err := c.Generate(context.Background(), "p")
	assert.Error(t, err)
}

func TestOllamaGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllamaGenerateCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL})
	_, err := c.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL})
	assert.NoError(t, c.Health(context.Background()))
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, Model, req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "prompt text", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"llama3.2:latest",
			"choices":[{"index":0,"message":{"role":"assistant","content":"model answer"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.LLMConfig{BaseURL: srv.URL})
	text, err := c.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "model answer", text)
}

func TestOpenAIGenerateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"model is loading","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.LLMConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "p")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}
