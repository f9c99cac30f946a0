package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/medireport/platform/internal/shared/config"
)

// Model is the model identifier sent with every request
const Model = "llama3.2:latest"

const defaultTimeout = 120 * time.Second

// Client sends a single prompt to a text-generation endpoint
type Client interface {
	// Generate returns the model's full, non-streamed answer
	Generate(ctx context.Context, prompt string) (string, error)
	// Health checks that the endpoint is reachable
	Health(ctx context.Context) error
	// Provider names the backend for logs and metrics
	Provider() string
}

// StatusError is returned when the endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("model API error: %d: %s", e.StatusCode, e.Body)
}

// New creates the client selected by cfg.Provider
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", config.ProviderOllama:
		return NewOllamaClient(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
