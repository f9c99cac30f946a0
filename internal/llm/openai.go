package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/medireport/platform/internal/shared/config"
)

// OpenAIClient calls an OpenAI-compatible chat completion API. Ollama serves
// one under /v1, so the same model runner works with either provider.
type OpenAIClient struct {
	client  *openai.Client
	timeout time.Duration
}

// NewOpenAIClient creates a client against cfg.BaseURL + "/v1"
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	apiKey := cfg.APIKey
	if apiKey == "" {
		// Ollama ignores the key but the header must be present
		apiKey = "ollama"
	}

	oaCfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		oaCfg.BaseURL = base + "/v1"
	}
	oaCfg.HTTPClient = &http.Client{}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oaCfg),
		timeout: timeoutOrDefault(cfg.Timeout),
	}
}

func (c *OpenAIClient) Provider() string { return config.ProviderOpenAI }

// Generate sends the prompt as a single user message
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &StatusError{StatusCode: reqErr.HTTPStatusCode}
		}
		return "", fmt.Errorf("failed to reach model endpoint: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Health lists models on the endpoint
func (c *OpenAIClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("model endpoint unreachable: %w", err)
	}
	return nil
}
