// Package llm provides chat-completion clients for the providers the task
// generator can run against. Clients are plain HTTP callers with bounded
// retry on rate limits and a fallback path for providers that reject
// structured-output mode.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options tunes a single completion call.
type Options struct {
	// Temperature for sampling. Zero means provider default.
	Temperature float64
	// MaxTokens bounds the completion size. Zero means provider default.
	MaxTokens int
	// ForceJSON requests the provider's structured JSON output mode. When
	// the provider rejects the mode the client retries without it rather
	// than failing the call.
	ForceJSON bool
}

// Client is the chat-style completion interface the generator consumes.
type Client interface {
	// Complete sends a system instruction and user prompt, returning the
	// trimmed text completion.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
	// Name identifies the provider and model for logging.
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string // "openai" or "gemini"
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient builds a Client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q (supported: openai, gemini)", cfg.Provider)
	}
}

// maxRetries bounds the rate-limit/network retry loop inside each client.
// Backoff doubles per attempt: 1s, 2s, 4s.
const maxRetries = 3

func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}
