// Package llm wraps the model backends behind one streaming client
// interface and provides the generation wrapper used by the answer
// pipeline.
package llm

import (
	"context"
	"errors"
)

// StreamCallback is called for each text fragment during streaming, in
// emission order.
type StreamCallback func(fragment string, index int) error

// CompletionRequest represents a streaming completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat turn in the backend wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse summarizes a finished streaming completion.
type CompletionResponse struct {
	Content    string
	Model      string
	StopReason string
	LatencyMs  int64
}

// Client is the interface for model backends.
type Client interface {
	// CompleteStream sends a streaming completion request, invoking the
	// callback once per fragment. The callback's error aborts the stream.
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of model provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ErrNoAPIKey is returned when no backend credential is configured.
var ErrNoAPIKey = errors.New("model API key is required")

// NewClient creates a model client for the given provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewAnthropicClient(apiKey)
	}
}
