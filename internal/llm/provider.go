package llm

import (
	"context"
	"errors"
)

// Chat message roles used across providers
const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// ErrUpstream marks a failure of the external completion endpoint. Handlers
// map it to a generic user-facing message; the raw upstream detail stays in
// logs and Sentry only.
var ErrUpstream = errors.New("upstream completion request failed")

// Message is a single chat-transcript entry sent to a completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider defines the interface for chat-completion providers.
// Implementations make exactly one attempt per call; retry policy belongs to
// the caller.
type Provider interface {
	// Generate sends the composed message list and returns the cleaned
	// Strudel pattern source from the first choice.
	Generate(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "openrouter", "openai", "gemini")
	Name() string
}

// Request contains all parameters needed for a completion call.
type Request struct {
	Model    string
	Messages []Message
}

// Response contains the result from the provider.
type Response struct {
	// Code is the cleaned pattern source (markdown fences stripped).
	Code string
	// Usage holds token accounting when the provider reports it.
	Usage Usage
}

// Usage is provider-agnostic token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
