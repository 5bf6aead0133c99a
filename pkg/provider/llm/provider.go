// Package llm defines the Provider interface for chat-completion backends.
//
// A provider wraps a remote model API (OpenAI, Anthropic, Gemini, a local
// Ollama instance) and exposes a uniform request/response shape so the turn
// pipeline can generate in-character replies without coupling to any SDK.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/palchat/pkg/types"
)

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce one reply.
type CompletionRequest struct {
	// Messages is the ordered message list, sent exactly as given. Callers
	// that want a system prompt put it first with RoleSystem.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the backend default in place.
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero means backend default.
	MaxTokens int
}

// CompletionResponse is the first candidate reply of a completion.
type CompletionResponse struct {
	// Content is the reply text. It is empty when the backend returned no
	// choices or a choice without text; that is not an error at this level.
	Content string

	// FinishReason is the backend's stop reason ("stop", "length", ...).
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Transport failures, authentication failures and non-success statuses
	// are returned as errors.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages would occupy in the
	// model's context window. The estimate should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities returns static limits of the configured model.
	Capabilities() types.ModelCapabilities
}

// EstimateTokens is the shared rough estimator used by providers without a
// tokeniser: about four characters per token plus a small per-message overhead.
func EstimateTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content)+3)/4 + 4
	}
	return total
}
