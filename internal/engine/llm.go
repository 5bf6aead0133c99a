package engine

import (
	"context"
	"strings"
	"time"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/pkg/provider/llm"
	"github.com/MrWong99/palchat/pkg/types"
)

// LLMGenerator implements [Generator] over an [llm.Provider].
type LLMGenerator struct {
	provider llm.Provider
	opts     options
}

// NewLLMGenerator wraps p. Relevant options: WithMaxTokens, WithTemperature,
// WithFallbackReply, WithHistoryWindow, WithMaxContextTokens, WithMetrics,
// WithProviderName, WithBreaker. Without a window or token budget the whole
// history is sent.
func NewLLMGenerator(p llm.Provider, opts ...Option) *LLMGenerator {
	return &LLMGenerator{provider: p, opts: buildOptions(opts)}
}

// Generate asks the model for a reply in c's voice. An empty or
// whitespace-only completion yields the fallback reply.
func (g *LLMGenerator) Generate(ctx context.Context, c character.Character, utterance string, history []types.Message) (reply string, err error) {
	ctx, span := observe.StartStage(ctx, observe.StageLLM, g.opts.provider)
	start := time.Now()
	defer func() {
		g.opts.record(ctx, observe.StageLLM, start, err)
		observe.EndSpan(span, err)
	}()

	req := llm.CompletionRequest{
		Messages:    g.Messages(c, utterance, history),
		Temperature: g.opts.temperature,
		MaxTokens:   g.opts.maxTokens,
	}

	var resp *llm.CompletionResponse
	err = g.opts.guard(func() error {
		var err error
		resp, err = g.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		observe.Logger(ctx).Warn("model returned no usable content, using fallback reply", "character", c.ID)
		return g.opts.fallback, nil
	}
	return resp.Content, nil
}

// Messages builds the request: the character's system prompt, the windowed
// history in its original order, then the new utterance. history is copied,
// never modified.
func (g *LLMGenerator) Messages(c character.Character, utterance string, history []types.Message) []types.Message {
	h := windowTurns(history, g.opts.historyWindow)

	build := func(h []types.Message) []types.Message {
		msgs := make([]types.Message, 0, len(h)+2)
		msgs = append(msgs, types.SystemMessage(c.SystemPrompt))
		msgs = append(msgs, h...)
		return append(msgs, types.UserMessage(utterance))
	}

	msgs := build(h)
	if g.opts.maxContextTokens <= 0 {
		return msgs
	}
	for len(h) > 0 {
		n, err := g.provider.CountTokens(msgs)
		if err != nil || n <= g.opts.maxContextTokens {
			break
		}
		h = dropOldestTurn(h)
		msgs = build(h)
	}
	return msgs
}

// windowTurns returns the most recent n messages of h, never starting with
// an assistant message so that a user/assistant pair is never split.
func windowTurns(h []types.Message, n int) []types.Message {
	if n <= 0 || len(h) <= n {
		return h
	}
	start := len(h) - n
	for start < len(h) && h[start].Role == types.RoleAssistant {
		start++
	}
	return h[start:]
}

// ContextBudget derives a prompt token budget from the model's context
// window, leaving room for a reply of maxTokens. It returns 0, meaning no
// budget, when the provider reports no window.
func ContextBudget(p llm.Provider, maxTokens int) int {
	window := p.Capabilities().ContextWindow
	if window <= 0 {
		return 0
	}
	return max(window-maxTokens, 1)
}

// dropOldestTurn removes the first message and any assistant replies that
// directly follow it.
func dropOldestTurn(h []types.Message) []types.Message {
	h = h[1:]
	for len(h) > 0 && h[0].Role == types.RoleAssistant {
		h = h[1:]
	}
	return h
}

var _ Generator = (*LLMGenerator)(nil)
