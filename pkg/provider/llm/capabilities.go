package llm

import (
	"strings"

	"github.com/MrWong99/palchat/pkg/types"
)

// capabilityRule matches model names by prefix or substring.
type capabilityRule struct {
	match   func(model string) bool
	context int
	output  int
}

func prefix(p ...string) func(string) bool {
	return func(m string) bool {
		for _, s := range p {
			if strings.HasPrefix(m, s) {
				return true
			}
		}
		return false
	}
}

func contains(s string) func(string) bool {
	return func(m string) bool { return strings.Contains(m, s) }
}

// capabilityRules is checked in order; the first match wins, so more
// specific names come first.
var capabilityRules = []capabilityRule{
	{prefix("gpt-5"), 400_000, 128_000},
	{prefix("gpt-4.1"), 1_047_576, 32_768},
	{prefix("gpt-4o"), 128_000, 16_384},
	{prefix("gpt-4-turbo"), 128_000, 4_096},
	{prefix("gpt-4"), 8_192, 4_096},
	{prefix("gpt-3.5-turbo"), 16_385, 4_096},
	{prefix("o1", "o3", "o4"), 200_000, 100_000},
	{contains("claude-3-opus"), 200_000, 4_096},
	{prefix("claude"), 200_000, 8_192},
	{contains("gemini-1.5-pro"), 2_097_152, 8_192},
	{contains("gemini-2"), 1_048_576, 8_192},
	{contains("gemini-1.5-flash"), 1_048_576, 8_192},
	{prefix("gemini"), 128_000, 8_192},
}

// LookupCapabilities returns the limits of well-known hosted models.
// Unknown names, including most local models, get a 128k window and 4k
// output tokens.
func LookupCapabilities(model string) types.ModelCapabilities {
	m := strings.ToLower(model)
	for _, r := range capabilityRules {
		if r.match(m) {
			return types.ModelCapabilities{ContextWindow: r.context, MaxOutputTokens: r.output}
		}
	}
	return types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
}
