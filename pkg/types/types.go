// Package types holds the value types shared between the provider packages and
// the turn pipeline. Nothing in here performs I/O.
package types

import "time"

// Message roles understood by every chat-completion backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry of a chat-completion request or of a session's
// conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string `json:"role" yaml:"role"`

	// Content is the plain text of the message.
	Content string `json:"content" yaml:"content"`
}

// UserMessage returns a message with RoleUser.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns a message with RoleAssistant.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage returns a message with RoleSystem.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ValidRole reports whether role is one of the three supported roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Transcript is the result of a batch speech-to-text request.
type Transcript struct {
	// Text is the recognised text, exactly as the service returned it.
	Text string

	// Language is the detected BCP-47 language, when the service reports one.
	Language string

	// Duration is the length of the transcribed audio, when reported.
	Duration time.Duration
}

// VoiceProfile describes a synthesis voice offered by a TTS backend.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier used in synthesis requests.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider is the name of the TTS backend that owns this voice.
	Provider string `json:"provider"`

	// Metadata carries free-form provider attributes (accent, age, use case).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ModelCapabilities describes the limits of a chat-completion model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens is the most tokens the model generates in one completion.
	MaxOutputTokens int
}
