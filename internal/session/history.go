package session

import (
	"sync"

	"github.com/MrWong99/palchat/pkg/types"
)

// History is the append-only conversation of one session. It never
// reorders or drops messages; bounding the request size is the generator's
// job.
//
// All methods are safe for concurrent use.
type History struct {
	mu   sync.RWMutex
	msgs []types.Message
}

// AppendTurn adds the user utterance followed by the assistant reply.
func (h *History) AppendTurn(utterance, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, types.UserMessage(utterance), types.AssistantMessage(reply))
}

// Snapshot returns a copy of the messages in order. Callers may keep or
// modify it freely.
func (h *History) Snapshot() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}
