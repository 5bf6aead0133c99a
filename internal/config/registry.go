package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/palchat/pkg/provider/llm"
	"github.com/MrWong99/palchat/pkg/provider/stt"
	"github.com/MrWong99/palchat/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods for a name
// nobody registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type P from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is one stage's name to constructor table.
type factories[P any] struct {
	stage string
	m     map[string]Factory[P]
}

func (f *factories[P]) create(entry ProviderEntry) (P, error) {
	fn, ok := f.m[entry.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.stage, entry.Name)
	}
	return fn(entry)
}

// Registry maps provider names to constructors for the three pipeline
// stages. It is safe for concurrent use; registering a name twice keeps the
// later factory.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	llm factories[llm.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Provider]{stage: "stt", m: map[string]Factory[stt.Provider]{}},
		llm: factories[llm.Provider]{stage: "llm", m: map[string]Factory[llm.Provider]{}},
		tts: factories[tts.Provider]{stage: "tts", m: map[string]Factory[tts.Provider]{}},
	}
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	r.stt.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	r.llm.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	r.tts.m[name] = f
	r.mu.Unlock()
}

// CreateSTT builds the transcription provider named by entry.Name. Factory
// errors are returned unchanged.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateLLM builds the chat-completion provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateTTS builds the synthesis provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

// OptString returns opts[key] when it is a string, otherwise "".
func OptString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
