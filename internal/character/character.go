// Package character holds the immutable catalog of personas a session can
// talk to.
//
// A [Registry] is built once at startup from the embedded catalog, a YAML
// file, or a Postgres table, and is read-only afterwards. Callers look up a
// [Character] by ID and thread it explicitly through each turn; there is no
// ambient "active character".
package character

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCharacterNotFound is returned by [Registry.Get] for an unknown ID.
var ErrCharacterNotFound = errors.New("character: not found")

// Character is one persona.
type Character struct {
	// ID is the unique lookup key, e.g. "mickey".
	ID string `json:"id" yaml:"id"`

	// Name is the display name.
	Name string `json:"name" yaml:"name"`

	// VoiceID selects the synthesis voice. It may be empty; see
	// engine.VoicePolicy for how an empty voice is handled.
	VoiceID string `json:"voice_id" yaml:"voice_id"`

	// SystemPrompt is sent as the first message of every generation request.
	SystemPrompt string `json:"-" yaml:"system_prompt"`

	// Greeting is shown before the first turn.
	Greeting string `json:"greeting" yaml:"greeting"`
}

// Validate reports missing required fields.
func (c Character) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		errs = append(errs, errors.New("system_prompt must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("character %q: %w", c.ID, err)
	}
	return nil
}

// Registry is an immutable, ordered set of characters with one default.
// It is safe for concurrent use.
type Registry struct {
	order     []string
	byID      map[string]Character
	defaultID string
}

// NewRegistry validates chars and builds a Registry. defaultID selects the
// default character; an empty defaultID picks the first one.
func NewRegistry(chars []Character, defaultID string) (*Registry, error) {
	if len(chars) == 0 {
		return nil, errors.New("character: registry needs at least one character")
	}

	r := &Registry{
		order: make([]string, 0, len(chars)),
		byID:  make(map[string]Character, len(chars)),
	}
	var errs []error
	for _, c := range chars {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := r.byID[c.ID]; dup {
			errs = append(errs, fmt.Errorf("character %q: duplicate id", c.ID))
			continue
		}
		r.order = append(r.order, c.ID)
		r.byID[c.ID] = c
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("character: %w", err)
	}

	if defaultID == "" {
		defaultID = r.order[0]
	}
	if _, ok := r.byID[defaultID]; !ok {
		return nil, fmt.Errorf("character: default %q is not in the catalog", defaultID)
	}
	r.defaultID = defaultID
	return r, nil
}

// Get returns the character with the given ID.
func (r *Registry) Get(id string) (Character, error) {
	c, ok := r.byID[id]
	if !ok {
		return Character{}, fmt.Errorf("%w: %q", ErrCharacterNotFound, id)
	}
	return c, nil
}

// Resolve returns the character with the given ID, or the default one when
// id is empty.
func (r *Registry) Resolve(id string) (Character, error) {
	if id == "" {
		return r.Default(), nil
	}
	return r.Get(id)
}

// Default returns the default character.
func (r *Registry) Default() Character {
	return r.byID[r.defaultID]
}

// List returns all characters in catalog order.
func (r *Registry) List() []Character {
	out := make([]Character, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of characters.
func (r *Registry) Len() int { return len(r.order) }
