package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/observe"
)

// DefaultTTL is how long an untouched session lives.
const DefaultTTL = 30 * time.Minute

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithTTL sets the idle expiry. ttl <= 0 keeps [DefaultTTL].
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMetrics reports the number of live sessions to m.
func WithMetrics(m *observe.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// Manager creates, finds and expires sessions. Sessions live in memory
// only.
//
// All methods are safe for concurrent use.
type Manager struct {
	chars   *character.Registry
	runner  engine.TurnRunner
	ttl     time.Duration
	metrics *observe.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a Manager that starts sessions with characters from
// chars and runs their turns with runner.
func NewManager(chars *character.Registry, runner engine.TurnRunner, opts ...ManagerOption) *Manager {
	m := &Manager{
		chars:    chars,
		runner:   runner,
		ttl:      DefaultTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create starts a session with the given character, or the default one
// when characterID is empty.
func (m *Manager) Create(ctx context.Context, characterID string) (*Session, error) {
	c, err := m.chars.Resolve(characterID)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}
	s := newSession(id.String(), c, m.runner, m.now)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.gauge(ctx, 1)
	observe.Logger(ctx).Info("session started", "session_id", s.id, "character", c.ID)
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete ends the session with the given id. A turn in flight still
// completes; its result is discarded with the session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.gauge(ctx, -1)
	observe.Logger(ctx).Info("session ended", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed. Sessions processing a turn are never expired.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.State() != StateProcessing && s.LastActive().Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		m.gauge(ctx, -int64(len(expired)))
		slog.Info("session: expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is done. interval <=
// 0 uses a tenth of the TTL.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.ttl / 10
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Sweep(ctx)
		}
	}
}

func (m *Manager) gauge(ctx context.Context, delta int64) {
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, delta)
	}
}
