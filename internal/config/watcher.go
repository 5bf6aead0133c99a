package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats its file.
const DefaultWatchInterval = 5 * time.Second

// snapshot identifies one version of the watched file.
type snapshot struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a config file and reports edits that produce a different,
// valid configuration. An invalid edit is logged once and ignored; the last
// valid config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	prepare  func(*Config)

	mu      sync.Mutex
	current *Config
	seen    snapshot
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPrepare runs fn on every parsed config before it is validated,
// typically to overlay the environment with [ApplyEnv].
func WithPrepare(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.prepare = fn }
}

// NewWatcher loads path and fails if it is not a valid config. Polling
// starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}

	data, snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	cfg, err := w.parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, snap
	return w, nil
}

// Current returns the most recent valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	last := w.seen
	w.mu.Unlock()
	if info.ModTime().Equal(last.mtime) {
		return
	}

	data, snap, err := w.read()
	if err != nil {
		slog.Warn("config: cannot read watched file", "path", w.path, "err", err)
		return
	}
	if snap.sum == last.sum {
		w.mu.Lock()
		w.seen = snap
		w.mu.Unlock()
		return
	}

	cfg, perr := w.parse(data)
	w.mu.Lock()
	w.seen = snap
	old := w.current
	if perr == nil {
		w.current = cfg
	}
	w.mu.Unlock()

	if perr != nil {
		slog.Warn("config: ignoring invalid edit", "path", w.path, "err", perr)
		return
	}
	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read returns the file content with its mtime and digest taken from the
// same open file.
func (w *Watcher) read() ([]byte, snapshot, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, snapshot{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, snapshot{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, snapshot{}, err
	}
	return data, snapshot{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}

func (w *Watcher) parse(data []byte) (*Config, error) {
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if w.prepare == nil {
		return cfg, nil
	}
	w.prepare(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
