// Package app wires the palchat subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the character catalog,
// the turn pipeline and the HTTP API, Run serves until the context is
// cancelled, and Shutdown releases what New opened.
//
// For testing, inject doubles via functional options (WithCharacters,
// WithPublisher, WithRunner). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/palchat/internal/audiostore"
	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/config"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/engine/cascade"
	"github.com/MrWong99/palchat/internal/health"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/internal/resilience"
	"github.com/MrWong99/palchat/internal/server"
	"github.com/MrWong99/palchat/internal/session"
	"github.com/MrWong99/palchat/pkg/provider/llm"
	"github.com/MrWong99/palchat/pkg/provider/stt"
	"github.com/MrWong99/palchat/pkg/provider/tts"
)

// shutdownTimeout bounds how long in-flight requests may take to finish.
const shutdownTimeout = 15 * time.Second

// Providers holds one provider per pipeline stage. Populated by main.go via
// the config registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	chars          *character.Registry
	db             *pgxpool.Pool
	publisher      audiostore.Publisher
	runner         engine.TurnRunner
	sessions       *session.Manager
	metrics        *observe.Metrics
	metricsHandler http.Handler
	handler        http.Handler

	mu   sync.Mutex
	addr net.Addr

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithCharacters injects a character registry instead of loading one from
// config.
func WithCharacters(r *character.Registry) Option {
	return func(a *App) { a.chars = r }
}

// WithPublisher injects the audio publisher instead of creating one from
// config.
func WithPublisher(p audiostore.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithRunner replaces the turn pipeline built from the providers.
func WithRunner(r engine.TurnRunner) Option {
	return func(a *App) { a.runner = r }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. On error, anything
// already opened is closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Characters ────────────────────────────────────────────────────
	if a.chars == nil {
		chars, pool, err := loadCharacters(ctx, a.cfg.Characters, a.cfg.Pipeline.DefaultVoiceID)
		if err != nil {
			return fmt.Errorf("app: init characters: %w", err)
		}
		a.chars = chars
		if pool != nil {
			a.db = pool
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
		}
	}
	slog.Info("characters loaded", "count", a.chars.Len(), "default", a.chars.Default().ID)

	// ── 2. Audio publisher ───────────────────────────────────────────────
	if a.publisher == nil {
		p, err := newPublisher(a.cfg.Audio)
		if err != nil {
			return fmt.Errorf("app: init audio publisher: %w", err)
		}
		a.publisher = p
	}

	// ── 3. Turn pipeline ─────────────────────────────────────────────────
	if a.runner == nil {
		r, err := a.buildRunner()
		if err != nil {
			return fmt.Errorf("app: build pipeline: %w", err)
		}
		a.runner = r
	}

	// ── 4. Sessions + HTTP API ───────────────────────────────────────────
	a.sessions = session.NewManager(a.chars, a.runner,
		session.WithTTL(a.cfg.Server.SessionTTL),
		session.WithMetrics(a.metrics),
	)
	a.handler = a.buildHandler()
	return nil
}

// buildRunner assembles STT → LLM → TTS with a breaker per stage.
func (a *App) buildRunner() (engine.TurnRunner, error) {
	p := a.providers
	var missing []error
	if p.STT == nil {
		missing = append(missing, errors.New("stt provider is not configured"))
	}
	if p.LLM == nil {
		missing = append(missing, errors.New("llm provider is not configured"))
	}
	if p.TTS == nil {
		missing = append(missing, errors.New("tts provider is not configured"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	pc := a.cfg.Pipeline
	policy, ok := engine.ParseVoicePolicy(pc.VoicePolicy)
	if !ok {
		return nil, fmt.Errorf("unknown voice policy %q", pc.VoicePolicy)
	}

	prov := a.cfg.Providers
	stage := func(stageName string, entry config.ProviderEntry, extra ...engine.Option) []engine.Option {
		opts := []engine.Option{
			engine.WithMetrics(a.metrics),
			engine.WithProviderName(entry.Name),
		}
		if cb := newBreaker(stageName, entry.Breaker); cb != nil {
			opts = append(opts, engine.WithBreaker(cb))
		}
		return append(opts, extra...)
	}

	budget := pc.MaxContextTokens
	if budget <= 0 {
		budget = engine.ContextBudget(p.LLM, pc.MaxTokens)
	}

	transcriber := engine.NewSTTTranscriber(p.STT, stage(observe.StageSTT, prov.STT,
		engine.WithLanguage(pc.Language),
	)...)
	generator := engine.NewLLMGenerator(p.LLM, stage(observe.StageLLM, prov.LLM,
		engine.WithMaxTokens(pc.MaxTokens),
		engine.WithTemperature(pc.Temperature),
		engine.WithFallbackReply(pc.FallbackReply),
		engine.WithHistoryWindow(pc.HistoryWindow),
		engine.WithMaxContextTokens(budget),
	)...)
	synthesizer := engine.NewTTSSynthesizer(p.TTS, stage(observe.StageTTS, prov.TTS,
		engine.WithVoicePolicy(policy),
		engine.WithDefaultVoice(pc.DefaultVoiceID),
		engine.WithPublisher(a.publisher),
	)...)

	slog.Info("pipeline ready",
		"stt", prov.STT.Name, "llm", prov.LLM.Name, "tts", prov.TTS.Name,
		"voice_policy", policy.String(), "context_budget", budget,
	)
	return cascade.New(transcriber, generator, synthesizer, cascade.WithMetrics(a.metrics)), nil
}

func (a *App) buildHandler() http.Handler {
	checkers := []health.Checker{
		health.NonEmpty("characters", a.chars),
		health.Configured("providers", map[string]any{
			"stt": a.providers.STT,
			"llm": a.providers.LLM,
			"tts": a.providers.TTS,
		}),
	}
	if a.db != nil {
		checkers = append(checkers, health.Checker{Name: "database", Check: a.db.Ping})
	}
	checks := health.New(checkers...)

	sc := a.cfg.Server
	opts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithHealth(checks),
		server.WithMaxUploadBytes(sc.MaxUploadBytes),
		server.WithAllowedOrigins(sc.CORS.AllowedOrigins),
		server.WithRateLimit(sc.RateLimit.RequestsPerMinute, time.Minute),
	}
	if a.metricsHandler != nil {
		opts = append(opts, server.WithMetricsHandler(a.metricsHandler))
	}
	if a.providers.TTS != nil {
		opts = append(opts, server.WithVoices(a.providers.TTS))
	}
	return server.New(a.sessions, a.chars, opts...).Handler()
}

// newBreaker returns nil when the breaker is disabled.
func newBreaker(name string, bc config.BreakerConfig) *resilience.CircuitBreaker {
	if bc.MaxFailures <= 0 {
		return nil
	}
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  bc.MaxFailures,
		ResetTimeout: bc.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			level := slog.LevelInfo
			if to == resilience.StateOpen {
				level = slog.LevelWarn
			}
			slog.Log(context.Background(), level, "circuit breaker state change",
				"stage", name, "from", from.String(), "to", to.String())
		},
	})
}

// newPublisher creates the audio publisher selected in config.
func newPublisher(ac config.AudioConfig) (audiostore.Publisher, error) {
	switch ac.Publisher {
	case config.PublisherS3:
		s3 := ac.S3
		return audiostore.NewS3(audiostore.S3Config{
			Endpoint:      s3.Endpoint,
			Bucket:        s3.Bucket,
			Region:        s3.Region,
			AccessKey:     s3.AccessKey,
			SecretKey:     s3.SecretKey,
			UseSSL:        s3.UseSSL,
			Prefix:        s3.Prefix,
			Expiry:        s3.Expiry,
			PublicBaseURL: s3.PublicBaseURL,
		})
	case config.PublisherDataURI, "":
		return audiostore.DataURI{}, nil
	default:
		return nil, fmt.Errorf("unknown publisher %q", ac.Publisher)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.handler }

// Runner returns the turn pipeline.
func (a *App) Runner() engine.TurnRunner { return a.runner }

// Characters returns the loaded character registry.
func (a *App) Characters() *character.Registry { return a.chars }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Addr returns the address the HTTP server listens on, or nil before Run
// has bound it.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and sweeps idle sessions until ctx is cancelled.
// In-flight requests get a grace period to finish. Run returns nil after a
// clean shutdown.
func (a *App) Run(ctx context.Context) error {
	sc := a.cfg.Server
	ln, err := net.Listen("tcp", sc.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", sc.ListenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sessions.Run(gctx, 0)
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", sc.TLS != nil)
		var err error
		if sc.TLS != nil {
			err = srv.ServeTLS(ln, sc.TLS.CertFile, sc.TLS.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the resources opened by New. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ApplyConfig applies the parts of a changed config that take effect
// without a restart and logs the rest.
func ApplyConfig(level *slog.LevelVar, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changed; restart required to apply", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to a slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
