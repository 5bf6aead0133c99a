// Package server exposes the push-to-talk chat over HTTP.
//
// A client creates a session for a character, marks the start of a
// recording, and uploads the finished clip to run a turn. The response
// carries the transcript, the reply text and a playable audio URL.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/health"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/internal/session"
	"github.com/MrWong99/palchat/pkg/types"
)

// DefaultMaxUploadBytes caps uploads when no limit is configured.
const DefaultMaxUploadBytes = 25 << 20

// VoiceLister lists the voices of the configured speech backend.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithVoices enables GET /v1/voices.
func WithVoices(v VoiceLister) Option {
	return func(s *Server) { s.voices = v }
}

// WithMetrics records HTTP request metrics and spans.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithHealth serves /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMaxUploadBytes caps the size of a turn upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithAllowedOrigins enables CORS for the given browser origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithRateLimit limits API requests per client IP. n <= 0 disables it.
func WithRateLimit(n int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = n
		s.rateWindow = window
	}
}

// WithUploadDir sets where uploaded clips are stored while a turn runs.
// Empty uses the system temp directory.
func WithUploadDir(dir string) Option {
	return func(s *Server) { s.uploadDir = dir }
}

// Server holds the HTTP handlers.
type Server struct {
	sessions *session.Manager
	chars    *character.Registry

	voices         VoiceLister
	metrics        *observe.Metrics
	metricsHandler http.Handler
	health         *health.Handler
	maxUpload      int64
	origins        []string
	rateLimit      int
	rateWindow     time.Duration
	uploadDir      string
}

// New creates a Server over the given sessions and characters.
func New(sessions *session.Manager, chars *character.Registry, opts ...Option) *Server {
	s := &Server{
		sessions:   sessions,
		chars:      chars,
		maxUpload:  DefaultMaxUploadBytes,
		rateWindow: time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Traceparent"},
			ExposedHeaders: []string{observe.CorrelationHeader},
			MaxAge:         300,
		}))
	}

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
		}

		r.Get("/characters", s.listCharacters)
		r.Get("/voices", s.listVoices)

		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/recording", s.startRecording)
			r.Delete("/recording", s.cancelRecording)
			r.Post("/turns", s.runTurn)
		})
	})
	return r
}
