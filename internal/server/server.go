// Package server serves the claim index and the ranking and conflict
// functions over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/k0sti/snowclaw-memory/internal/cache"
	"github.com/k0sti/snowclaw-memory/internal/metrics"
	"github.com/k0sti/snowclaw-memory/internal/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server is the snowclaw-memory HTTP API server.
type Server struct {
	cache   *cache.Cache
	trust   *model.MemoryConfig
	metrics *metrics.Metrics
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithVersion sets the version reported by /api/health.
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// New creates a Server over c. trust is used when a request carries no trust
// document of its own; nil means no preferences.
func New(c *cache.Cache, trust *model.MemoryConfig, opts ...Option) *Server {
	if trust == nil {
		trust = &model.MemoryConfig{}
	}
	s := &Server{
		cache:   c,
		trust:   trust,
		log:     zap.NewNop(),
		version: "dev",
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/memories/{id}", s.handleGetMemory)
		r.Get("/search", s.handleSearch)
		r.Post("/events", s.handleIngestEvent)
		r.Post("/evict", s.handleEvict)

		r.Post("/rank", s.handleRank)
		r.Post("/conflicts", s.handleDetectConflicts)
		r.Post("/conflicts/resolve", s.handleResolveConflict)
		r.Post("/decode", s.handleDecode)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	s.router = r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.Count(r.Context())
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"store":   err == nil,
		"claims":  n,
		"ttl":     s.cache.TTL().String(),
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRawJSON writes an already encoded body.
func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
