// Package httpadapter serves health, metrics and the read-only storm API.
package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/metevents/internal/adapter/sqlite"
	"github.com/couchcryptid/metevents/internal/domain"
)

// StormStore answers storm queries.
type StormStore interface {
	ListStorms(ctx context.Context, f sqlite.StormFilter) ([]domain.StormRecord, error)
	StationSummaries(ctx context.Context) ([]sqlite.StationSummary, error)
}

// Options configure the HTTP server.
type Options struct {
	Addr      string
	RateLimit int // API requests per minute per client IP; 0 disables limiting
	Stations  []domain.Station
}

// Server exposes health, readiness, metrics and storm API endpoints.
type Server struct {
	httpServer *http.Server
	store      StormStore
	stations   []domain.Station
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(opts Options, ready sharedobs.ReadinessChecker, store StormStore, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:    store,
		stations: opts.Stations,
		logger:   logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(rateLimit(opts.RateLimit, time.Minute))
		}
		r.Get("/storms", s.handleStorms)
		r.Get("/stations", s.handleStations)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// rateLimit limits requests per client IP over a sliding window.
func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			sharedobs.WriteJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
		}),
	)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
