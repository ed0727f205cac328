// Package server exposes the shared state to the mobile client: the
// heatmap snapshot, the resolved location, report submission, and the
// active map configuration, plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/feed"
	"github.com/tidewatch/riskmap-service/internal/observability"
	"github.com/tidewatch/riskmap-service/internal/state"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// LocationResolver triggers a resolution pass.
type LocationResolver interface {
	Resolve(ctx context.Context) (domain.NamedLocation, error)
}

// MapConfigGetter serves the configuration for an optional coordinate.
type MapConfigGetter interface {
	Get(ctx context.Context, coord *domain.Coordinate) domain.MapConfiguration
}

// ReportSaver persists submitted community reports.
type ReportSaver interface {
	Save(ctx context.Context, rep domain.CommunityReport) error
}

// Deps wires the server's collaborators. Repo may be nil when report
// persistence is disabled.
type Deps struct {
	Store     *state.Store
	Resolver  LocationResolver
	MapConfig MapConfigGetter
	Reports   *feed.ReportStore
	Repo      ReportSaver
	Ready     ReadinessChecker
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Clock     clockwork.Clock

	CORSOrigins []string
}

// Server is the HTTP surface of the riskmap service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router and wraps it in an http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	h := &handler{deps: deps}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/healthz", h.handleHealth)
	router.Get("/readyz", h.handleReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/heatmap", h.handleHeatmap)
		r.Get("/heatmap/live", h.handleHeatmapLive)
		r.Get("/location", h.handleLocation)
		r.Post("/location/refresh", h.handleLocationRefresh)
		r.Get("/map/config", h.handleMapConfig)
		r.Post("/reports", h.handleSubmitReport)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: deps.Logger,
	}
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
