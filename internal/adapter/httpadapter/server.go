// Package httpadapter exposes the resolution and streaming analysis API plus
// health, readiness, and metrics endpoints.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/station-insight-service/internal/analysis"
	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/resolve"
)

// Resolver resolves a query to nearby stations.
type Resolver interface {
	Resolve(ctx context.Context, req resolve.Request) (resolve.Resolution, error)
}

// Analyzer streams an analysis to a sink.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, sink analysis.Sink) error
}

// Catalog lists the loaded stations and their timezones.
type Catalog interface {
	ListStations(ctx context.Context) ([]domain.Station, error)
	Timezones() []string
}

// Deps are the collaborators behind the API routes.
type Deps struct {
	Resolver Resolver
	Analyzer Analyzer
	Catalog  Catalog
	Ready    sharedobs.ReadinessChecker

	// MaxStations caps the stations accepted by /api/analyze. Zero is unlimited.
	MaxStations int
}

// Server is the service's HTTP server.
type Server struct {
	httpServer  *http.Server
	resolver    Resolver
	analyzer    Analyzer
	catalog     Catalog
	maxStations int
	logger      *slog.Logger
}

// NewServer creates an HTTP server with the API, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		resolver:    deps.Resolver,
		analyzer:    deps.Analyzer,
		catalog:     deps.Catalog,
		maxStations: deps.MaxStations,
		logger:      logger,
	}

	mux.HandleFunc("POST /api/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/stations", s.handleStations)
	mux.HandleFunc("GET /api/stations/timezones", s.handleTimezones)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           Chain(mux, RequestID, Logging(logger), Recovery(logger)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Resolution waits on the shared inference queue. Analysis streams
		// clear this deadline per request.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

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
