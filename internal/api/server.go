// Package api serves the HTTP/JSON surface consumed by the UI and external
// tooling. Every /api response uses the {success, data, error} envelope;
// probes, metrics, and the WebSocket upgrade sit outside it.
package api

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/cache"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/engine"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/health"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// Sizes for the read-path response caches.
const (
	orbitCacheSize    = 256
	analysisCacheSize = 512
)

// Deps are the server's collaborators. Hub may be nil when the WebSocket
// stream is disabled.
type Deps struct {
	Catalog    *tle.Catalog
	Propagator *propagation.Propagator
	Engine     *engine.Engine
	Alerts     *alert.Manager
	Reentry    *reentry.Registry
	Hub        http.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger

	orbitCache    *cache.Cache[[]pathPoint]
	analysisCache *cache.Cache[risk.Assessment]
}

// NewServer creates a configured HTTP server on addr.
func NewServer(addr string, deps Deps, logger *slog.Logger) (*Server, error) {
	orbitCache, err := cache.New[[]pathPoint]("orbit", orbitCacheSize)
	if err != nil {
		return nil, err
	}
	analysisCache, err := cache.New[risk.Assessment]("analysis", analysisCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:          deps,
		logger:        logger,
		orbitCache:    orbitCache,
		analysisCache: analysisCache,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return deps.Catalog.Len() > 0 }))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/satellites", s.handleSatellites)
	mux.HandleFunc("GET /api/satellites/positions", s.handlePositions)
	mux.HandleFunc("GET /api/satellites/orbit/{id}", s.handleOrbit)
	mux.HandleFunc("GET /api/satellites/search", s.handleSearch)
	mux.HandleFunc("GET /api/satellites/{id}", s.handleSatelliteDetail)
	mux.HandleFunc("POST /api/satellites/refresh", s.handleRefresh)

	mux.HandleFunc("GET /api/conjunctions", s.handleConjunctions)
	mux.HandleFunc("GET /api/conjunctions/high", s.handleConjunctionsHigh)
	mux.HandleFunc("GET /api/conjunctions/analysis/{a}/{b}", s.handleAnalysis)
	mux.HandleFunc("POST /api/conjunctions/run", s.handleRunScan)

	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/{action}", s.handleAlertAction)

	mux.HandleFunc("GET /api/reentry", s.handleReentry)
	mux.HandleFunc("GET /api/reentry/upcoming", s.handleReentryUpcoming)

	if deps.Hub != nil {
		mux.Handle("GET /ws/alerts", deps.Hub)
	}

	// Middleware chain: metrics -> logging -> mux.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// HTTPServer returns the underlying *http.Server for external control
// (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the full middleware-wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// queryInt parses an integer query parameter, returning def when absent and
// ok=false when present but malformed.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// pathID parses the {id} path segment as a catalog id.
func pathID(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// probePath returns true for probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying writer so the WebSocket upgrade works
// behind the logging middleware.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
