// Package metrics exposes Prometheus instrumentation for every pipeline
// stage: ingest, propagation, screening, risk, alerts, dispatch, and the HTTP
// surface. Collectors are package-level and registered once at init; callers
// record through small helper functions so instrumented code never touches
// prometheus types directly.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astrashield_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_tle_ingest_records_total",
			Help: "TLE records processed by ingest, by outcome.",
		},
		[]string{"outcome"}, // added, replaced, skipped
	)

	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astrashield_catalog_objects",
			Help: "Number of objects in the current catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astrashield_catalog_age_seconds",
			Help: "Seconds since the catalog was last ingested.",
		},
	)

	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astrashield_propagation_batch_seconds",
			Help:    "Duration of batch propagation runs.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	propagationObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_propagation_objects_total",
			Help: "Objects propagated, by outcome.",
		},
		[]string{"outcome"}, // ok, error
	)

	scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astrashield_screening_scan_seconds",
			Help:    "Wall time of one conjunction screening scan.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	scanPairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_screening_pairs_total",
			Help: "Pair counts per scan stage.",
		},
		[]string{"stage"}, // candidate, prefiltered, refined, emitted
	)

	scanInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astrashield_screening_scan_in_flight",
			Help: "1 while a screening scan is running.",
		},
	)

	conjunctionsByTier = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_conjunctions_total",
			Help: "Conjunction events emitted, by risk tier.",
		},
		[]string{"tier"},
	)

	alertTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_alert_transitions_total",
			Help: "Alert lifecycle transitions applied.",
		},
		[]string{"event"},
	)

	activeAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "astrashield_alerts_active",
			Help: "Active alerts by status.",
		},
		[]string{"status"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_dispatch_total",
			Help: "Webhook dispatch attempts, by endpoint type and outcome.",
		},
		[]string{"type", "outcome"}, // delivered, failed, short_circuited
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astrashield_dispatch_seconds",
			Help:    "Webhook dispatch duration including retries.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "astrashield_breaker_state",
			Help: "Circuit breaker state per endpoint: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"endpoint"},
	)

	reentrySweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astrashield_reentry_sweep_seconds",
			Help:    "Duration of one re-entry prediction sweep.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	reentryAtRisk = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "astrashield_reentry_objects",
			Help: "Objects tracked by the re-entry predictor, by status.",
		},
		[]string{"status"},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astrashield_ws_clients",
			Help: "Connected WebSocket alert-stream clients.",
		},
	)

	wsEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astrashield_ws_events_total",
			Help: "Events broadcast on the alert stream, by frame type.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		ingestTotal,
		catalogSize,
		catalogAgeSeconds,
		propagationDuration,
		propagationObjects,
		scanDuration,
		scanPairs,
		scanInFlight,
		conjunctionsByTier,
		alertTransitions,
		activeAlerts,
		dispatchTotal,
		dispatchDuration,
		breakerState,
		reentrySweepDuration,
		reentryAtRisk,
		wsClients,
		wsEvents,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIngest counts one ingest batch.
func RecordIngest(added, replaced, skipped int) {
	ingestTotal.WithLabelValues("added").Add(float64(added))
	ingestTotal.WithLabelValues("replaced").Add(float64(replaced))
	ingestTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// SetCatalogSize publishes the current object count.
func SetCatalogSize(n int) {
	catalogSize.Set(float64(n))
}

// SetCatalogAge publishes seconds since last ingest; negative means never.
func SetCatalogAge(sec float64) {
	if sec >= 0 {
		catalogAgeSeconds.Set(sec)
	}
}

// RecordPropagation records one batch propagation run.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationDuration.Observe(d.Seconds())
	propagationObjects.WithLabelValues("ok").Add(float64(success))
	propagationObjects.WithLabelValues("error").Add(float64(failed))
}

// ScanStarted/ScanFinished bracket one screening scan.
func ScanStarted() {
	scanInFlight.Set(1)
}

// ScanFinished records scan wall time and stage counters.
func ScanFinished(d time.Duration, candidates, prefiltered, refined, emitted int) {
	scanInFlight.Set(0)
	scanDuration.Observe(d.Seconds())
	scanPairs.WithLabelValues("candidate").Add(float64(candidates))
	scanPairs.WithLabelValues("prefiltered").Add(float64(prefiltered))
	scanPairs.WithLabelValues("refined").Add(float64(refined))
	scanPairs.WithLabelValues("emitted").Add(float64(emitted))
}

// RecordConjunction counts one emitted event by tier.
func RecordConjunction(tier string) {
	conjunctionsByTier.WithLabelValues(tier).Inc()
}

// RecordAlertTransition counts one applied FSM transition.
func RecordAlertTransition(event string) {
	alertTransitions.WithLabelValues(event).Inc()
}

// SetActiveAlerts publishes the per-status active alert census.
func SetActiveAlerts(byStatus map[string]int) {
	for status, n := range byStatus {
		activeAlerts.WithLabelValues(status).Set(float64(n))
	}
}

// RecordDispatch records one dispatch outcome for an endpoint type.
func RecordDispatch(endpointType, outcome string, d time.Duration) {
	dispatchTotal.WithLabelValues(endpointType, outcome).Inc()
	dispatchDuration.WithLabelValues(endpointType).Observe(d.Seconds())
}

// SetBreakerState publishes a breaker state: 0 closed, 1 half-open, 2 open.
func SetBreakerState(endpointID string, state float64) {
	breakerState.WithLabelValues(endpointID).Set(state)
}

// RecordReentrySweep records one predictor sweep and its status census.
func RecordReentrySweep(d time.Duration, byStatus map[string]int) {
	reentrySweepDuration.Observe(d.Seconds())
	for status, n := range byStatus {
		reentryAtRisk.WithLabelValues(status).Set(float64(n))
	}
}

// WSClientConnected / WSClientDisconnected track the live client gauge.
func WSClientConnected() { wsClients.Inc() }

// WSClientDisconnected decrements the live client gauge.
func WSClientDisconnected() { wsClients.Dec() }

// RecordWSEvent counts one broadcast frame by type.
func RecordWSEvent(frameType string) {
	wsEvents.WithLabelValues(frameType).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying writer so WebSocket upgrades work
// behind the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// routeLabel returns the matched mux pattern so path wildcards collapse into
// one series instead of one per satellite id. Unmatched requests share a
// single "other" label.
func routeLabel(r *http.Request) string {
	pattern := r.Pattern
	if pattern == "" {
		return "other"
	}
	if _, path, found := strings.Cut(pattern, " "); found {
		return path
	}
	return pattern
}

// Middleware records request count and duration for each request. The route
// label is read after the inner handler ran, because the mux fills in the
// matched pattern during routing.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := routeLabel(r)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
