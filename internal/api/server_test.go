package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/engine"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tletest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func seedObject(t *testing.T, c *tle.Catalog, id int, name string, altKm, maDeg float64) {
	t.Helper()
	epoch := time.Now().UTC().Add(-time.Hour)
	l1, l2 := tletest.Lines(tletest.Circular(id, epoch, altKm, 51.6, 0, maDeg))
	rec, err := tle.ParseLines(name, l1, l2)
	if err != nil {
		t.Fatalf("building record %d: %v", id, err)
	}
	if err := c.Upsert(rec); err != nil {
		t.Fatalf("upserting %d: %v", id, err)
	}
}

// testServer builds a fully wired server over an in-memory catalog with two
// objects on nearby orbits.
func testServer(t *testing.T) (*Server, Deps) {
	t.Helper()
	logger := testLogger()

	catalog := tle.NewCatalog(logger)
	seedObject(t, catalog, 25544, "ISS (ZARYA)", 420, 0)
	seedObject(t, catalog, 43013, "STARLINK-1000", 550, 10)

	prop := propagation.NewPropagator(catalog, propagation.PropConfig{Workers: 2}, logger)
	alerts := alert.NewManager(alert.DefaultConfig(), logger)

	eng := engine.New(engine.Config{
		Screening: screening.Config{
			Window:      30 * time.Minute,
			CoarseStep:  time.Minute,
			ThresholdKm: 10,
			Workers:     2,
		},
		ScanDeadline: time.Minute,
	}, engine.Deps{
		Catalog:    catalog,
		Propagator: prop,
		Risk:       risk.NewEngine(risk.DefaultConfig()),
		Alerts:     alerts,
		Predictor:  reentry.NewPredictor(reentry.DefaultConfig(), logger),
	}, logger)

	registry := reentry.NewRegistry(nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go registry.Run(ctx)

	deps := Deps{
		Catalog:    catalog,
		Propagator: prop,
		Engine:     eng,
		Alerts:     alerts,
		Reentry:    registry,
	}
	s, err := NewServer("127.0.0.1:0", deps, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, deps
}

func do(t *testing.T, s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (data map[string]any, errObj map[string]any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   map[string]any  `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if len(resp.Data) > 0 {
		json.Unmarshal(resp.Data, &data)
	}
	return data, resp.Error
}

// TestSatelliteList verifies the catalog listing and its envelope shape.
func TestSatelliteList(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "GET", "/api/satellites", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data, _ := decodeEnvelope(t, w)
	if got := data["total"].(float64); got != 2 {
		t.Errorf("total = %v, want 2", got)
	}
	sats := data["satellites"].([]any)
	if len(sats) != 2 {
		t.Fatalf("satellites = %d, want 2", len(sats))
	}
}

// TestSatelliteDetail verifies degrees at the boundary and a live position.
func TestSatelliteDetail(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "GET", "/api/satellites/25544", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data, _ := decodeEnvelope(t, w)
	if data["norad_id"].(float64) != 25544 {
		t.Errorf("norad_id = %v", data["norad_id"])
	}
	inc := data["inclination_deg"].(float64)
	if inc < 51 || inc > 52 {
		t.Errorf("inclination_deg = %.2f, want ~51.6", inc)
	}
	pos, okPos := data["position"].(map[string]any)
	if !okPos {
		t.Fatalf("position missing: %v", data)
	}
	if lat := pos["lat_deg"].(float64); lat < -52 || lat > 52 {
		t.Errorf("lat_deg = %.2f outside the inclination band", lat)
	}
}

// TestSatelliteDetailUnknown verifies the 404 envelope.
func TestSatelliteDetailUnknown(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "GET", "/api/satellites/99999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	_, errObj := decodeEnvelope(t, w)
	if errObj["kind"] != kindNotFound {
		t.Errorf("error kind = %v, want %q", errObj["kind"], kindNotFound)
	}
}

// TestSatelliteSearch verifies name search is case-insensitive.
func TestSatelliteSearch(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "GET", "/api/satellites/search?q=starlink", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data, _ := decodeEnvelope(t, w)
	sats := data["satellites"].([]any)
	if len(sats) != 1 {
		t.Fatalf("matches = %d, want 1", len(sats))
	}

	w = do(t, s, "GET", "/api/satellites/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", w.Code)
	}
}

// TestPositions verifies the snapshot endpoint honors limit.
func TestPositions(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "GET", "/api/satellites/positions?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data, _ := decodeEnvelope(t, w)
	if positions := data["positions"].([]any); len(positions) != 1 {
		t.Errorf("positions = %d, want 1", len(positions))
	}
}

// TestOrbitPathCached verifies the second identical request is served from
// the LRU.
func TestOrbitPathCached(t *testing.T) {
	s, _ := testServer(t)
	for i := 0; i < 2; i++ {
		w := do(t, s, "GET", "/api/satellites/orbit/25544", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
		data, _ := decodeEnvelope(t, w)
		if path := data["path"].([]any); len(path) == 0 {
			t.Fatalf("request %d: empty path", i)
		}
	}
	if st := s.orbitCache.Stats(); st.Hits == 0 {
		t.Errorf("orbit cache hits = 0 after a repeated request, stats %+v", st)
	}
}

// TestBadLimitRejected verifies malformed query integers produce 400s.
func TestBadLimitRejected(t *testing.T) {
	s, _ := testServer(t)
	for _, target := range []string{
		"/api/satellites?limit=abc",
		"/api/conjunctions?limit=-1",
		"/api/reentry/upcoming?days=zero",
	} {
		w := do(t, s, "GET", target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

// TestConjunctionsEmpty verifies the endpoint answers before any scan ran.
func TestConjunctionsEmpty(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "GET", "/api/conjunctions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

// TestAnalysisUnknownObject verifies unknown ids map to the 404 envelope.
func TestAnalysisUnknownObject(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "GET", "/api/conjunctions/analysis/25544/99999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	w = do(t, s, "GET", "/api/conjunctions/analysis/25544/25544", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("same id twice: status = %d, want 400", w.Code)
	}
}

// TestRunScanAccepted verifies the trigger is asynchronous.
func TestRunScanAccepted(t *testing.T) {
	s, _ := testServer(t)
	w := do(t, s, "POST", "/api/conjunctions/run", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
}

func seedAlert(t *testing.T, deps Deps) alert.Alert {
	t.Helper()
	as := risk.Assessment{
		Conjunction: screening.Conjunction{
			IDA:    25544,
			IDB:    43013,
			TCA:    time.Now().UTC().Add(time.Hour),
			MissKm: 0.5,
		},
		Pc:   2e-4,
		Tier: risk.TierHigh,
	}
	return deps.Alerts.Ingest(as)
}

// TestAlertLifecycleActions walks an alert through acknowledge and resolve
// over HTTP, then checks the conflict and not-found mappings.
func TestAlertLifecycleActions(t *testing.T) {
	s, deps := testServer(t)
	a := seedAlert(t, deps)

	w := do(t, s, "POST", "/api/alerts/"+a.ID+"/acknowledge",
		strings.NewReader(`{"who":"operator","note":"looking"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("acknowledge: status = %d, want 200, body %s", w.Code, w.Body)
	}
	data, _ := decodeEnvelope(t, w)
	if data["status"] != string(alert.StatusAcknowledged) {
		t.Errorf("status after ack = %v", data["status"])
	}

	// Closing before resolving is an invalid transition.
	w = do(t, s, "POST", "/api/alerts/"+a.ID+"/close", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("premature close: status = %d, want 409", w.Code)
	}
	_, errObj := decodeEnvelope(t, w)
	if errObj["kind"] != kindInvalidTransition {
		t.Errorf("error kind = %v, want %q", errObj["kind"], kindInvalidTransition)
	}

	w = do(t, s, "POST", "/api/alerts/"+a.ID+"/resolve",
		strings.NewReader(`{"who":"operator","note":"maneuver confirmed"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: status = %d, want 200", w.Code)
	}
	w = do(t, s, "POST", "/api/alerts/"+a.ID+"/close", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close: status = %d, want 200", w.Code)
	}

	w = do(t, s, "POST", "/api/alerts/nope/acknowledge", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown alert: status = %d, want 404", w.Code)
	}
	w = do(t, s, "POST", "/api/alerts/"+a.ID+"/explode", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: status = %d, want 400", w.Code)
	}
}

// TestAlertListFilters verifies status filtering over HTTP.
func TestAlertListFilters(t *testing.T) {
	s, deps := testServer(t)
	seedAlert(t, deps)

	w := do(t, s, "GET", "/api/alerts?status=new", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data, _ := decodeEnvelope(t, w)
	if alerts := data["alerts"].([]any); len(alerts) != 1 {
		t.Errorf("new alerts = %d, want 1", len(alerts))
	}

	w = do(t, s, "GET", "/api/alerts?status=closed", nil)
	data, _ = decodeEnvelope(t, w)
	if alerts, okList := data["alerts"].([]any); okList && len(alerts) != 0 {
		t.Errorf("closed alerts = %d, want 0", len(alerts))
	}
}

// TestReentryUpcoming verifies the horizon filter and ordering.
func TestReentryUpcoming(t *testing.T) {
	s, deps := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now().UTC()
	preds := []reentry.Prediction{
		{NoradID: 1, DaysToReentry: 3, Status: reentry.StatusWarning, PredictedAt: now},
		{NoradID: 2, DaysToReentry: 90, Status: reentry.StatusNormal, PredictedAt: now},
		{NoradID: 3, DaysToReentry: 0.5, Status: reentry.StatusCritical, PredictedAt: now},
	}
	if err := deps.Reentry.Apply(ctx, preds, now); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	w := do(t, s, "GET", "/api/reentry/upcoming?days=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data, _ := decodeEnvelope(t, w)
	list := data["predictions"].([]any)
	if len(list) != 2 {
		t.Fatalf("upcoming = %d, want 2", len(list))
	}
	first := list[0].(map[string]any)
	if first["norad_id"].(float64) != 3 {
		t.Errorf("first upcoming = %v, want norad 3 (soonest)", first["norad_id"])
	}
}

// TestProbes verifies readiness flips with catalog content.
func TestProbes(t *testing.T) {
	s, _ := testServer(t)
	if w := do(t, s, "GET", "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", w.Code)
	}
	if w := do(t, s, "GET", "/readyz", nil); w.Code != http.StatusOK {
		t.Errorf("readyz with seeded catalog = %d, want 200", w.Code)
	}

	empty, err := NewServer("127.0.0.1:0", Deps{Catalog: tle.NewCatalog(testLogger())}, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if w := do(t, empty, "GET", "/readyz", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with empty catalog = %d, want 503", w.Code)
	}
}
