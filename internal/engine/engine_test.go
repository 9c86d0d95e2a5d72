package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/scorer"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/store"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tletest"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func testCatalog(t *testing.T, records ...tle.TLE) *tle.Catalog {
	t.Helper()
	c := tle.NewCatalog(testLogger)
	for _, rec := range records {
		if err := c.Upsert(rec); err != nil {
			t.Fatalf("upserting %d: %v", rec.NoradID, err)
		}
	}
	return c
}

func mustRecord(t *testing.T, id int, altKm, incDeg, raanDeg, maDeg float64) tle.TLE {
	t.Helper()
	epoch := time.Now().UTC().Add(-time.Hour)
	l1, l2 := tletest.Lines(tletest.Circular(id, epoch, altKm, incDeg, raanDeg, maDeg))
	rec, err := tle.ParseLines("", l1, l2)
	if err != nil {
		t.Fatalf("building record %d: %v", id, err)
	}
	return rec
}

func testEngine(t *testing.T, catalog *tle.Catalog, st store.Store) *Engine {
	t.Helper()
	cfg := Config{
		Screening: screening.Config{
			Window:      30 * time.Minute,
			CoarseStep:  time.Minute,
			ThresholdKm: 10,
			Workers:     2,
		},
		ScanDeadline: time.Minute,
		QueueDepth:   4,
	}
	deps := Deps{
		Catalog:   catalog,
		Risk:      risk.NewEngine(risk.DefaultConfig()),
		Alerts:    alert.NewManager(alert.DefaultConfig(), testLogger),
		Predictor: reentry.NewPredictor(reentry.DefaultConfig(), testLogger),
		Scorer:    scorer.NewTrendScorer(),
		Store:     st,
	}
	return New(cfg, deps, testLogger)
}

// TestRunScanEmptyCatalog verifies an empty catalog scans cleanly to zero
// events.
func TestRunScanEmptyCatalog(t *testing.T) {
	e := testEngine(t, testCatalog(t), nil)
	res, err := e.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if len(res.Assessments) != 0 {
		t.Fatalf("assessments = %d, want 0", len(res.Assessments))
	}
}

// TestRunScanCoincidentPairRaisesAlert verifies the full pipeline: two
// objects on the same orbit produce a rated event and an active alert.
func TestRunScanCoincidentPairRaisesAlert(t *testing.T) {
	catalog := testCatalog(t,
		mustRecord(t, 100, 550, 53, 0, 0),
		mustRecord(t, 200, 550, 53, 0, 0),
	)
	e := testEngine(t, catalog, nil)

	res, err := e.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if len(res.Assessments) != 1 {
		t.Fatalf("assessments = %d, want 1", len(res.Assessments))
	}
	as := res.Assessments[0]
	if as.IDA != 100 || as.IDB != 200 {
		t.Errorf("pair = %d/%d, want 100/200", as.IDA, as.IDB)
	}
	if as.Tier != risk.TierCritical {
		t.Errorf("tier = %s, want critical for a coincident pair", as.Tier)
	}

	alerts := e.deps.Alerts.List(alert.ListFilter{})
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Fingerprint != as.Fingerprint() {
		t.Errorf("alert fingerprint %q != event fingerprint %q",
			alerts[0].Fingerprint, as.Fingerprint())
	}

	// The scan also feeds the forecaster.
	if got := e.Forecasts(); len(got) != len(scorer.Horizons) {
		t.Errorf("forecasts = %d, want %d", len(got), len(scorer.Horizons))
	}

	// Conjunctions view honors the tier floor.
	if n := len(e.Conjunctions(risk.TierCritical, 0)); n != 1 {
		t.Errorf("critical conjunctions = %d, want 1", n)
	}
	if n := len(e.Conjunctions("", 0)); n != 1 {
		t.Errorf("all conjunctions = %d, want 1", n)
	}
}

// TestRunScanSingleFlight verifies a second concurrent scan is refused.
func TestRunScanSingleFlight(t *testing.T) {
	e := testEngine(t, testCatalog(t), nil)
	e.scanBusy.Store(true)
	if _, err := e.RunScan(context.Background()); !errors.Is(err, ErrScanInFlight) {
		t.Fatalf("err = %v, want ErrScanInFlight", err)
	}
}

// TestAnalyzePairUnknownObject verifies the analysis path surfaces unknown
// catalog ids as such.
func TestAnalyzePairUnknownObject(t *testing.T) {
	e := testEngine(t, testCatalog(t, mustRecord(t, 100, 550, 53, 0, 0)), nil)
	if _, err := e.AnalyzePair(context.Background(), 100, 999); !errors.Is(err, tle.ErrUnknownObject) {
		t.Fatalf("err = %v, want ErrUnknownObject", err)
	}
}

// TestAnalyzePairReportsDistantApproach verifies the relaxed analysis
// threshold reports a closest approach that a normal scan would never emit.
func TestAnalyzePairReportsDistantApproach(t *testing.T) {
	catalog := testCatalog(t,
		mustRecord(t, 100, 550, 53, 0, 0),
		mustRecord(t, 200, 550, 53, 0, 2),
	)
	e := testEngine(t, catalog, nil)

	as, err := e.AnalyzePair(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("AnalyzePair: %v", err)
	}
	if as.MissKm <= 10 {
		t.Errorf("miss = %.1f km; expected a distant approach above the scan threshold", as.MissKm)
	}
	if as.Pc < 0 || as.Pc > 1 {
		t.Errorf("Pc = %g out of [0,1]", as.Pc)
	}
}

// TestAlertPersistence verifies lifecycle events land in the alerts
// collection with a queryable status.
func TestAlertPersistence(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	catalog := testCatalog(t,
		mustRecord(t, 100, 550, 53, 0, 0),
		mustRecord(t, 200, 550, 53, 0, 0),
	)
	e := testEngine(t, catalog, st)

	if _, err := e.RunScan(context.Background()); err != nil {
		t.Fatalf("RunScan: %v", err)
	}

	docs, err := st.FindByField(store.CollectionAlerts, "status", "new")
	if err != nil {
		t.Fatalf("FindByField: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("persisted new alerts = %d, want 1", len(docs))
	}
}

// TestReentrySweepPersistsPredictions verifies sweep output reaches both the
// registry and the reentry collection.
func TestReentrySweepPersistsPredictions(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	catalog := testCatalog(t, mustRecord(t, 100, 300, 53, 0, 0))
	e := testEngine(t, catalog, st)
	e.deps.Registry = reentry.NewRegistry(nil, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.deps.Registry.Run(ctx)

	if err := e.ReentrySweep(ctx); err != nil {
		t.Fatalf("ReentrySweep: %v", err)
	}

	preds, err := e.deps.Registry.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(preds) != 1 || preds[0].NoradID != 100 {
		t.Fatalf("registry predictions = %+v, want one for 100", preds)
	}

	var persisted reentry.Prediction
	if err := st.Get(store.CollectionReentry, "100", &persisted); err != nil {
		t.Fatalf("persisted prediction: %v", err)
	}
	if persisted.NoradID != 100 {
		t.Errorf("persisted norad = %d, want 100", persisted.NoradID)
	}
}
