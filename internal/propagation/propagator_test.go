package propagation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tletest"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

var testEpoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

// mustRecord builds a validated circular-orbit record for tests.
func mustRecord(t *testing.T, id int, altKm, incDeg, raanDeg, maDeg float64) tle.TLE {
	t.Helper()
	l1, l2 := tletest.Lines(tletest.Circular(id, testEpoch, altKm, incDeg, raanDeg, maDeg))
	rec, err := tle.ParseLines("", l1, l2)
	if err != nil {
		t.Fatalf("building record %d: %v", id, err)
	}
	return rec
}

// TestSGP4EpochIdentity verifies that evaluating an element set at its own
// epoch reproduces the orbit geometry the elements describe.
func TestSGP4EpochIdentity(t *testing.T) {
	rec := mustRecord(t, 90001, 500, 51.6, 120, 0)

	sv, err := Propagate(rec, rec.Epoch)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	if sv.NoradID != 90001 {
		t.Errorf("NoradID = %d, want 90001", sv.NoradID)
	}
	if !sv.At.Equal(rec.Epoch) {
		t.Errorf("At = %v, want epoch %v", sv.At, rec.Epoch)
	}

	// Osculating radius differs from the mean semi-major axis by short-period
	// J2 terms, a few tens of km at this inclination.
	a := tle.EarthRadiusKm + 500
	if r := r3.Norm(sv.Pos); math.Abs(r-a) > 30 {
		t.Errorf("radius = %.1f km, want %.1f +- 30 km", r, a)
	}

	vCirc := math.Sqrt(398600.4418 / a)
	if v := r3.Norm(sv.Vel); math.Abs(v-vCirc) > 0.05 {
		t.Errorf("speed = %.3f km/s, want %.3f +- 0.05 km/s", v, vCirc)
	}
}

// TestStateAtTruncatesToSecond verifies sub-second target times evaluate on
// the whole-second lattice.
func TestStateAtTruncatesToSecond(t *testing.T) {
	rec := mustRecord(t, 90001, 500, 51.6, 120, 0)
	sp, err := New(rec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	at := testEpoch.Add(90*time.Second + 473*time.Millisecond)
	got, err := sp.StateAt(at)
	if err != nil {
		t.Fatalf("StateAt failed: %v", err)
	}
	want, err := sp.StateAt(testEpoch.Add(90 * time.Second))
	if err != nil {
		t.Fatalf("StateAt failed: %v", err)
	}

	if !got.At.Equal(want.At) {
		t.Errorf("At = %v, want %v", got.At, want.At)
	}
	if got.Pos != want.Pos {
		t.Errorf("position differs across sub-second truncation: %v vs %v", got.Pos, want.Pos)
	}
}

// TestSGP4DeepSpace verifies the deep-space corrections engage for a
// geosynchronous period without error.
func TestSGP4DeepSpace(t *testing.T) {
	rec := mustRecord(t, 90005, 35786, 3.0, 75, 10)
	if !rec.DeepSpace() {
		t.Fatal("geosynchronous record should classify as deep-space")
	}

	sv, err := Propagate(rec, rec.Epoch.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if r := r3.Norm(sv.Pos); r < 41900 || r > 42400 {
		t.Errorf("radius = %.1f km, want near 42164 km", r)
	}
}

// TestSGP4Decayed verifies orbits under the altitude floor are classified
// as decayed.
func TestSGP4Decayed(t *testing.T) {
	rec := mustRecord(t, 90010, 40, 51.6, 0, 0)

	sv, err := Propagate(rec, rec.Epoch)
	if err == nil {
		t.Fatalf("expected decay error, got state at radius %.1f km", r3.Norm(sv.Pos))
	}
	if !errors.Is(err, ErrDecayed) {
		t.Fatalf("expected ErrDecayed, got %v", err)
	}
}

// TestInitErrorMapping exercises the code-to-sentinel mapping.
func TestInitErrorMapping(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{1, ErrNumericalDivergence},
		{3, ErrNumericalDivergence},
		{5, ErrDecayed},
		{6, ErrDecayed},
		{4, nil}, // generic, no sentinel
	}
	for _, tt := range tests {
		err := initError(12345, tt.code, "detail")
		if err == nil {
			t.Fatalf("code %d: expected error", tt.code)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("code %d: got %v, want %v", tt.code, err, tt.want)
		}
		if tt.want == nil && (errors.Is(err, ErrDecayed) || errors.Is(err, ErrNumericalDivergence)) {
			t.Errorf("code %d: should not map to a sentinel, got %v", tt.code, err)
		}
	}
}

// TestNewRejectsMalformed verifies garbage never reaches the library.
func TestNewRejectsMalformed(t *testing.T) {
	_, err := New(tle.TLE{NoradID: 99999, Line1: "invalid line 1", Line2: "invalid line 2"})
	if err == nil {
		t.Fatal("expected error for malformed lines, got nil")
	}
}

// TestWorkerPoolBatch verifies parallel propagation with a failing member.
func TestWorkerPoolBatch(t *testing.T) {
	pool := NewWorkerPool(4, testLogger)

	objects := []tle.Object{
		{TLE: mustRecord(t, 90001, 500, 51.6, 0, 0)},
		{TLE: mustRecord(t, 90002, 550, 53.0, 90, 45)},
		{TLE: mustRecord(t, 90003, 780, 86.4, 200, 180)},
		{TLE: mustRecord(t, 90010, 40, 51.6, 0, 0)}, // under the decay floor
	}

	at := testEpoch.Add(30 * time.Minute)
	states, successCount, errorCount := pool.PropagateBatch(context.Background(), objects, at, nil)

	if successCount != 3 || errorCount != 1 {
		t.Fatalf("success=%d errors=%d, want 3/1", successCount, errorCount)
	}
	if len(states) != 3 {
		t.Fatalf("got %d states, want 3", len(states))
	}
	for i, sv := range states {
		if i > 0 && states[i-1].NoradID >= sv.NoradID {
			t.Errorf("states not ordered by id: %d before %d", states[i-1].NoradID, sv.NoradID)
		}
		if r := r3.Norm(sv.Pos); r < 6600 || r > 7400 {
			t.Errorf("object %d: radius %.1f km outside LEO band", sv.NoradID, r)
		}
	}
}

// TestWorkerPoolCancellation verifies the pool stops feeding work once the
// context is cancelled.
func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, testLogger)

	objects := make([]tle.Object, 100)
	for i := range objects {
		objects[i] = tle.Object{TLE: mustRecord(t, 91000+i, 500+float64(i), 51.6, float64(i*3%360), 0)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	states, _, _ := pool.PropagateBatch(ctx, objects, testEpoch, nil)
	if len(states) >= len(objects) {
		t.Errorf("expected fewer results with cancelled context, got %d/%d", len(states), len(objects))
	}
}

// TestPropagatorSnapshot verifies whole-catalog propagation and that the
// model cache follows catalog revisions.
func TestPropagatorSnapshot(t *testing.T) {
	catalog := tle.NewCatalog(testLogger)
	records := []tle.TLE{
		mustRecord(t, 90001, 500, 51.6, 0, 0),
		mustRecord(t, 90002, 550, 53.0, 90, 45),
		mustRecord(t, 90003, 780, 86.4, 200, 180),
	}
	catalog.UpsertAll(records, "test", testEpoch)

	p := NewPropagator(catalog, PropConfig{Workers: 2}, testLogger)
	ctx := context.Background()

	at := testEpoch.Add(10 * time.Minute)
	snap, err := p.SnapshotAt(ctx, at)
	if err != nil {
		t.Fatalf("SnapshotAt failed: %v", err)
	}
	if len(snap.States) != 3 || snap.Failed != 0 {
		t.Fatalf("states=%d failed=%d, want 3/0", len(snap.States), snap.Failed)
	}
	if !snap.At.Equal(at) {
		t.Errorf("snapshot At = %v, want %v", snap.At, at)
	}

	// Same revision: the model cache must be reused, not rebuilt.
	first := p.cache.Load()
	if _, err := p.SnapshotAt(ctx, at.Add(time.Minute)); err != nil {
		t.Fatalf("SnapshotAt failed: %v", err)
	}
	if p.cache.Load() != first {
		t.Error("model cache rebuilt without a catalog change")
	}

	// Ingesting a new object bumps the revision and invalidates the cache.
	if err := catalog.Upsert(mustRecord(t, 90004, 620, 97.8, 310, 90)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	snap, err = p.SnapshotAt(ctx, at)
	if err != nil {
		t.Fatalf("SnapshotAt failed: %v", err)
	}
	if len(snap.States) != 4 {
		t.Fatalf("got %d states after ingest, want 4", len(snap.States))
	}
	if p.cache.Load() == first {
		t.Error("model cache not rebuilt after catalog change")
	}
}

// TestPropagatorSnapshotEmptyCatalog verifies the empty-catalog error.
func TestPropagatorSnapshotEmptyCatalog(t *testing.T) {
	p := NewPropagator(tle.NewCatalog(testLogger), PropConfig{Workers: 2}, testLogger)
	if _, err := p.SnapshotAt(context.Background(), testEpoch); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

// TestPropagatorStateAt verifies single-object lookup and the unknown-id
// error.
func TestPropagatorStateAt(t *testing.T) {
	catalog := tle.NewCatalog(testLogger)
	catalog.UpsertAll([]tle.TLE{mustRecord(t, 90001, 500, 51.6, 0, 0)}, "test", testEpoch)
	p := NewPropagator(catalog, PropConfig{Workers: 2}, testLogger)

	sv, err := p.StateAt(90001, testEpoch.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("StateAt failed: %v", err)
	}
	if sv.NoradID != 90001 {
		t.Errorf("NoradID = %d, want 90001", sv.NoradID)
	}

	_, err = p.StateAt(40000, testEpoch)
	if !errors.Is(err, tle.ErrUnknownObject) {
		t.Fatalf("expected ErrUnknownObject, got %v", err)
	}
}

// TestPropagatorPath verifies trajectory sampling.
func TestPropagatorPath(t *testing.T) {
	catalog := tle.NewCatalog(testLogger)
	catalog.UpsertAll([]tle.TLE{mustRecord(t, 90001, 500, 51.6, 0, 0)}, "test", testEpoch)
	p := NewPropagator(catalog, PropConfig{Workers: 2}, testLogger)
	ctx := context.Background()

	states, err := p.Path(ctx, 90001, testEpoch, 10*time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if len(states) != 11 {
		t.Fatalf("got %d points, want 11", len(states))
	}
	for i, sv := range states {
		want := testEpoch.Add(time.Duration(i) * time.Minute)
		if !sv.At.Equal(want) {
			t.Errorf("point %d: At = %v, want %v", i, sv.At, want)
		}
	}

	if _, err := p.Path(ctx, 90001, testEpoch, time.Hour, 0); err == nil {
		t.Fatal("expected error for non-positive step")
	}
	if _, err := p.Path(ctx, 40000, testEpoch, time.Hour, time.Minute); !errors.Is(err, tle.ErrUnknownObject) {
		t.Fatalf("expected ErrUnknownObject, got %v", err)
	}
}

// TestOrbitPathLazy verifies the iterator yields samples one at a time and
// reports exhaustion exactly once past the span.
func TestOrbitPathLazy(t *testing.T) {
	catalog := tle.NewCatalog(testLogger)
	catalog.UpsertAll([]tle.TLE{mustRecord(t, 90001, 500, 51.6, 0, 0)}, "test", testEpoch)
	p := NewPropagator(catalog, PropConfig{Workers: 2}, testLogger)

	op, err := p.OrbitPath(90001, testEpoch, 3*time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("OrbitPath failed: %v", err)
	}
	if op.Len() != 4 {
		t.Fatalf("Len = %d, want 4", op.Len())
	}

	var got int
	for {
		sv, ok, err := op.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		want := testEpoch.Add(time.Duration(got) * time.Minute)
		if !sv.At.Equal(want) {
			t.Errorf("sample %d: At = %v, want %v", got, sv.At, want)
		}
		got++
	}
	if got != 4 {
		t.Fatalf("yielded %d samples, want 4", got)
	}
	if _, ok, _ := op.Next(); ok {
		t.Fatal("exhausted path yielded another sample")
	}
}

// BenchmarkSnapshot500 benchmarks one full-catalog propagation of 500
// synthetic objects.
func BenchmarkSnapshot500(b *testing.B) {
	catalog := tle.NewCatalog(testLogger)
	records := make([]tle.TLE, 0, 500)
	for i := 0; i < 500; i++ {
		l1, l2 := tletest.Lines(tletest.Circular(92000+i, testEpoch, 450+float64(i%400), 53.0, float64(i*7%360), float64(i*11%360)))
		rec, err := tle.ParseLines("", l1, l2)
		if err != nil {
			b.Fatalf("building record: %v", err)
		}
		records = append(records, rec)
	}
	catalog.UpsertAll(records, "bench", testEpoch)

	p := NewPropagator(catalog, PropConfig{Workers: 4}, testLogger)
	ctx := context.Background()
	at := testEpoch.Add(time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.SnapshotAt(ctx, at); err != nil {
			b.Fatal(err)
		}
	}
}
