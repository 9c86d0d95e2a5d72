package scorer

import (
	"testing"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

func snapshots(start time.Time, tiers ...map[risk.Tier]int) []Snapshot {
	out := make([]Snapshot, len(tiers))
	for i, byTier := range tiers {
		n := 0
		for _, c := range byTier {
			n += c
		}
		out[i] = Snapshot{
			At:     start.Add(time.Duration(i) * time.Hour),
			Events: n,
			ByTier: byTier,
		}
	}
	return out
}

// TestEmptyHistory verifies the scorer degrades to a low/low-confidence
// forecast instead of failing on a cold start.
func TestEmptyHistory(t *testing.T) {
	fc := NewTrendScorer().Score(nil)
	if len(fc) != len(Horizons) {
		t.Fatalf("forecasts = %d, want %d", len(fc), len(Horizons))
	}
	for _, f := range fc {
		if f.Class != risk.TierLow {
			t.Errorf("horizon %d class = %s, want low", f.HorizonHours, f.Class)
		}
		if f.Confidence > 0.25 {
			t.Errorf("horizon %d confidence = %.2f, want low confidence", f.HorizonHours, f.Confidence)
		}
	}
}

// TestShortHistoryHoldsCurrentClass verifies that below the sample floor the
// scorer reports the present class rather than fitting a bogus trend.
func TestShortHistoryHoldsCurrentClass(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	hist := snapshots(start,
		map[risk.Tier]int{risk.TierHigh: 1},
		map[risk.Tier]int{risk.TierHigh: 1, risk.TierLow: 2},
	)
	fc := NewTrendScorer().Score(hist)
	for _, f := range fc {
		if f.Class != risk.TierHigh {
			t.Errorf("horizon %d class = %s, want high", f.HorizonHours, f.Class)
		}
	}
}

// TestRisingTrendEscalatesClass verifies a steadily climbing event rate
// forecasts a higher class at longer horizons.
func TestRisingTrendEscalatesClass(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Scores 2, 4, 6, 8, 10: slope 2 per hour. At +24 h the projection is
	// well past the moderate cut and climbing.
	hist := snapshots(start,
		map[risk.Tier]int{risk.TierLow: 2},
		map[risk.Tier]int{risk.TierLow: 4},
		map[risk.Tier]int{risk.TierLow: 6},
		map[risk.Tier]int{risk.TierLow: 8},
		map[risk.Tier]int{risk.TierLow: 10},
	)
	fc := NewTrendScorer().Score(hist)

	if fc[0].Class.Rank() < risk.TierModerate.Rank() {
		t.Errorf("24 h class = %s, want at least moderate", fc[0].Class)
	}
	// A perfect linear fit should be high confidence.
	if fc[0].Confidence < 0.9 {
		t.Errorf("confidence = %.2f, want >= 0.9 for a clean linear trend", fc[0].Confidence)
	}
	// Longer horizons on a rising trend never forecast lower.
	for i := 1; i < len(fc); i++ {
		if fc[i].Class.Rank() < fc[i-1].Class.Rank() {
			t.Errorf("class rank decreased from %s to %s with horizon", fc[i-1].Class, fc[i].Class)
		}
	}
}

// TestQuietHistoryStaysLow verifies a flat, quiet history forecasts low.
func TestQuietHistoryStaysLow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	hist := snapshots(start,
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierLow: 1},
	)
	for _, f := range NewTrendScorer().Score(hist) {
		if f.Class != risk.TierLow {
			t.Errorf("horizon %d class = %s, want low", f.HorizonHours, f.Class)
		}
	}
}

// TestAnomalyGateBumpsClass verifies a sudden critical burst against a quiet
// history leans the forecast pessimistic with reduced confidence.
func TestAnomalyGateBumpsClass(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	hist := snapshots(start,
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierLow: 2},
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierLow: 1},
		map[risk.Tier]int{risk.TierCritical: 3},
	)
	fc := NewTrendScorer().Score(hist)
	for _, f := range fc {
		if f.Class.Rank() < risk.TierCritical.Rank() {
			t.Errorf("horizon %d class = %s, want critical after anomaly", f.HorizonHours, f.Class)
		}
		if f.Confidence > 0.4 {
			t.Errorf("horizon %d confidence = %.2f, want <= 0.4 after anomaly", f.HorizonHours, f.Confidence)
		}
	}
}
