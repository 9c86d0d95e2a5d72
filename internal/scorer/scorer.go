// Package scorer forecasts near-term conjunction risk from the recent scan
// history. The engine records one snapshot per screening scan; a Scorer
// turns that series into a coarse risk class per look-ahead horizon. The
// interface deliberately commits to nothing about the model: the reference
// implementation is a least-squares trend with a z-score anomaly gate, and a
// deployment can swap in anything that satisfies Scorer.
package scorer

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

// Snapshot aggregates one screening scan for forecasting.
type Snapshot struct {
	At     time.Time         `json:"at"`
	Events int               `json:"events"`
	MaxPc  float64           `json:"max_pc"`
	ByTier map[risk.Tier]int `json:"by_tier,omitempty"`
}

// Forecast is the predicted risk class for one horizon.
type Forecast struct {
	HorizonHours int       `json:"horizon_hours"`
	Class        risk.Tier `json:"class"`
	Confidence   float64   `json:"confidence"`
}

// Scorer produces per-horizon forecasts from scan history, oldest first.
type Scorer interface {
	Score(history []Snapshot) []Forecast
}

// Horizons the engine asks for, in hours.
var Horizons = []int{24, 48, 72}

// Tier weights for the scalar activity score. Each tier is worth four of the
// tier below it, so a single critical outweighs any plausible pile of lows.
const (
	weightLow      = 1.0
	weightModerate = 4.0
	weightHigh     = 16.0
	weightCritical = 64.0
)

// Class cutoffs on the projected score.
const (
	scoreCritical = weightCritical
	scoreHigh     = weightHigh
	scoreModerate = weightModerate
)

// TrendScorer is the reference Scorer: ordinary least squares over the
// snapshot scores projected to each horizon, with a z-score gate that bumps
// the class when the latest scan is a clear outlier against its history.
type TrendScorer struct {
	// ZGate is the |z| above which the latest snapshot counts as anomalous,
	// default 2.
	ZGate float64
	// MinSamples is the history length below which no trend is fit,
	// default 4.
	MinSamples int
}

// NewTrendScorer returns a TrendScorer with stock settings.
func NewTrendScorer() *TrendScorer {
	return &TrendScorer{ZGate: 2, MinSamples: 4}
}

// score collapses one snapshot to a scalar.
func score(s Snapshot) float64 {
	total := 0.0
	for tier, n := range s.ByTier {
		switch tier {
		case risk.TierCritical:
			total += weightCritical * float64(n)
		case risk.TierHigh:
			total += weightHigh * float64(n)
		case risk.TierModerate:
			total += weightModerate * float64(n)
		default:
			total += weightLow * float64(n)
		}
	}
	if s.ByTier == nil {
		total = weightLow * float64(s.Events)
	}
	return total
}

func classFor(s float64) risk.Tier {
	switch {
	case s >= scoreCritical:
		return risk.TierCritical
	case s >= scoreHigh:
		return risk.TierHigh
	case s >= scoreModerate:
		return risk.TierModerate
	default:
		return risk.TierLow
	}
}

func bump(t risk.Tier) risk.Tier {
	switch t {
	case risk.TierLow:
		return risk.TierModerate
	case risk.TierModerate:
		return risk.TierHigh
	default:
		return risk.TierCritical
	}
}

// Score implements Scorer.
func (t *TrendScorer) Score(history []Snapshot) []Forecast {
	zGate := t.ZGate
	if zGate <= 0 {
		zGate = 2
	}
	minSamples := t.MinSamples
	if minSamples < 2 {
		minSamples = 4
	}

	if len(history) == 0 {
		return holdForecasts(risk.TierLow, 0.1)
	}

	scores := make([]float64, len(history))
	hours := make([]float64, len(history))
	t0 := history[0].At
	for i, s := range history {
		scores[i] = score(s)
		hours[i] = s.At.Sub(t0).Hours()
	}
	latest := scores[len(scores)-1]

	if len(history) < minSamples {
		// Not enough history for a trend: hold the current class at low
		// confidence.
		return holdForecasts(classFor(latest), 0.25)
	}

	alpha, beta := stat.LinearRegression(hours, scores, nil, false)
	r2 := stat.RSquared(hours, scores, nil, alpha, beta)
	confidence := clampConfidence(r2)

	mean, std := stat.MeanStdDev(scores, nil)
	anomalous := false
	if std > 0 {
		if z := (latest - mean) / std; math.Abs(z) > zGate {
			anomalous = true
		}
	}

	lastHour := hours[len(hours)-1]
	out := make([]Forecast, 0, len(Horizons))
	for _, h := range Horizons {
		projected := alpha + beta*(lastHour+float64(h))
		// A decaying trend never forecasts below what is already observed
		// inside the screening window.
		if projected < 0 {
			projected = 0
		}
		class := classFor(math.Max(projected, 0))
		conf := confidence
		if anomalous {
			// The latest scan broke from its history; trust the trend less
			// and lean pessimistic.
			class = maxTier(class, bump(classFor(latest)))
			conf = math.Min(conf, 0.4)
		}
		out = append(out, Forecast{HorizonHours: h, Class: class, Confidence: conf})
	}
	return out
}

func holdForecasts(class risk.Tier, conf float64) []Forecast {
	out := make([]Forecast, 0, len(Horizons))
	for _, h := range Horizons {
		out = append(out, Forecast{HorizonHours: h, Class: class, Confidence: conf})
	}
	return out
}

func maxTier(a, b risk.Tier) risk.Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

func clampConfidence(r2 float64) float64 {
	if math.IsNaN(r2) || r2 < 0.1 {
		return 0.1
	}
	if r2 > 0.95 {
		return 0.95
	}
	return r2
}
