// Package reentry predicts atmospheric re-entry for decaying catalog objects.
//
// Eligibility is a perigee cut: anything at or below the configured altitude
// gets a decay-rate estimate by differencing propagated altitude across a
// 24 h look-ahead, a days-to-reentry figure, a severity status, and an
// uncontrolled-reentry assessment from catalog metadata. Predictions replace
// each other wholesale per object; the Registry tracks the latest set and
// derives lifecycle events from the changes.
package reentry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// Status grades how imminent a predicted re-entry is.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusElevated Status = "elevated"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// severity orders statuses for lifecycle comparisons.
func severity(s Status) int {
	switch s {
	case StatusCritical:
		return 3
	case StatusWarning:
		return 2
	case StatusElevated:
		return 1
	default:
		return 0
	}
}

// Confidence grades how much to trust a prediction. The differencing estimate
// sharpens as drag bites harder, so confidence follows the decay rate.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Uncontrolled is the uncontrolled-reentry assessment attached to each
// prediction.
type Uncontrolled struct {
	IsUncontrolled bool     `json:"is_uncontrolled"`
	RiskLevel      string   `json:"risk_level"`
	Reasons        []string `json:"reasons,omitempty"`
}

// Prediction is the latest re-entry estimate for one catalog object.
type Prediction struct {
	NoradID          int          `json:"norad_id"`
	Name             string       `json:"name,omitempty"`
	AltitudeKm       float64      `json:"altitude_km"`
	DecayRateKmDay   float64      `json:"decay_rate_km_day"`
	DaysToReentry    float64      `json:"days_to_reentry"`
	PredictedReentry time.Time    `json:"predicted_reentry"`
	Confidence       string       `json:"confidence"`
	Status           Status       `json:"status"`
	Uncontrolled     Uncontrolled `json:"uncontrolled"`
	PredictedAt      time.Time    `json:"predicted_at"`
}

// Config holds the predictor's physics thresholds.
type Config struct {
	PerigeeCutKm    float64       // eligibility cut, default 500
	LookAhead       time.Duration // differencing horizon, default 24 h
	MaxDays         float64       // clamp for days-to-reentry, default 365
	BallisticBound  float64       // kg/m² above which mass is a hazard, default 100
	DecayBoundKmDay float64       // decay rate that alone implies no control, default 2
}

// DefaultConfig returns the stock predictor thresholds.
func DefaultConfig() Config {
	return Config{
		PerigeeCutKm:    500,
		LookAhead:       24 * time.Hour,
		MaxDays:         365,
		BallisticBound:  100,
		DecayBoundKmDay: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PerigeeCutKm <= 0 {
		c.PerigeeCutKm = d.PerigeeCutKm
	}
	if c.LookAhead <= 0 {
		c.LookAhead = d.LookAhead
	}
	if c.MaxDays <= 0 {
		c.MaxDays = d.MaxDays
	}
	if c.BallisticBound <= 0 {
		c.BallisticBound = d.BallisticBound
	}
	if c.DecayBoundKmDay <= 0 {
		c.DecayBoundKmDay = d.DecayBoundKmDay
	}
	return c
}

// Predictor runs re-entry sweeps over the catalog. Stateless apart from
// configuration; the Registry holds results.
type Predictor struct {
	cfg    Config
	logger *slog.Logger
}

func NewPredictor(cfg Config, logger *slog.Logger) *Predictor {
	return &Predictor{cfg: cfg.withDefaults(), logger: logger}
}

// Sweep evaluates every eligible object at the given instant. It checks the
// context between objects, so a long sweep can be cut short; predictions
// completed before cancellation are returned with the context error.
func (p *Predictor) Sweep(ctx context.Context, objects []tle.Object, at time.Time) ([]Prediction, error) {
	started := time.Now()
	var preds []Prediction
	var swept int
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("re-entry sweep cut short",
				slog.Int("swept", swept),
				slog.Int("total", len(objects)))
			return preds, err
		}
		if obj.TLE.PerigeeAltitude() > p.cfg.PerigeeCutKm {
			continue
		}
		swept++
		pred, ok := p.predictOne(obj, at)
		if !ok {
			continue
		}
		preds = append(preds, pred)
	}

	byStatus := make(map[string]int)
	for _, pr := range preds {
		byStatus[string(pr.Status)]++
	}
	metrics.RecordReentrySweep(time.Since(started), byStatus)
	p.logger.Info("re-entry sweep complete",
		slog.Int("eligible", swept),
		slog.Int("predicted", len(preds)),
		slog.Duration("elapsed", time.Since(started)))
	return preds, nil
}

// predictOne evaluates a single eligible object. A false return means the
// object could not be propagated for reasons other than decay.
func (p *Predictor) predictOne(obj tle.Object, at time.Time) (Prediction, bool) {
	model, err := propagation.New(obj.TLE)
	if err != nil {
		if errors.Is(err, propagation.ErrDecayed) {
			return p.alreadyDown(obj, at), true
		}
		p.logger.Debug("re-entry sweep skips object",
			slog.Int("norad_id", obj.TLE.NoradID),
			slog.String("error", err.Error()))
		return Prediction{}, false
	}

	periodMin := obj.TLE.PeriodMinutes()
	altNow, err := p.meanAltitude(model, at, periodMin)
	if err != nil {
		if errors.Is(err, propagation.ErrDecayed) {
			return p.alreadyDown(obj, at), true
		}
		p.logger.Debug("re-entry sweep skips object",
			slog.Int("norad_id", obj.TLE.NoradID),
			slog.String("error", err.Error()))
		return Prediction{}, false
	}

	altLater, err := p.meanAltitude(model, at.Add(p.cfg.LookAhead), periodMin)
	if err != nil {
		if errors.Is(err, propagation.ErrDecayed) {
			// Down inside the look-ahead: the differencing horizon bounds
			// what is left.
			return p.build(obj, at, altNow, altNow*24/p.cfg.LookAhead.Hours()), true
		}
		p.logger.Debug("re-entry sweep skips object",
			slog.Int("norad_id", obj.TLE.NoradID),
			slog.String("error", err.Error()))
		return Prediction{}, false
	}

	perDay := 24 / p.cfg.LookAhead.Hours()
	rate := (altNow - altLater) * perDay
	return p.build(obj, at, altNow, rate), true
}

// meanAltitude averages the propagated geocentric altitude over one orbital
// period starting at the given instant. Two instantaneous samples a day apart
// land at different orbit phases, where the short-period J2 radial
// oscillation (several km in LEO) would swamp real drag decay; averaging a
// full period cancels it.
func (p *Predictor) meanAltitude(model *propagation.SGP4, at time.Time, periodMin float64) (float64, error) {
	const samples = 16
	step := time.Duration(periodMin / samples * float64(time.Minute))
	if step < time.Second {
		step = time.Second
	}
	var sum float64
	for i := 0; i < samples; i++ {
		st, err := model.StateAt(at.Add(time.Duration(i) * step))
		if err != nil {
			return 0, err
		}
		sum += r3.Norm(st.Pos) - tle.EarthRadiusKm
	}
	return sum / samples, nil
}

// alreadyDown covers objects the propagator reports as decayed at the sweep
// instant itself. The decay rate is unknowable at that point, so the control
// assessment rests on metadata alone.
func (p *Predictor) alreadyDown(obj tle.Object, at time.Time) Prediction {
	pred := p.build(obj, at, 0, 0)
	pred.DaysToReentry = 0
	pred.PredictedReentry = at
	pred.Status = StatusCritical
	pred.Confidence = ConfidenceHigh
	return pred
}

func (p *Predictor) build(obj tle.Object, at time.Time, altKm, rateKmDay float64) Prediction {
	days := p.cfg.MaxDays
	if rateKmDay > 0 {
		days = altKm / rateKmDay
		if days < 0 {
			days = 0
		}
		if days > p.cfg.MaxDays {
			days = p.cfg.MaxDays
		}
	}
	return Prediction{
		NoradID:          obj.TLE.NoradID,
		Name:             obj.TLE.Name,
		AltitudeKm:       altKm,
		DecayRateKmDay:   rateKmDay,
		DaysToReentry:    days,
		PredictedReentry: at.Add(time.Duration(days * 24 * float64(time.Hour))),
		Confidence:       confidenceFor(rateKmDay),
		Status:           statusFor(days),
		Uncontrolled:     p.assessControl(obj.Meta, rateKmDay, days),
		PredictedAt:      at,
	}
}

func statusFor(days float64) Status {
	switch {
	case days <= 1:
		return StatusCritical
	case days <= 7:
		return StatusWarning
	case days <= 30:
		return StatusElevated
	default:
		return StatusNormal
	}
}

func confidenceFor(rateKmDay float64) string {
	switch {
	case rateKmDay >= 1:
		return ConfidenceHigh
	case rateKmDay >= 0.1:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// assessControl applies the uncontrolled-reentry rules: a massive object with
// nobody on record to steer it, or a decay too fast for any controlled
// disposal profile.
func (p *Predictor) assessControl(meta tle.Metadata, rateKmDay, days float64) Uncontrolled {
	var u Uncontrolled

	unattended := !meta.Controlled
	bc := meta.BallisticCoefficient()
	if unattended && bc > p.cfg.BallisticBound {
		u.IsUncontrolled = true
		u.Reasons = append(u.Reasons, "no controller on record")
		u.Reasons = append(u.Reasons,
			fmt.Sprintf("ballistic coefficient %.0f kg/m² exceeds %.0f kg/m²", bc, p.cfg.BallisticBound))
	}
	if rateKmDay > p.cfg.DecayBoundKmDay {
		u.IsUncontrolled = true
		u.Reasons = append(u.Reasons,
			fmt.Sprintf("decay rate %.2f km/day exceeds %.2f km/day", rateKmDay, p.cfg.DecayBoundKmDay))
	}

	switch {
	case u.IsUncontrolled && days <= 7:
		u.RiskLevel = "high"
	case u.IsUncontrolled:
		u.RiskLevel = "moderate"
	default:
		u.RiskLevel = "low"
	}
	return u
}
