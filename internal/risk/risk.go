// Package risk turns refined conjunction events into collision-probability
// assessments and tiered ratings.
//
// The engine is pure: every assessment is a function of the event geometry,
// the two element sets, and static configuration. It retains nothing between
// calls. Position covariances are heuristic, seeded per altitude regime and
// grown linearly with element-set age, which tracks how TLE accuracy degrades
// without pretending to a fitted model.
package risk

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/transform"
)

// Tier labels how urgently a conjunction needs eyes on it.
type Tier string

const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Rank orders tiers for supersession comparisons. Unknown strings rank below
// every defined tier.
func (t Tier) Rank() int {
	switch t {
	case TierCritical:
		return 3
	case TierHigh:
		return 2
	case TierModerate:
		return 1
	case TierLow:
		return 0
	default:
		return -1
	}
}

// Tier cutoffs. A conjunction earns a tier when either the collision
// probability or the raw miss distance crosses the line.
const (
	pcCritical = 1e-3
	pcHigh     = 1e-4
	pcModerate = 1e-5

	missCriticalKm = 0.1
	missHighKm     = 1.0
	missModerateKm = 5.0
)

func tierFor(pc, missKm float64) Tier {
	switch {
	case pc >= pcCritical || missKm <= missCriticalKm:
		return TierCritical
	case pc >= pcHigh || missKm <= missHighKm:
		return TierHigh
	case pc >= pcModerate || missKm <= missModerateKm:
		return TierModerate
	default:
		return TierLow
	}
}

// Config holds the engine's tunables.
type Config struct {
	// DefaultHardBodyRadiusM is the per-object hard-body radius. A fixed
	// envelope rather than a catalog-derived cross section: the disk bounds
	// the structure plus appendages, not the radar return.
	DefaultHardBodyRadiusM float64
}

// DefaultConfig returns the stock configuration: 5 m hard-body radius per
// object.
func DefaultConfig() Config {
	return Config{DefaultHardBodyRadiusM: 5}
}

// Assessment is a rated conjunction: the screening event plus probability,
// tier, and the combined uncertainty ellipsoid. Embedding keeps the event
// fields flat in the JSON form.
type Assessment struct {
	screening.Conjunction

	Pc                 float64    `json:"collision_probability"`
	Tier               Tier       `json:"risk_tier"`
	CombinedHardBodyKm float64    `json:"combined_hard_body_km"`
	Sigma1RTN          [3]float64 `json:"ellipsoid_1sigma_km"`
	Sigma3RTN          [3]float64 `json:"ellipsoid_3sigma_km"`
}

// Engine rates conjunctions. Safe for concurrent use; it holds only
// configuration.
type Engine struct {
	cfg Config
}

// NewEngine builds an engine, filling unset config fields with defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.DefaultHardBodyRadiusM <= 0 {
		cfg.DefaultHardBodyRadiusM = DefaultConfig().DefaultHardBodyRadiusM
	}
	return &Engine{cfg: cfg}
}

// Assess rates one refined conjunction. The event must carry both TCA state
// vectors; a and b are the catalog entries the event was screened from, in
// the event's id order.
func (e *Engine) Assess(ev screening.Conjunction, a, b tle.Object) Assessment {
	dr := r3.Sub(ev.StateB.Pos, ev.StateA.Pos)
	dv := r3.Sub(ev.StateB.Vel, ev.StateA.Vel)

	covA := positionCovariance(a.TLE, ev.StateA)
	covB := positionCovariance(b.TLE, ev.StateB)
	combined := addSym(covA, covB)

	e1, e2, missPlane := conjunctionPlane(dr, dv)
	sxx, syy, sxy := projectPlane(combined, e1, e2)

	radiusKm := 2 * e.cfg.DefaultHardBodyRadiusM / 1000
	pc := gaussianDiskProbability(missPlane, 0, sxx, syy, sxy, radiusKm)
	if ev.MissKm <= radiusKm {
		// Nominal hit: the best-estimate trajectories overlap the combined
		// hard body. The geometric bound 1 - d/2R holds no matter how diffuse
		// the covariance says the encounter is.
		if floor := 1 - ev.MissKm/(2*radiusKm); floor > pc {
			pc = clamp01(floor)
		}
	}

	// The ellipsoid is reported in the RTN frame of the lower-id object.
	rtn := transform.InertialToRTN(combined, ev.StateA.Pos, ev.StateA.Vel)
	one := semiAxesRTN(rtn)

	return Assessment{
		Conjunction:        ev,
		Pc:                 pc,
		Tier:               tierFor(pc, ev.MissKm),
		CombinedHardBodyKm: radiusKm,
		Sigma1RTN:          one,
		Sigma3RTN:          [3]float64{3 * one[0], 3 * one[1], 3 * one[2]},
	}
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
