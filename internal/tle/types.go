package tle

import (
	"math"
	"time"
)

// Physical constants for element-derived geometry, km and km³/s².
const (
	EarthRadiusKm = 6378.137
	earthMu       = 398600.4418
)

// GEO reference altitude, km.
const geoAltitudeKm = 35786.0

// TLE is one parsed two-line element set. Angles are radians; mean motion
// keeps the native rev/day convention of the format. The raw lines are
// retained because the SGP4 initializer consumes them directly.
//
// A TLE is immutable once ingested; a newer element set for the same catalog
// id supersedes it as a whole.
type TLE struct {
	NoradID        int
	Name           string
	IntlDesignator string
	Classification byte

	Epoch time.Time

	Inclination  float64 // rad
	RAAN         float64 // rad
	Eccentricity float64
	ArgPerigee   float64 // rad
	MeanAnomaly  float64 // rad
	MeanMotion   float64 // rev/day

	// MeanMotionDot is the first time derivative of mean motion divided by
	// two, rev/day², as encoded in the format. MeanMotionDDot is the second
	// derivative divided by six, rev/day³.
	MeanMotionDot  float64
	MeanMotionDDot float64
	BStar          float64 // 1/earth radii

	ElementSet int
	RevNumber  int

	Line1 string
	Line2 string
}

// SemiMajorAxis returns the orbit semi-major axis in km derived from mean
// motion via Kepler's third law.
func (t TLE) SemiMajorAxis() float64 {
	n := t.MeanMotion * 2 * math.Pi / 86400.0 // rad/s
	return math.Cbrt(earthMu / (n * n))
}

// PerigeeAltitude returns the perigee height above the mean equatorial
// radius, km.
func (t TLE) PerigeeAltitude() float64 {
	return t.SemiMajorAxis()*(1-t.Eccentricity) - EarthRadiusKm
}

// ApogeeAltitude returns the apogee height above the mean equatorial
// radius, km.
func (t TLE) ApogeeAltitude() float64 {
	return t.SemiMajorAxis()*(1+t.Eccentricity) - EarthRadiusKm
}

// PeriodMinutes returns the orbital period in minutes.
func (t TLE) PeriodMinutes() float64 {
	if t.MeanMotion <= 0 {
		return math.Inf(1)
	}
	return 1440.0 / t.MeanMotion
}

// DeepSpace reports whether the propagator will run the deep-space (SDP4)
// branch for this element set: orbital period of 225 minutes or more.
func (t TLE) DeepSpace() bool {
	return t.PeriodMinutes() >= 225.0
}

// Metadata carries per-object facts that do not come from element sets.
// Zero values mean unknown.
type Metadata struct {
	MassKg     float64 `json:"mass_kg" yaml:"mass_kg"`
	AreaM2     float64 `json:"area_m2" yaml:"area_m2"`
	Operator   string  `json:"operator" yaml:"operator"`
	Controlled bool    `json:"controlled" yaml:"controlled"`
}

// BallisticCoefficient returns mass-to-area ratio in kg/m², or 0 when either
// component is unknown.
func (m Metadata) BallisticCoefficient() float64 {
	if m.MassKg <= 0 || m.AreaM2 <= 0 {
		return 0
	}
	return m.MassKg / m.AreaM2
}

// Object is one catalog entry: the current TLE, sidecar metadata, and
// supersession bookkeeping.
type Object struct {
	TLE        TLE
	Meta       Metadata
	UpdatedAt  time.Time
	Superseded int // how many earlier element sets this id has replaced
}

// Regime buckets the catalog by altitude band.
type Regime string

const (
	RegimeLEO   Regime = "leo"
	RegimeMEO   Regime = "meo"
	RegimeGEO   Regime = "geo"
	RegimeOther Regime = "other"
)

// ClassifyRegime assigns one regime per object. GEO wins when the mean
// altitude is within ±200 km of the geostationary radius and inclination is
// at most 15°; otherwise perigee altitude decides LEO (≤2000 km) versus MEO
// (≤ GEO altitude); anything higher is Other.
func ClassifyRegime(t TLE) Regime {
	meanAlt := t.SemiMajorAxis() - EarthRadiusKm
	if math.Abs(meanAlt-geoAltitudeKm) <= 200 && t.Inclination <= 15*math.Pi/180 {
		return RegimeGEO
	}
	perigee := t.PerigeeAltitude()
	switch {
	case perigee <= 2000:
		return RegimeLEO
	case perigee <= geoAltitudeKm:
		return RegimeMEO
	default:
		return RegimeOther
	}
}

// EpochRange is the minimum and maximum element-set epoch in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// DatasetInfo describes the provenance of the current catalog contents.
type DatasetInfo struct {
	Source     string
	FetchedAt  time.Time
	Count      int
	EpochRange EpochRange
}

// Stats is the catalog census returned by Catalog.Stats.
type Stats struct {
	Total      int        `json:"total"`
	LEO        int        `json:"leo"`
	MEO        int        `json:"meo"`
	GEO        int        `json:"geo"`
	Other      int        `json:"other"`
	DeepSpace  int        `json:"deep_space"`
	EpochRange EpochRange `json:"-"`
}
