// Package screening performs the all-pairs close-approach scan: a coarse pass
// over the propagation window with an orbital pre-filter and spatial hashing,
// followed by per-pair bracketing of distance minima and golden-section
// refinement of the time of closest approach.
package screening

import (
	"fmt"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
)

// Conjunction is one refined close-approach event between a pair of catalog
// objects. IDA is always the smaller catalog id. Events are immutable once
// emitted; a later scan may supersede one via the same fingerprint.
type Conjunction struct {
	IDA         int       `json:"id_a"`
	IDB         int       `json:"id_b"`
	TCA         time.Time `json:"tca"`
	MissKm      float64   `json:"miss_distance_km"`
	RelSpeedKmS float64   `json:"relative_velocity_km_s"`
	CreatedAt   time.Time `json:"created_at"`

	// Full states at TCA for the risk stage, not serialized.
	StateA propagation.StateVector `json:"-"`
	StateB propagation.StateVector `json:"-"`
}

// Fingerprint identifies the approach independent of refinement jitter:
// both ids plus the TCA floored to a whole minute.
func (c Conjunction) Fingerprint() string {
	return fmt.Sprintf("%d:%d:%d", c.IDA, c.IDB, c.TCA.Unix()/60)
}

// Config controls one scan.
type Config struct {
	Window           time.Duration // forward screening window, default 72 h
	CoarseStep       time.Duration // coarse sampling interval, default 5 min
	ThresholdKm      float64       // emission threshold D, default 10 km
	RelSpeedBoundKmS float64       // pads hash cells for inter-sample motion, default 16
	Workers          int           // parallel refinement width, default NumCPU
}

// DefaultConfig returns the screening defaults.
func DefaultConfig() Config {
	return Config{
		Window:           72 * time.Hour,
		CoarseStep:       5 * time.Minute,
		ThresholdKm:      10,
		RelSpeedBoundKmS: 16,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.CoarseStep < time.Second {
		c.CoarseStep = d.CoarseStep
	}
	if c.Window < c.CoarseStep {
		c.Window = c.CoarseStep
	}
	if c.ThresholdKm <= 0 {
		c.ThresholdKm = d.ThresholdKm
	}
	if c.RelSpeedBoundKmS <= 0 {
		c.RelSpeedBoundKmS = d.RelSpeedBoundKmS
	}
	return c
}

// Stats summarizes one scan for logging, metrics, and the API.
type Stats struct {
	Objects           int           `json:"objects"`
	Excluded          int           `json:"excluded"`
	Steps             int           `json:"steps"`
	GridPairs         int           `json:"grid_pairs"`
	Candidates        int           `json:"candidates"`
	PrefilterRejected int           `json:"prefilter_rejected"`
	Refined           int           `json:"refined"`
	Emitted           int           `json:"emitted"`
	Partial           bool          `json:"partial"`
	Elapsed           time.Duration `json:"-"`
	ElapsedMs         int64         `json:"elapsed_ms"`
}
