package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go port of Vallado's SGP4/SDP4 with explicit TEME output. The library
// switches to the deep-space SDP4 corrections automatically for periods of
// 225 minutes and up, so one wrapper covers LEO through GEO.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes set during
// propagation are not visible to the caller. Failures are detected instead by
// checking the output for NaN/Inf and implausible position magnitudes.

const (
	// decayRadiusKm is Earth radius plus the 80 km altitude floor under which
	// an orbit cannot persist.
	decayRadiusKm = tle.EarthRadiusKm + 80.0

	// maxSaneRadiusKm bounds positions the model can be trusted to produce.
	// Anything past lunar distance is numerical garbage, not an orbit.
	maxSaneRadiusKm = 1.0e6
)

// SGP4 propagates a single element set. Values are immutable after New and
// safe for concurrent use.
type SGP4 struct {
	sat     satellite.Satellite
	noradID int
}

// New initializes the SGP4/SDP4 model from a catalog record.
//
// Lines are pre-checked before reaching the library, because go-satellite
// calls log.Fatal on malformed input.
func New(rec tle.TLE) (*SGP4, error) {
	if err := precheckLines(rec.Line1, rec.Line2); err != nil {
		return nil, fmt.Errorf("object %d: %w", rec.NoradID, err)
	}

	sat := satellite.TLEToSat(rec.Line1, rec.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, initError(rec.NoradID, int(sat.Error), sat.ErrorStr)
	}
	return &SGP4{sat: sat, noradID: rec.NoradID}, nil
}

// precheckLines rejects lines that would crash the underlying library.
func precheckLines(line1, line2 string) error {
	line1 = strings.TrimRight(line1, "\r\n")
	line2 = strings.TrimRight(line2, "\r\n")

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got %q", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got %q", line2[0])
	}
	return nil
}

// StateAt propagates to the given instant, truncated to a whole UTC second.
// Position and velocity are in TEME, km and km/s.
func (s *SGP4) StateAt(at time.Time) (StateVector, error) {
	t := at.UTC().Truncate(time.Second)
	pos, vel := satellite.Propagate(s.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if err := checkState(s.noradID, pos, vel); err != nil {
		return StateVector{}, err
	}

	return StateVector{
		NoradID: s.noradID,
		Pos:     r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Vel:     r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
		At:      t,
	}, nil
}

// NoradID returns the catalog id the model was built from.
func (s *SGP4) NoradID() int { return s.noradID }

// checkState classifies raw model output into the package error taxonomy.
func checkState(noradID int, pos, vel satellite.Vector3) error {
	for _, v := range [6]float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("object %d: output is NaN/Inf: %w", noradID, ErrNumericalDivergence)
		}
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < decayRadiusKm {
		return fmt.Errorf("object %d: radius %.1f km below decay floor: %w", noradID, mag, ErrDecayed)
	}
	if mag > maxSaneRadiusKm {
		return fmt.Errorf("object %d: radius %.1f km: %w", noradID, mag, ErrNumericalDivergence)
	}
	return nil
}

// Propagate is a convenience for one-shot use: initialize the model from rec
// and evaluate it at a single instant.
func Propagate(rec tle.TLE, at time.Time) (StateVector, error) {
	s, err := New(rec)
	if err != nil {
		return StateVector{}, err
	}
	return s.StateAt(at)
}
