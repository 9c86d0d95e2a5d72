package screening

import (
	"math"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

const (
	// coplanarLimitRad is the mutual inclination under which two orbits are
	// treated as sharing a plane for the phasing test.
	coplanarLimitRad = 3 * math.Pi / 180

	// maxCircularEcc bounds the eccentricity for which the mean phase angle
	// is a valid along-track coordinate.
	maxCircularEcc = 0.01

	// phaseMarginRad absorbs differential J2 drift and element staleness
	// over the window.
	phaseMarginRad = 0.02
)

// canApproach reports whether a pair could plausibly come within dKm of each
// other during the window, judged from elements alone. It must never reject
// a pair that truly can; it exists to prune the ones that cannot.
func canApproach(a, b tle.TLE, dKm float64, window time.Duration, at time.Time) bool {
	// Altitude bands: the radial gap between the higher perigee and the
	// lower apogee is a floor on the separation everywhere on the orbits.
	gap := math.Max(a.PerigeeAltitude(), b.PerigeeAltitude()) -
		math.Min(a.ApogeeAltitude(), b.ApogeeAltitude())
	if gap > dKm {
		return false
	}

	// Coplanar near-circular pairs: if the along-track phase offset cannot
	// drift closed within the window, the transverse separation alone
	// exceeds the threshold.
	if a.Eccentricity < maxCircularEcc && b.Eccentricity < maxCircularEcc &&
		mutualInclination(a, b) <= coplanarLimitRad {
		if !phaseCanClose(a, b, dKm, window, at) {
			return false
		}
	}
	return true
}

// mutualInclination is the angle between the two orbit normals, radians.
func mutualInclination(a, b tle.TLE) float64 {
	c := math.Cos(a.Inclination)*math.Cos(b.Inclination) +
		math.Sin(a.Inclination)*math.Sin(b.Inclination)*math.Cos(a.RAAN-b.RAAN)
	return math.Acos(math.Max(-1, math.Min(1, c)))
}

// phaseCanClose reports whether the along-track phase offset between two
// coplanar near-circular orbits can shrink to within dKm of arc during the
// window, given their relative mean motion.
func phaseCanClose(a, b tle.TLE, dKm float64, window time.Duration, at time.Time) bool {
	dphi := wrapPi(meanPhaseAt(a, at) - meanPhaseAt(b, at))
	nA := meanMotionRad(a)
	nB := meanMotionRad(b)

	drift := math.Abs(nA-nB)*window.Seconds() + phaseMarginRad
	sep := math.Abs(dphi)
	if sep <= drift {
		return true
	}

	// Transverse arc at the smaller orbit radius is a lower bound on miss.
	r := tle.EarthRadiusKm + math.Min(a.PerigeeAltitude(), b.PerigeeAltitude())
	return (sep-drift)*r <= dKm
}

// meanPhaseAt is the node-plus-argument-plus-anomaly longitude advanced to
// the reference instant. Well defined as a sum even where the individual
// angles degenerate (equatorial, circular).
func meanPhaseAt(rec tle.TLE, at time.Time) float64 {
	phi := rec.RAAN + rec.ArgPerigee + rec.MeanAnomaly
	phi += meanMotionRad(rec) * at.Sub(rec.Epoch).Seconds()
	return math.Mod(phi, 2*math.Pi)
}

// meanMotionRad converts rev/day to rad/s.
func meanMotionRad(rec tle.TLE) float64 {
	return rec.MeanMotion * 2 * math.Pi / 86400
}

// wrapPi maps an angle into (-pi, pi].
func wrapPi(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	switch {
	case a > math.Pi:
		a -= 2 * math.Pi
	case a <= -math.Pi:
		a += 2 * math.Pi
	}
	return a
}
