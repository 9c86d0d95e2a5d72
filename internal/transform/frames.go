// Package transform provides coordinate frame transformations for satellite
// state vectors.
//
// SGP4 outputs states in TEME (True Equator Mean Equinox). The screening and
// risk pipeline works in TEME/ECI; ECEF and geodetic coordinates are derived
// only where ground-relative quantities are needed (re-entry ground track,
// altitude above the ellipsoid).
//
// Method: Vallado-style rotations. TEME → ECEF uses GMST only (TEME → PEF ≈
// ECEF), ignoring polar motion, which introduces ~50 m error at most —
// acceptable for an advisory screening system. TEME → ECI rotates by the
// equation of the equinoxes to the true-of-date equinox.
//
// Units are km and km/s throughout; angles are radians. Degrees appear only at
// the API boundary.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// StateECEF is a position/velocity pair in the Earth-fixed frame, km and km/s.
type StateECEF struct {
	Pos r3.Vec
	Vel r3.Vec
}

// StateECI is a position/velocity pair in the true-of-date inertial frame,
// km and km/s.
type StateECI struct {
	Pos r3.Vec
	Vel r3.Vec
}

// rotZ rotates vector v about the Z axis by angle theta (frame rotation,
// R3(theta) in Vallado's notation).
func rotZ(v r3.Vec, theta float64) r3.Vec {
	c := math.Cos(theta)
	s := math.Sin(theta)
	return r3.Vec{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// TEMEToECI converts a TEME state to the true-of-date inertial frame by
// rotating about Z through the equation of the equinoxes.
func TEMEToECI(pos, vel r3.Vec, t time.Time) StateECI {
	eqe := EquationOfEquinoxes(t)
	return StateECI{
		Pos: rotZ(pos, -eqe),
		Vel: rotZ(vel, -eqe),
	}
}

// ECIToTEME is the inverse of TEMEToECI.
func ECIToTEME(s StateECI, t time.Time) (pos, vel r3.Vec) {
	eqe := EquationOfEquinoxes(t)
	return rotZ(s.Pos, eqe), rotZ(s.Vel, eqe)
}

// TEMEToECEF transforms a TEME position/velocity (km, km/s) to ECEF at the
// given UTC time.
func TEMEToECEF(pos, vel r3.Vec, t time.Time) StateECEF {
	return TEMEToECEFWithGMST(pos, vel, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to ECEF using a precomputed GMST angle
// (radians). Useful when transforming many satellites at the same instant
// (compute GMST once).
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
//
// where R3(θ) is a rotation about the Z-axis by GMST and ω = [0, 0, ω_earth]
// is Earth's angular velocity vector.
func TEMEToECEFWithGMST(pos, vel r3.Vec, gmst float64) StateECEF {
	rECEF := rotZ(pos, gmst)
	vRot := rotZ(vel, gmst)

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	return StateECEF{
		Pos: rECEF,
		Vel: r3.Vec{
			X: vRot.X + OmegaEarth*rECEF.Y,
			Y: vRot.Y - OmegaEarth*rECEF.X,
			Z: vRot.Z,
		},
	}
}

// Plausible geocentric distance bounds for a tracked object, km. Below the
// floor the object is inside the atmosphere; above the ceiling it is beyond
// any cataloged Earth orbit.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

// ValidPosition reports whether a geocentric position (km, any Earth-centered
// frame) is finite and within the plausible orbital shell.
func ValidPosition(pos r3.Vec) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return false
	}
	if math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}
	mag := r3.Norm(pos)
	return mag >= MinOrbitRadiusKm && mag <= MaxOrbitRadiusKm
}
