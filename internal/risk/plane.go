package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// conjunctionPlane returns an orthonormal basis (e1, e2) for the plane
// perpendicular to the relative velocity, with e1 along the in-plane
// component of the relative position. The projected miss vector is then
// (missPlane, 0) by construction.
func conjunctionPlane(dr, dv r3.Vec) (e1, e2 r3.Vec, missPlane float64) {
	if r3.Norm(dv) == 0 {
		// No relative motion: any plane through dr works. Only degenerate
		// inputs reach this.
		dv = r3.Vec{Z: 1}
	}
	yHat := r3.Unit(dv)

	perp := r3.Sub(dr, r3.Scale(r3.Dot(dr, yHat), yHat))
	missPlane = r3.Norm(perp)
	if missPlane < 1e-12 {
		e1 = perpUnit(yHat)
	} else {
		e1 = r3.Unit(perp)
	}
	e2 = r3.Cross(yHat, e1)
	return e1, e2, missPlane
}

// perpUnit returns a unit vector perpendicular to v, seeded from the axis v
// is least aligned with.
func perpUnit(v r3.Vec) r3.Vec {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	seed := r3.Vec{Z: 1}
	switch {
	case ax <= ay && ax <= az:
		seed = r3.Vec{X: 1}
	case ay <= az:
		seed = r3.Vec{Y: 1}
	}
	return r3.Unit(r3.Cross(v, seed))
}

// projectPlane reduces a 3×3 inertial covariance to the 2×2 covariance of the
// conjunction-plane coordinates.
func projectPlane(c *mat.SymDense, e1, e2 r3.Vec) (sxx, syy, sxy float64) {
	quadForm := func(u, v r3.Vec) float64 {
		uc := [3]float64{u.X, u.Y, u.Z}
		vc := [3]float64{v.X, v.Y, v.Z}
		var s float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				s += uc[i] * c.At(i, j) * vc[j]
			}
		}
		return s
	}
	return quadForm(e1, e1), quadForm(e2, e2), quadForm(e1, e2)
}
