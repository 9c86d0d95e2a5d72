package transform

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RTNBasis returns the radial/tangential/normal unit vectors for an orbital
// state (position and velocity in an Earth-centered inertial frame). R points
// from Earth's center through the object, N along the orbital angular
// momentum, and T completes the right-handed triad (along-track for a
// near-circular orbit).
func RTNBasis(pos, vel r3.Vec) (radial, tangential, normal r3.Vec) {
	radial = r3.Unit(pos)
	normal = r3.Unit(r3.Cross(pos, vel))
	tangential = r3.Cross(normal, radial)
	return radial, tangential, normal
}

// rtnMatrix builds the rotation matrix whose rows are the RTN basis vectors of
// (pos, vel): x_rtn = M · x_inertial.
func rtnMatrix(pos, vel r3.Vec) *mat.Dense {
	rHat, tHat, nHat := RTNBasis(pos, vel)
	return mat.NewDense(3, 3, []float64{
		rHat.X, rHat.Y, rHat.Z,
		tHat.X, tHat.Y, tHat.Z,
		nHat.X, nHat.Y, nHat.Z,
	})
}

// RTNToInertial rotates a covariance expressed in the RTN frame of the state
// (pos, vel) into the inertial frame: C_eci = Mᵀ · C_rtn · M.
func RTNToInertial(c *mat.SymDense, pos, vel r3.Vec) *mat.SymDense {
	m := rtnMatrix(pos, vel)
	var cm, out mat.Dense
	cm.Mul(c, m)
	out.Mul(m.T(), &cm)
	return symmetrize(&out)
}

// InertialToRTN rotates an inertial covariance into the RTN frame of the state
// (pos, vel): C_rtn = M · C_eci · Mᵀ.
func InertialToRTN(c *mat.SymDense, pos, vel r3.Vec) *mat.SymDense {
	m := rtnMatrix(pos, vel)
	var cmt, out mat.Dense
	cmt.Mul(c, m.T())
	out.Mul(m, &cmt)
	return symmetrize(&out)
}

// symmetrize copies a numerically near-symmetric 3x3 product into a SymDense,
// averaging off-diagonal roundoff.
func symmetrize(d *mat.Dense) *mat.SymDense {
	s := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			s.SetSym(i, j, 0.5*(d.At(i, j)+d.At(j, i)))
		}
	}
	return s
}
