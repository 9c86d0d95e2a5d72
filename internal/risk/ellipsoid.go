package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// semiAxesRTN returns the 1σ semi-axes of a covariance ellipsoid expressed in
// the RTN frame, reported in radial/tangential/normal slot order. Each
// eigen-axis claims the frame axis it is most aligned with, largest
// eigenvalue first, so near-degenerate pairs resolve toward the dominant
// direction.
func semiAxesRTN(cRTN *mat.SymDense) [3]float64 {
	var eig mat.EigenSym
	if !eig.Factorize(cRTN, true) {
		// Factorization only fails on pathological input; the diagonal is
		// still a usable summary.
		return [3]float64{
			sqrtNonNeg(cRTN.At(0, 0)),
			sqrtNonNeg(cRTN.At(1, 1)),
			sqrtNonNeg(cRTN.At(2, 2)),
		}
	}
	vals := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	var axes [3]float64
	var taken [3]bool
	for k := 2; k >= 0; k-- {
		slot, best := 0, -1.0
		for j := 0; j < 3; j++ {
			if taken[j] {
				continue
			}
			if a := math.Abs(vecs.At(j, k)); a > best {
				slot, best = j, a
			}
		}
		taken[slot] = true
		axes[slot] = sqrtNonNeg(vals[k])
	}
	return axes
}

func sqrtNonNeg(x float64) float64 {
	if x <= 0 || math.IsNaN(x) {
		return 0
	}
	return math.Sqrt(x)
}
