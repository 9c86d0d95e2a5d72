package risk

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// quadNodes is the Gauss-Legendre node count per axis of the polar Pc
// integral. 48 nodes holds the quadrature error orders of magnitude below the
// 5% accuracy contract, including hard-body disks far smaller than the
// covariance.
const quadNodes = 48

// gaussianDiskProbability integrates a bivariate Gaussian with mean (mx, my)
// and covariance [sxx sxy; sxy syy] over a disk of the given radius centered
// at the origin. Degenerate covariances and non-positive radii yield zero.
func gaussianDiskProbability(mx, my, sxx, syy, sxy, radius float64) float64 {
	if radius <= 0 || sxx <= 0 || syy <= 0 {
		return 0
	}
	det := sxx*syy - sxy*sxy
	if det <= 0 || math.IsNaN(det) {
		return 0
	}
	ixx := syy / det
	iyy := sxx / det
	ixy := -sxy / det
	norm := 1 / (2 * math.Pi * math.Sqrt(det))

	outer := func(rho float64) float64 {
		inner := func(theta float64) float64 {
			dx := rho*math.Cos(theta) - mx
			dy := rho*math.Sin(theta) - my
			return math.Exp(-0.5 * (ixx*dx*dx + iyy*dy*dy + 2*ixy*dx*dy))
		}
		return rho * quad.Fixed(inner, 0, 2*math.Pi, quadNodes, nil, 0)
	}
	return clamp01(norm * quad.Fixed(outer, 0, radius, quadNodes, nil, 0))
}
