package screening

import "math"

// distFunc evaluates the inter-object distance at an offset in whole seconds
// from the window start. Implementations return +Inf when propagation fails
// at that instant.
type distFunc func(sec int64) float64

// memoized caches evaluations; the golden-section probes and the final sweep
// overlap heavily and each evaluation costs two propagations.
func memoized(f distFunc) distFunc {
	cache := make(map[int64]float64)
	return func(sec int64) float64 {
		if d, ok := cache[sec]; ok {
			return d
		}
		d := f(sec)
		cache[sec] = d
		return d
	}
}

// sweepRadiusSec bounds the exhaustive lattice sweep around the converged
// minimum. The sweep guarantees no whole-second instant near the reported
// TCA has a smaller distance, and breaks equal-distance ties toward the
// earlier instant.
const sweepRadiusSec = 60

// minimizeLattice finds the whole-second argmin of f within [lo, hi] by
// golden-section search, then sweeps the surrounding lattice clamped to
// [clampLo, clampHi]. Returns the earliest second achieving the minimum.
func minimizeLattice(f distFunc, lo, hi, clampLo, clampHi int64) (int64, float64) {
	const invPhi = 0.6180339887498949

	a, b := lo, hi
	if a > b {
		a, b = b, a
	}

	if b-a > 3 {
		x1 := b - int64(math.Round(float64(b-a)*invPhi))
		x2 := a + int64(math.Round(float64(b-a)*invPhi))
		f1, f2 := f(x1), f(x2)
		for b-a > 3 && a < x1 && x1 < x2 && x2 < b {
			if f1 <= f2 {
				b = x2
				x2, f2 = x1, f1
				x1 = b - int64(math.Round(float64(b-a)*invPhi))
				f1 = f(x1)
			} else {
				a = x1
				x1, f1 = x2, f2
				x2 = a + int64(math.Round(float64(b-a)*invPhi))
				f2 = f(x2)
			}
		}
	}

	// Converged interval plus safety sweep, scanned ascending so ties keep
	// the earliest instant.
	sweepLo := a - sweepRadiusSec
	sweepHi := b + sweepRadiusSec
	if sweepLo < clampLo {
		sweepLo = clampLo
	}
	if sweepHi > clampHi {
		sweepHi = clampHi
	}

	best, bestD := int64(-1), math.Inf(1)
	for t := sweepLo; t <= sweepHi; t++ {
		if d := f(t); d < bestD {
			best, bestD = t, d
		}
	}
	return best, bestD
}

// bracketMinima returns the indices of local minima of the sampled distance
// series, plateau-aware: a run of equal values bounded by larger neighbors
// counts once, at its first index. Window endpoints count when their only
// neighbor is larger.
func bracketMinima(ds []float64) []int {
	n := len(ds)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []int{0}
	}

	var minima []int
	for k := 0; k < n; {
		end := k + 1
		for end < n && ds[end] == ds[k] {
			end++
		}
		leftHigher := k == 0 || ds[k-1] > ds[k]
		rightHigher := end == n || ds[end] > ds[k]
		if leftHigher && rightHigher {
			minima = append(minima, k)
		}
		k = end
	}
	return minima
}
