package risk

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/transform"
)

// covarianceRow is the 1σ RTN position uncertainty for one altitude regime:
// a base value at epoch plus linear growth per day of element-set age, km.
// Tangential dominates because along-track error is where TLE accuracy decays
// fastest.
type covarianceRow struct {
	base   [3]float64
	perDay [3]float64
}

// The heuristic covariance table. Rows grow with altitude class: higher
// regimes see sparser tracking and looser element sets.
var covarianceTable = map[tle.Regime]covarianceRow{
	tle.RegimeLEO: {
		base:   [3]float64{0.6, 1.8, 0.6},
		perDay: [3]float64{0.10, 0.50, 0.10},
	},
	tle.RegimeMEO: {
		base:   [3]float64{1.2, 3.6, 1.2},
		perDay: [3]float64{0.25, 1.00, 0.25},
	},
	tle.RegimeGEO: {
		base:   [3]float64{2.0, 6.0, 2.0},
		perDay: [3]float64{0.40, 1.50, 0.40},
	},
}

// rowFor maps a regime to its covariance row. Anything outside the three main
// bands shares the GEO row, the loosest class.
func rowFor(reg tle.Regime) covarianceRow {
	if row, ok := covarianceTable[reg]; ok {
		return row
	}
	return covarianceTable[tle.RegimeGEO]
}

// sigmaRTN returns the 1σ RTN uncertainties of an element set evaluated at
// the given instant. Ages before the epoch clamp to zero rather than
// shrinking the uncertainty.
func sigmaRTN(rec tle.TLE, at time.Time) [3]float64 {
	ageDays := at.Sub(rec.Epoch).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	row := rowFor(tle.ClassifyRegime(rec))
	var s [3]float64
	for i := range s {
		s[i] = row.base[i] + row.perDay[i]*ageDays
	}
	return s
}

// positionCovariance builds one object's inertial-frame 3×3 position
// covariance at the state's instant: diagonal in the object's own RTN frame,
// rotated by the state's basis.
func positionCovariance(rec tle.TLE, st propagation.StateVector) *mat.SymDense {
	s := sigmaRTN(rec, st.At)
	c := mat.NewSymDense(3, nil)
	for i, sig := range s {
		c.SetSym(i, i, sig*sig)
	}
	return transform.RTNToInertial(c, st.Pos, st.Vel)
}

func addSym(a, b *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			out.SetSym(i, j, a.At(i, j)+b.At(i, j))
		}
	}
	return out
}
