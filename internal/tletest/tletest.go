// Package tletest synthesizes syntactically valid two-line element sets for
// tests: correct column layout, encoded checksums, and chosen orbital
// geometry. It builds raw lines only and has no dependency on the parser or
// propagator packages, so any package's tests may use it.
package tletest

import (
	"fmt"
	"math"
	"time"
)

// Earth constants mirroring the values used for element-derived geometry.
const (
	EarthRadiusKm = 6378.137
	earthMu       = 398600.4418
)

// Elements chooses the orbital geometry of a synthesized record. Angles in
// degrees, matching the wire format.
type Elements struct {
	NoradID        int
	Epoch          time.Time
	InclinationDeg float64
	RAANDeg        float64
	Eccentricity   float64
	ArgPerigeeDeg  float64
	MeanAnomalyDeg float64
	MeanMotion     float64 // rev/day
	BStar          float64
}

// Lines renders the element set as two checksummed 69-column lines.
func Lines(e Elements) (line1, line2 string) {
	yy := e.Epoch.Year() % 100
	doy := float64(e.Epoch.YearDay()) +
		(float64(e.Epoch.Hour())*3600+
			float64(e.Epoch.Minute())*60+
			float64(e.Epoch.Second())+
			float64(e.Epoch.Nanosecond())/1e9)/86400.0

	l1 := fmt.Sprintf("1 %05dU 24001A   %02d%012.8f  .00000000  00000-0 %s 0 %4d",
		e.NoradID, yy, doy, assumedDecimal(e.BStar), 999)
	l2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		e.NoradID,
		e.InclinationDeg,
		e.RAANDeg,
		int(math.Round(e.Eccentricity*1e7)),
		e.ArgPerigeeDeg,
		e.MeanAnomalyDeg,
		e.MeanMotion,
		1)

	return withChecksum(l1), withChecksum(l2)
}

// CircularMeanMotion returns the rev/day mean motion of a circular orbit at
// the given altitude (km above the equatorial radius).
func CircularMeanMotion(altitudeKm float64) float64 {
	a := EarthRadiusKm + altitudeKm
	periodSec := 2 * math.Pi * math.Sqrt(a*a*a/earthMu)
	return 86400.0 / periodSec
}

// Circular builds the elements of a circular orbit at the given altitude.
// Render with Lines, or adjust fields first.
func Circular(noradID int, epoch time.Time, altitudeKm, incDeg, raanDeg, maDeg float64) Elements {
	return Elements{
		NoradID:        noradID,
		Epoch:          epoch,
		InclinationDeg: incDeg,
		RAANDeg:        raanDeg,
		Eccentricity:   0,
		ArgPerigeeDeg:  0,
		MeanAnomalyDeg: maDeg,
		MeanMotion:     CircularMeanMotion(altitudeKm),
	}
}

// checksum computes the modulus-10 line checksum: digits count their value,
// minus signs count one.
func checksum(line string) int {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func withChecksum(line68 string) string {
	if len(line68) != 68 {
		panic(fmt.Sprintf("tletest: line has %d columns before checksum, want 68: %q", len(line68), line68))
	}
	return fmt.Sprintf("%s%d", line68, checksum(line68))
}

// assumedDecimal renders a float in the format's ±mmmmm±e notation with an
// implied leading decimal point on the mantissa.
func assumedDecimal(v float64) string {
	if v == 0 {
		return " 00000-0"
	}
	sign := " "
	if v < 0 {
		sign = "-"
		v = -v
	}
	exp := int(math.Floor(math.Log10(v))) + 1
	mant := int(math.Round(v / math.Pow(10, float64(exp)) * 1e5))
	if mant >= 1e5 { // rounding carried over, e.g. 0.99999951
		mant /= 10
		exp++
	}
	expSign := "+"
	if exp < 0 {
		expSign = "-"
		exp = -exp
	}
	return fmt.Sprintf("%s%05d%s%d", sign, mant, expSign, exp)
}
