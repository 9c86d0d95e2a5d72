package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const lineLen = 69

// Checksum computes the modulus-10 checksum of the first 68 columns of a TLE
// line: digits count their value, minus signs count one, everything else
// counts zero.
func Checksum(line string) int {
	sum := 0
	n := len(line)
	if n > lineLen-1 {
		n = lineLen - 1
	}
	for _, c := range line[:n] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// verifyChecksum validates length and the trailing checksum digit.
func verifyChecksum(line string, which int) error {
	if len(line) != lineLen {
		return malformedf("line %d has %d columns, want %d", which, len(line), lineLen)
	}
	last := line[lineLen-1]
	if last < '0' || last > '9' {
		return malformedf("line %d checksum column is %q", which, last)
	}
	if got, want := Checksum(line), int(last-'0'); got != want {
		return malformedf("line %d checksum mismatch: computed %d, encoded %d", which, got, want)
	}
	return nil
}

// ParseLines strictly parses a single element set from its two lines plus an
// optional name line. It validates checksums, line structure, and physical
// field ranges, returning ErrMalformed-wrapped errors on any violation.
func ParseLines(name, line1, line2 string) (TLE, error) {
	if !strings.HasPrefix(line1, "1 ") {
		return TLE{}, malformedf("line 1 does not start with %q", "1 ")
	}
	if !strings.HasPrefix(line2, "2 ") {
		return TLE{}, malformedf("line 2 does not start with %q", "2 ")
	}
	if err := verifyChecksum(line1, 1); err != nil {
		return TLE{}, err
	}
	if err := verifyChecksum(line2, 2); err != nil {
		return TLE{}, err
	}

	id1, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return TLE{}, malformedf("catalog number on line 1: %v", err)
	}
	id2, err := strconv.Atoi(strings.TrimSpace(line2[2:7]))
	if err != nil {
		return TLE{}, malformedf("catalog number on line 2: %v", err)
	}
	if id1 != id2 {
		return TLE{}, malformedf("catalog number differs between lines: %d vs %d", id1, id2)
	}
	if id1 <= 0 {
		return TLE{}, malformedf("catalog number %d out of range", id1)
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return TLE{}, malformedf("epoch: %v", err)
	}

	ndot, err := parseSignedFloat(line1[33:43])
	if err != nil {
		return TLE{}, malformedf("mean motion derivative: %v", err)
	}
	nddot, err := parseAssumedDecimal(line1[44:52])
	if err != nil {
		return TLE{}, malformedf("mean motion second derivative: %v", err)
	}
	bstar, err := parseAssumedDecimal(line1[53:61])
	if err != nil {
		return TLE{}, malformedf("B*: %v", err)
	}
	elset, err := parseOptionalInt(line1[64:68])
	if err != nil {
		return TLE{}, malformedf("element set number: %v", err)
	}

	incDeg, err := parseSignedFloat(line2[8:16])
	if err != nil {
		return TLE{}, malformedf("inclination: %v", err)
	}
	raanDeg, err := parseSignedFloat(line2[17:25])
	if err != nil {
		return TLE{}, malformedf("RAAN: %v", err)
	}
	ecc, err := parseImpliedPointDecimal(line2[26:33])
	if err != nil {
		return TLE{}, malformedf("eccentricity: %v", err)
	}
	argpDeg, err := parseSignedFloat(line2[34:42])
	if err != nil {
		return TLE{}, malformedf("argument of perigee: %v", err)
	}
	maDeg, err := parseSignedFloat(line2[43:51])
	if err != nil {
		return TLE{}, malformedf("mean anomaly: %v", err)
	}
	meanMotion, err := parseSignedFloat(line2[52:63])
	if err != nil {
		return TLE{}, malformedf("mean motion: %v", err)
	}
	rev, err := parseOptionalInt(line2[63:68])
	if err != nil {
		return TLE{}, malformedf("revolution number: %v", err)
	}

	// Physical range checks.
	if ecc < 0 || ecc >= 1 {
		return TLE{}, malformedf("eccentricity %g outside [0,1)", ecc)
	}
	if incDeg < 0 || incDeg > 180 {
		return TLE{}, malformedf("inclination %g° outside [0,180]", incDeg)
	}
	if raanDeg < 0 || raanDeg > 360 || argpDeg < 0 || argpDeg > 360 || maDeg < 0 || maDeg > 360 {
		return TLE{}, malformedf("angular element outside [0,360]°: raan=%g argp=%g ma=%g", raanDeg, argpDeg, maDeg)
	}
	if meanMotion <= 0 || meanMotion > 20 {
		return TLE{}, malformedf("mean motion %g rev/day outside (0,20]", meanMotion)
	}

	const d2r = math.Pi / 180

	return TLE{
		NoradID:        id1,
		Name:           strings.TrimSpace(name),
		IntlDesignator: strings.TrimSpace(line1[9:17]),
		Classification: line1[7],
		Epoch:          epoch,
		Inclination:    incDeg * d2r,
		RAAN:           raanDeg * d2r,
		Eccentricity:   ecc,
		ArgPerigee:     argpDeg * d2r,
		MeanAnomaly:    maDeg * d2r,
		MeanMotion:     meanMotion,
		MeanMotionDot:  ndot,
		MeanMotionDDot: nddot,
		BStar:          bstar,
		ElementSet:     elset,
		RevNumber:      rev,
		Line1:          line1,
		Line2:          line2,
	}, nil
}

// Parse reads newline-delimited multi-TLE data from r and returns parsed
// records. Both 3-line (name + elements) and bare 2-line groupings are
// accepted. Records failing strict validation are skipped with a warning log;
// the skipped count is reported so ingest can track it.
func Parse(r io.Reader, logger *slog.Logger) ([]TLE, error) {
	records, _, err := ParseCounted(r, logger)
	return records, err
}

// ParseCounted is Parse plus the number of skipped malformed records.
func ParseCounted(r io.Reader, logger *slog.Logger) ([]TLE, int, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading TLE data: %w", err)
	}

	var (
		records []TLE
		skipped int
	)
	for i := 0; i < len(lines); {
		name := ""
		if !strings.HasPrefix(lines[i], "1 ") {
			name = lines[i]
			i++
		}
		if i+1 >= len(lines) {
			break
		}
		line1, line2 := lines[i], lines[i+1]
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed TLE group", "line_index", i, "name", name)
			skipped++
			i++
			continue
		}

		rec, err := ParseLines(name, line1, line2)
		if err != nil {
			logger.Warn("skipping malformed TLE entry", "name", name, "error", err)
			skipped++
			i += 2
			continue
		}
		if rec.Name == "" {
			rec.Name = fmt.Sprintf("OBJECT %d", rec.NoradID)
		}
		records = append(records, rec)
		i += 2
	}

	return records, skipped, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to
// time.Time. Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %g out of range", dayOfYear)
	}

	// Day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}

// parseSignedFloat parses a fixed-width float field tolerating leading
// blanks and TLE's "-.00012345" notation.
func parseSignedFloat(field string) (float64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, fmt.Errorf("empty numeric field %q", field)
	}
	if strings.HasPrefix(s, "+.") || strings.HasPrefix(s, "-.") {
		s = string(s[0]) + "0" + s[1:]
	} else if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric field %q", field)
	}
	return v, nil
}

// parseImpliedPointDecimal parses fields like "0001000" that carry an
// implied leading decimal point (→ 0.0001000).
func parseImpliedPointDecimal(field string) (float64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, fmt.Errorf("empty field %q", field)
	}
	v, err := strconv.ParseFloat("0."+s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid implied-decimal field %q", field)
	}
	return v, nil
}

// parseAssumedDecimal parses TLE exponent notation like " 10270-3" meaning
// ±0.10270 × 10⁻³. An all-zero mantissa (" 00000-0", " 00000+0") is zero.
func parseAssumedDecimal(field string) (float64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, fmt.Errorf("empty field %q", field)
	}

	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1.0
		s = s[1:]
	case '+':
		s = s[1:]
	}

	// Split mantissa from trailing exponent (sign + digit).
	if len(s) < 2 {
		return 0, fmt.Errorf("short exponent field %q", field)
	}
	expStart := len(s) - 2
	mantStr, expStr := s[:expStart], s[expStart:]
	if expStr[0] != '-' && expStr[0] != '+' {
		// Some files omit the exponent sign for zero fields.
		mantStr, expStr = s[:len(s)-1], "+"+s[len(s)-1:]
	}

	mant, err := strconv.ParseFloat("0."+strings.TrimSpace(mantStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mantissa in %q", field)
	}
	exp, err := strconv.Atoi(expStr)
	if err != nil {
		return 0, fmt.Errorf("invalid exponent in %q", field)
	}

	return sign * mant * math.Pow(10, float64(exp)), nil
}

// parseOptionalInt parses a right-justified integer field that may be blank.
func parseOptionalInt(field string) (int, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
