package tle

import (
	"errors"
	"fmt"
)

// ErrMalformed is the error kind for TLE input that fails structural or
// physical-range validation. Callers match with errors.Is.
var ErrMalformed = errors.New("malformed TLE")

// ErrUnknownObject is returned when a catalog lookup misses.
var ErrUnknownObject = errors.New("unknown catalog id")

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
