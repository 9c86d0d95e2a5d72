package propagation

import (
	"errors"
	"fmt"
)

var (
	// ErrDecayed marks an object whose orbit has dropped below the survivable
	// altitude floor, at initialization or during propagation.
	ErrDecayed = errors.New("object has decayed")

	// ErrNumericalDivergence marks a propagation that produced unusable
	// output: NaN, infinite, or wildly implausible state components.
	ErrNumericalDivergence = errors.New("propagation diverged")
)

// initError converts a go-satellite initialization code into one of the
// package sentinels. Codes 1 and 3 are out-of-range mean or perturbed
// elements, 5 and 6 are sub-orbital or decayed epochs.
func initError(noradID int, code int, detail string) error {
	switch code {
	case 1, 3:
		return fmt.Errorf("sgp4 init for object %d: code=%d %s: %w", noradID, code, detail, ErrNumericalDivergence)
	case 5, 6:
		return fmt.Errorf("sgp4 init for object %d: code=%d %s: %w", noradID, code, detail, ErrDecayed)
	default:
		return fmt.Errorf("sgp4 init for object %d failed: code=%d %s", noradID, code, detail)
	}
}
