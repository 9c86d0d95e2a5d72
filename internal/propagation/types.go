package propagation

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// StateVector is one object's inertial state at an instant. Position is in
// the TEME frame in kilometers, velocity in kilometers per second. At is
// always truncated to a whole UTC second because the underlying model only
// accepts integer seconds.
type StateVector struct {
	NoradID int
	Pos     r3.Vec
	Vel     r3.Vec
	At      time.Time
}

// Snapshot holds states for every object that propagated successfully at a
// single instant. Failed counts the objects that were dropped.
type Snapshot struct {
	At     time.Time
	States []StateVector
	Failed int
}

// PropConfig holds worker pool sizing for batch propagation.
type PropConfig struct {
	Workers int // defaults to runtime.NumCPU() when non-positive
}
