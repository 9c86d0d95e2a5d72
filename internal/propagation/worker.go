package propagation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// propagateJob is a unit of work for the worker pool. sgp4 is nil when no
// preinitialized model exists for the object.
type propagateJob struct {
	rec  tle.TLE
	sgp4 *SGP4
	at   time.Time
}

// propagateResult is the output of a single object propagation.
type propagateResult struct {
	state   StateVector
	err     error
	noradID int
}

// WorkerPool runs a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{workers: workers, logger: logger}
}

// PropagateBatch propagates every object to the target time. Objects that
// fail are logged and skipped. Returned states are ordered by catalog id.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, objects []tle.Object, at time.Time, props map[int]*SGP4) ([]StateVector, int, int) {
	if len(objects) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := propagateSingle(job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, obj := range objects {
			job := propagateJob{rec: obj.TLE, sgp4: props[obj.TLE.NoradID], at: at}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	states := make([]StateVector, 0, len(objects))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", result.noradID,
				"error", result.err,
			)
			continue
		}
		successCount++
		states = append(states, result.state)
	}

	sort.Slice(states, func(i, j int) bool { return states[i].NoradID < states[j].NoradID })
	return states, successCount, errorCount
}

// propagateSingle evaluates one object, initializing a model on the fly when
// the shared cache had none for it.
func propagateSingle(job propagateJob) propagateResult {
	sp := job.sgp4
	if sp == nil {
		var err error
		sp, err = New(job.rec)
		if err != nil {
			return propagateResult{noradID: job.rec.NoradID, err: err}
		}
	}

	state, err := sp.StateAt(job.at)
	if err != nil {
		return propagateResult{noradID: job.rec.NoradID, err: err}
	}
	return propagateResult{noradID: job.rec.NoradID, state: state}
}
