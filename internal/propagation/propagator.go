package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// sgp4Cache holds preinitialized models for one catalog revision. Immutable
// after construction; safe for concurrent reads.
type sgp4Cache struct {
	props    map[int]*SGP4
	revision uint64
}

// Propagator evaluates the whole catalog, keeping initialized SGP4 models
// cached across calls and rebuilding them when the catalog changes.
type Propagator struct {
	catalog *tle.Catalog
	pool    *WorkerPool
	config  PropConfig
	logger  *slog.Logger
	cache   atomic.Pointer[sgp4Cache]
	cacheMu sync.Mutex // serializes cache rebuilds
}

// NewPropagator creates a propagation orchestrator over the catalog.
func NewPropagator(catalog *tle.Catalog, config PropConfig, logger *slog.Logger) *Propagator {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	return &Propagator{
		catalog: catalog,
		pool:    NewWorkerPool(config.Workers, logger),
		config:  config,
		logger:  logger,
	}
}

// cachedProps returns preinitialized models for the current catalog,
// rebuilding when the revision moved (double-checked locking). The revision
// is read before the object snapshot, so a concurrent ingest can only make
// the cache look stale, never fresh.
func (p *Propagator) cachedProps() map[int]*SGP4 {
	rev := p.catalog.Revision()
	if c := p.cache.Load(); c != nil && c.revision == rev {
		return c.props
	}

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	rev = p.catalog.Revision()
	if c := p.cache.Load(); c != nil && c.revision == rev {
		return c.props
	}
	objects := p.catalog.List()

	props := make(map[int]*SGP4, len(objects))
	var skipped int
	for _, obj := range objects {
		sp, err := New(obj.TLE)
		if err != nil {
			p.logger.Warn("sgp4 cache init failed", "norad_id", obj.TLE.NoradID, "error", err)
			skipped++
			continue
		}
		props[obj.TLE.NoradID] = sp
	}

	p.logger.Info("sgp4 model cache rebuilt",
		"cached", len(props),
		"skipped", skipped,
		"revision", rev,
	)
	p.cache.Store(&sgp4Cache{props: props, revision: rev})
	return props
}

// SnapshotAt propagates every catalog object to the target time.
func (p *Propagator) SnapshotAt(ctx context.Context, at time.Time) (*Snapshot, error) {
	objects := p.catalog.List()
	if len(objects) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	props := p.cachedProps()

	p.logger.Debug("propagating catalog",
		"objects", len(objects),
		"target_time", at.UTC().Format(time.RFC3339),
		"workers", p.config.Workers,
	)

	start := time.Now()
	states, successCount, errorCount := p.pool.PropagateBatch(ctx, objects, at, props)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, successCount, errorCount)

	p.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	return &Snapshot{
		At:     at.UTC().Truncate(time.Second),
		States: states,
		Failed: errorCount,
	}, nil
}

// StateAt propagates a single catalog object to the target time.
func (p *Propagator) StateAt(id int, at time.Time) (StateVector, error) {
	obj, ok := p.catalog.Get(id)
	if !ok {
		return StateVector{}, fmt.Errorf("object %d: %w", id, tle.ErrUnknownObject)
	}

	// Reuse a cached model when the cache is warm for the current revision;
	// a one-off init is cheap enough not to force a full rebuild here.
	if c := p.cache.Load(); c != nil && c.revision == p.catalog.Revision() {
		if sp, ok := c.props[id]; ok {
			return sp.StateAt(at)
		}
	}

	sp, err := New(obj.TLE)
	if err != nil {
		return StateVector{}, err
	}
	return sp.StateAt(at)
}

// OrbitPath lazily samples one object's trajectory. Each Next call
// propagates a single point, so a caller streaming a path pays only for the
// points it consumes. It holds its own SGP4 model and is not safe for
// concurrent use.
type OrbitPath struct {
	sp    *SGP4
	start time.Time
	step  time.Duration
	next  int
	total int
}

// OrbitPath prepares a lazy path over [start, start+span] sampled at step,
// endpoints inclusive.
func (p *Propagator) OrbitPath(id int, start time.Time, span, step time.Duration) (*OrbitPath, error) {
	if step <= 0 {
		return nil, fmt.Errorf("path step must be positive, got %s", step)
	}
	if span < 0 {
		return nil, fmt.Errorf("path span must not be negative, got %s", span)
	}

	obj, ok := p.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("object %d: %w", id, tle.ErrUnknownObject)
	}
	sp, err := New(obj.TLE)
	if err != nil {
		return nil, err
	}
	return &OrbitPath{
		sp:    sp,
		start: start,
		step:  step,
		total: int(span/step) + 1,
	}, nil
}

// Len returns the total number of samples the path will yield.
func (op *OrbitPath) Len() int { return op.total }

// Next propagates and returns the next sample. ok is false once the path is
// exhausted; a propagation failure ends the path with the error.
func (op *OrbitPath) Next() (StateVector, bool, error) {
	if op.next >= op.total {
		return StateVector{}, false, nil
	}
	at := op.start.Add(time.Duration(op.next) * op.step)
	sv, err := op.sp.StateAt(at)
	if err != nil {
		return StateVector{}, false, fmt.Errorf("path point %d at %s: %w", op.next, at.UTC().Format(time.RFC3339), err)
	}
	op.next++
	return sv, true, nil
}

// Path collects a full OrbitPath into a slice. On a mid-path failure the
// states computed so far are returned along with the error.
func (p *Propagator) Path(ctx context.Context, id int, start time.Time, span, step time.Duration) ([]StateVector, error) {
	op, err := p.OrbitPath(id, start, span, step)
	if err != nil {
		return nil, err
	}
	states := make([]StateVector, 0, op.Len())
	for {
		select {
		case <-ctx.Done():
			return states, ctx.Err()
		default:
		}

		sv, ok, err := op.Next()
		if err != nil {
			return states, err
		}
		if !ok {
			return states, nil
		}
		states = append(states, sv)
	}
}
