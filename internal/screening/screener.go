package screening

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

const (
	// missTieKm and tcaTieWindowSec define when two refined minima of the
	// same pair are considered equivalent, in which case the earlier wins.
	missTieKm       = 0.1
	tcaTieWindowSec = 600
)

// Screener runs conjunction scans over catalog snapshots.
type Screener struct {
	cfg    Config
	logger *slog.Logger

	now func() time.Time // test seam
}

// NewScreener creates a screener with the given configuration.
func NewScreener(cfg Config, logger *slog.Logger) *Screener {
	return &Screener{cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// track is one object's coarse ephemeris across the scan window.
type track struct {
	rec  tle.TLE
	sgp4 *propagation.SGP4
	pos  []r3.Vec
	ok   bool
}

// pairRef indexes a candidate pair into the track table.
type pairRef struct {
	a, b int
}

// Scan screens every object pair over [start, start+Window] and returns the
// refined events with miss distance within threshold, ordered by TCA with
// ties broken by the id pair. On context expiry the events refined so far
// are returned and Stats.Partial is set.
func (s *Screener) Scan(ctx context.Context, objects []tle.Object, start time.Time) ([]Conjunction, Stats) {
	began := time.Now()
	metrics.ScanStarted()

	start = start.UTC().Truncate(time.Second)
	steps := int(s.cfg.Window/s.cfg.CoarseStep) + 1
	stats := Stats{Objects: len(objects), Steps: steps}

	defer func() {
		stats.Elapsed = time.Since(began)
		stats.ElapsedMs = stats.Elapsed.Milliseconds()
		metrics.ScanFinished(stats.Elapsed, stats.GridPairs, stats.Candidates, stats.Refined, stats.Emitted)
		s.logger.Info("screening scan complete",
			"objects", stats.Objects,
			"excluded", stats.Excluded,
			"grid_pairs", stats.GridPairs,
			"candidates", stats.Candidates,
			"events", stats.Emitted,
			"partial", stats.Partial,
			"duration_ms", stats.ElapsedMs,
		)
	}()

	if len(objects) < 2 {
		return nil, stats
	}

	tracks, cancelled := s.buildTracks(ctx, objects, start, steps)
	for i := range tracks {
		if !tracks[i].ok {
			stats.Excluded++
		}
	}
	if cancelled {
		stats.Partial = true
		return nil, stats
	}

	candidates := s.collectCandidates(ctx, tracks, start, &stats)

	events := s.refineCandidates(ctx, tracks, candidates, start, &stats)

	sort.Slice(events, func(i, j int) bool {
		if !events[i].TCA.Equal(events[j].TCA) {
			return events[i].TCA.Before(events[j].TCA)
		}
		if events[i].IDA != events[j].IDA {
			return events[i].IDA < events[j].IDA
		}
		return events[i].IDB < events[j].IDB
	})
	stats.Emitted = len(events)
	return events, stats
}

// buildTracks initializes one SGP4 model per object and samples its position
// at every coarse step. An object failing initialization or any step is
// excluded for the whole window.
func (s *Screener) buildTracks(ctx context.Context, objects []tle.Object, start time.Time, steps int) ([]track, bool) {
	tracks := make([]track, len(objects))
	workers := s.workers()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var cancelled atomic.Bool

	for i := range objects {
		tracks[i].rec = objects[i].TLE

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				cancelled.Store(true)
				return
			}

			tr := &tracks[idx]
			sp, err := propagation.New(tr.rec)
			if err != nil {
				s.logger.Debug("screening excludes object", "norad_id", tr.rec.NoradID, "error", err)
				return
			}
			tr.sgp4 = sp

			pos := make([]r3.Vec, steps)
			for k := 0; k < steps; k++ {
				sv, err := sp.StateAt(start.Add(time.Duration(k) * s.cfg.CoarseStep))
				if err != nil {
					s.logger.Debug("screening excludes object", "norad_id", tr.rec.NoradID, "error", err)
					return
				}
				pos[k] = sv.Pos
			}
			tr.pos = pos
			tr.ok = true
		}(i)
	}
	wg.Wait()
	return tracks, cancelled.Load()
}

// collectCandidates hashes every coarse step into the padded grid and runs
// the element pre-filter once per unique proposed pair. The result keeps
// the track-table index pairs that survive, ordered by the id pair.
func (s *Screener) collectCandidates(ctx context.Context, tracks []track, start time.Time, stats *Stats) []pairRef {
	side := s.cfg.ThresholdKm + s.cfg.RelSpeedBoundKmS*s.cfg.CoarseStep.Seconds()
	decided := make(map[uint64]bool)
	var candidates []pairRef

	steps := stats.Steps
	for k := 0; k < steps; k++ {
		if ctx.Err() != nil {
			stats.Partial = true
			break
		}

		g := newGrid(side)
		for i := range tracks {
			if tracks[i].ok {
				g.insert(i, tracks[i].pos[k])
			}
		}

		g.visitPairs(func(i, j int) {
			idA, idB := tracks[i].rec.NoradID, tracks[j].rec.NoradID
			if idA == idB {
				return
			}
			if idA > idB {
				i, j = j, i
				idA, idB = idB, idA
			}
			key := uint64(idA)<<32 | uint64(idB)
			if _, seen := decided[key]; seen {
				return
			}
			stats.GridPairs++
			if canApproach(tracks[i].rec, tracks[j].rec, s.cfg.ThresholdKm, s.cfg.Window, start) {
				decided[key] = true
				candidates = append(candidates, pairRef{a: i, b: j})
			} else {
				decided[key] = false
				stats.PrefilterRejected++
			}
		})
	}

	sort.Slice(candidates, func(x, y int) bool {
		ax, ay := candidates[x], candidates[y]
		if tracks[ax.a].rec.NoradID != tracks[ay.a].rec.NoradID {
			return tracks[ax.a].rec.NoradID < tracks[ay.a].rec.NoradID
		}
		return tracks[ax.b].rec.NoradID < tracks[ay.b].rec.NoradID
	})
	stats.Candidates = len(candidates)
	return candidates
}

// refineCandidates brackets and refines every candidate pair in parallel.
// Pairs not reached before the context expires are dropped.
func (s *Screener) refineCandidates(ctx context.Context, tracks []track, candidates []pairRef, start time.Time, stats *Stats) []Conjunction {
	winners := make([]*Conjunction, len(candidates))
	sem := make(chan struct{}, s.workers())
	var wg sync.WaitGroup
	var refined atomic.Int64

	for ci := range candidates {
		if ctx.Err() != nil {
			stats.Partial = true
			break
		}

		wg.Add(1)
		go func(ci int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			pr := candidates[ci]
			winners[ci] = s.refinePair(&tracks[pr.a], &tracks[pr.b], start)
			refined.Add(1)
		}(ci)
	}
	wg.Wait()

	stats.Refined = int(refined.Load())
	if stats.Refined < len(candidates) {
		stats.Partial = true
	}

	events := make([]Conjunction, 0, len(candidates))
	for _, w := range winners {
		if w != nil {
			events = append(events, *w)
		}
	}
	return events
}

// refinePair finds the winning minimum for one pair: bracket every local
// minimum of the coarse distance series, refine each to the whole-second
// lattice, then keep the smallest miss, preferring the earlier of minima
// that are equivalent within the tie tolerances. Returns nil when the
// winner's miss exceeds the threshold.
func (s *Screener) refinePair(a, b *track, start time.Time) *Conjunction {
	steps := len(a.pos)
	ds := make([]float64, steps)
	for k := 0; k < steps; k++ {
		ds[k] = r3.Norm(r3.Sub(a.pos[k], b.pos[k]))
	}

	stepSec := int64(s.cfg.CoarseStep / time.Second)
	windowSec := int64(s.cfg.Window / time.Second)

	f := memoized(func(sec int64) float64 {
		at := start.Add(time.Duration(sec) * time.Second)
		svA, errA := a.sgp4.StateAt(at)
		if errA != nil {
			return math.Inf(1)
		}
		svB, errB := b.sgp4.StateAt(at)
		if errB != nil {
			return math.Inf(1)
		}
		return r3.Norm(r3.Sub(svA.Pos, svB.Pos))
	})

	type minimum struct {
		sec  int64
		miss float64
	}
	var found []minimum
	seen := make(map[int64]bool)

	for _, k := range bracketMinima(ds) {
		lo := int64(k-1) * stepSec
		hi := int64(k+1) * stepSec
		if lo < 0 {
			lo = 0
		}
		if hi > windowSec {
			hi = windowSec
		}
		sec, miss := minimizeLattice(f, lo, hi, 0, windowSec)
		if sec < 0 || math.IsInf(miss, 1) {
			continue
		}
		if seen[sec] {
			continue
		}
		seen[sec] = true
		found = append(found, minimum{sec: sec, miss: miss})
	}
	if len(found) == 0 {
		return nil
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].miss != found[j].miss {
			return found[i].miss < found[j].miss
		}
		return found[i].sec < found[j].sec
	})
	best := found[0]
	for _, m := range found[1:] {
		if math.Abs(m.miss-best.miss) <= missTieKm && absInt64(m.sec-best.sec) <= tcaTieWindowSec && m.sec < best.sec {
			best = m
		}
	}

	if best.miss > s.cfg.ThresholdKm {
		return nil
	}

	tca := start.Add(time.Duration(best.sec) * time.Second)
	svA, errA := a.sgp4.StateAt(tca)
	svB, errB := b.sgp4.StateAt(tca)
	if errA != nil || errB != nil {
		return nil
	}

	ev := &Conjunction{
		IDA:         a.rec.NoradID,
		IDB:         b.rec.NoradID,
		TCA:         tca,
		MissKm:      best.miss,
		RelSpeedKmS: r3.Norm(r3.Sub(svA.Vel, svB.Vel)),
		CreatedAt:   s.now().UTC(),
		StateA:      svA,
		StateB:      svB,
	}
	if ev.IDA > ev.IDB {
		ev.IDA, ev.IDB = ev.IDB, ev.IDA
		ev.StateA, ev.StateB = ev.StateB, ev.StateA
	}
	return ev
}

func (s *Screener) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return runtime.NumCPU()
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
