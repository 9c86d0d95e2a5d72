package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/scorer"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/store"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// RunScan executes one catalog-wide screening scan and pushes every rated
// event through the alert lifecycle. Scans are single-flight; a second
// caller gets ErrScanInFlight instead of queueing.
func (e *Engine) RunScan(ctx context.Context) (ScanResult, error) {
	if !e.scanBusy.CompareAndSwap(false, true) {
		return ScanResult{}, ErrScanInFlight
	}
	defer e.scanBusy.Store(false)

	start := e.now().UTC()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScanDeadline)
	defer cancel()

	objects := e.deps.Catalog.List()

	// The screener feeds the risk stage through a bounded queue: when the
	// consumer falls behind, the producer blocks rather than dropping, so
	// no risk-relevant event is ever lost. One consumer keeps alert ingest
	// in TCA order.
	queue := make(chan screening.Conjunction, e.cfg.QueueDepth)
	rated := make(chan []risk.Assessment, 1)
	go func() {
		var out []risk.Assessment
		for ev := range queue {
			as, ok := e.assess(ev)
			if !ok {
				continue
			}
			out = append(out, as)
			if e.deps.Alerts != nil {
				e.deps.Alerts.Ingest(as)
			}
		}
		rated <- out
	}()

	events, stats := e.screener.Scan(ctx, objects, start)
	for _, ev := range events {
		queue <- ev
	}
	close(queue)
	assessments := <-rated

	finished := e.now().UTC()
	e.record(assessments, stats, finished)

	e.logger.Info("screening scan complete",
		"objects", stats.Objects,
		"emitted", stats.Emitted,
		"partial", stats.Partial,
		"elapsed_ms", stats.ElapsedMs,
	)
	return ScanResult{
		Assessments: assessments,
		Stats:       stats,
		StartedAt:   start,
		FinishedAt:  finished,
	}, nil
}

// assess rates one screening event. Objects that left the catalog between
// screening and rating are skipped.
func (e *Engine) assess(ev screening.Conjunction) (risk.Assessment, bool) {
	a, okA := e.deps.Catalog.Get(ev.IDA)
	b, okB := e.deps.Catalog.Get(ev.IDB)
	if !okA || !okB {
		return risk.Assessment{}, false
	}
	as := e.deps.Risk.Assess(ev, a, b)
	metrics.RecordConjunction(string(as.Tier))
	return as, true
}

// record publishes the scan products and advances the forecaster.
func (e *Engine) record(assessments []risk.Assessment, stats screening.Stats, at time.Time) {
	snap := scorer.Snapshot{
		At:     at,
		Events: len(assessments),
		ByTier: make(map[risk.Tier]int),
	}
	for _, as := range assessments {
		snap.ByTier[as.Tier]++
		if as.Pc > snap.MaxPc {
			snap.MaxPc = as.Pc
		}
	}

	e.mu.Lock()
	e.assessments = assessments
	e.lastStats = stats
	e.lastScanAt = at
	e.history = append(e.history, snap)
	if len(e.history) > e.cfg.HistoryLimit {
		e.history = e.history[len(e.history)-e.cfg.HistoryLimit:]
	}
	if e.deps.Scorer != nil {
		e.forecasts = e.deps.Scorer.Score(e.history)
	}
	forecasts := e.forecasts
	e.mu.Unlock()

	for _, f := range forecasts {
		e.logger.Debug("risk forecast",
			"horizon_hours", f.HorizonHours, "class", string(f.Class), "confidence", f.Confidence)
	}
}

// AnalyzePair runs an on-demand screen of a single pair at the relaxed
// analysis threshold and rates the result. Unlike a catalog scan this
// reports the closest approach even when it is nowhere near the alerting
// threshold.
func (e *Engine) AnalyzePair(ctx context.Context, idA, idB int) (risk.Assessment, error) {
	if idA == idB {
		return risk.Assessment{}, ErrNoCloseApproach
	}
	a, okA := e.deps.Catalog.Get(idA)
	if !okA {
		return risk.Assessment{}, fmt.Errorf("object %d: %w", idA, tle.ErrUnknownObject)
	}
	b, okB := e.deps.Catalog.Get(idB)
	if !okB {
		return risk.Assessment{}, fmt.Errorf("object %d: %w", idB, tle.ErrUnknownObject)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScanDeadline)
	defer cancel()

	events, _ := e.analyzer.Scan(ctx, []tle.Object{a, b}, e.now().UTC())
	if len(events) == 0 {
		return risk.Assessment{}, ErrNoCloseApproach
	}

	// The scan emits at most one event per pair: the smallest-miss minimum.
	as := e.deps.Risk.Assess(events[0], a, b)
	return as, nil
}

// ReentrySweep runs one predictor pass and applies it to the registry.
func (e *Engine) ReentrySweep(ctx context.Context) error {
	at := e.now().UTC()
	preds, err := e.deps.Predictor.Sweep(ctx, e.deps.Catalog.List(), at)
	if err != nil {
		return err
	}
	if err := e.deps.Registry.Apply(ctx, preds, at); err != nil {
		return err
	}
	if e.deps.Store != nil {
		for _, p := range preds {
			if err := e.deps.Store.Put(store.CollectionReentry, strconv.Itoa(p.NoradID), p); err != nil {
				e.logger.Warn("reentry prediction not persisted", "norad_id", p.NoradID, "error", err)
			}
		}
	}
	e.logger.Info("reentry sweep complete", "predictions", len(preds))
	return nil
}
