package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/store"
)

// Run drives the periodic work until ctx is cancelled: screening scans,
// re-entry sweeps, the catalog age gauge, and the endpoint-stats snapshot.
// The first scan and sweep start shortly after boot rather than waiting a
// full interval.
func (e *Engine) Run(ctx context.Context) {
	scanTicker := time.NewTicker(e.cfg.ScanInterval)
	defer scanTicker.Stop()
	sweepTicker := time.NewTicker(e.cfg.ReentryInterval)
	defer sweepTicker.Stop()
	gaugeTicker := time.NewTicker(10 * time.Second)
	defer gaugeTicker.Stop()
	statsTicker := time.NewTicker(time.Minute)
	defer statsTicker.Stop()

	// Warm start: one sweep and one scan as soon as there is a catalog.
	warmup := time.NewTimer(5 * time.Second)
	defer warmup.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return

		case <-warmup.C:
			if e.deps.Catalog.Len() == 0 {
				warmup.Reset(5 * time.Second)
				continue
			}
			e.sweep(ctx)
			e.scan(ctx)

		case <-scanTicker.C:
			e.scan(ctx)

		case <-sweepTicker.C:
			e.sweep(ctx)

		case <-gaugeTicker.C:
			metrics.SetCatalogAge(e.deps.Catalog.AgeSeconds())
			metrics.SetCatalogSize(e.deps.Catalog.Len())

		case <-statsTicker.C:
			e.persistEndpointStats()
		}
	}
}

func (e *Engine) scan(ctx context.Context) {
	if e.deps.Catalog.Len() == 0 {
		return
	}
	if _, err := e.RunScan(ctx); err != nil && !errors.Is(err, ErrScanInFlight) {
		e.logger.Error("scheduled scan failed", "error", err)
	}
}

func (e *Engine) sweep(ctx context.Context) {
	if e.deps.Catalog.Len() == 0 {
		return
	}
	if err := e.ReentrySweep(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error("scheduled reentry sweep failed", "error", err)
	}
}

// persistAlert is the alert manager subscriber that lands every lifecycle
// event in the store, keyed by alert id and indexed by status.
func (e *Engine) persistAlert(ev alert.Event) {
	if err := e.deps.Store.Put(store.CollectionAlerts, ev.Alert.ID, ev.Alert); err != nil {
		e.logger.Warn("alert not persisted", "alert", ev.Alert.ID, "error", err)
	}
}

func (e *Engine) persistEndpointStats() {
	if e.deps.Store == nil || e.deps.Notifier == nil {
		return
	}
	for id, st := range e.deps.Notifier.Stats() {
		if err := e.deps.Store.Put(store.CollectionEndpoints, id, st); err != nil {
			e.logger.Warn("endpoint stats not persisted", "endpoint", id, "error", err)
		}
	}
}

func unmarshalDoc(raw json.RawMessage, out any) error {
	return json.Unmarshal(raw, out)
}
