// Package engine wires the pipeline together: catalog ingest, periodic
// conjunction scans, the risk stage, alert ingest, re-entry sweeps, and the
// persistence write-behind. It owns the scheduling; the stages themselves
// stay pure or self-contained.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/notify"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/propagation"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/scorer"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/store"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// ErrScanInFlight means a screening scan is already running; scans are
// single-flight because they saturate the worker pool anyway.
var ErrScanInFlight = errors.New("screening scan already in flight")

// ErrRefreshInFlight means a TLE refresh is already running.
var ErrRefreshInFlight = errors.New("TLE refresh already in flight")

// ErrNoCloseApproach means a pair analysis found no approach inside the
// window even at the relaxed analysis threshold.
var ErrNoCloseApproach = errors.New("no close approach within the screening window")

// Config holds the engine's scheduling knobs.
type Config struct {
	// Screening parameterizes the catalog-wide scan.
	Screening screening.Config
	// ScanInterval is the periodic scan cadence, default 1 h.
	ScanInterval time.Duration
	// ScanDeadline bounds one scan; on expiry the events refined so far are
	// emitted and the rest dropped. Default 10 min.
	ScanDeadline time.Duration
	// ReentryInterval is the sweep cadence, default 30 min.
	ReentryInterval time.Duration
	// QueueDepth bounds the screener→risk event queue, default 64. The
	// producer blocks when it fills; events are never dropped.
	QueueDepth int
	// AnalysisThresholdKm relaxes the emission threshold for on-demand pair
	// analyses so even distant pairs report their closest approach.
	// Default 500.
	AnalysisThresholdKm float64
	// HistoryLimit caps the scan history kept for the forecaster,
	// default 168 (a week of hourly scans).
	HistoryLimit int
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Hour
	}
	if c.ScanDeadline <= 0 {
		c.ScanDeadline = 10 * time.Minute
	}
	if c.ReentryInterval <= 0 {
		c.ReentryInterval = 30 * time.Minute
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.AnalysisThresholdKm <= 0 {
		c.AnalysisThresholdKm = 500
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 168
	}
	return c
}

// Deps are the engine's collaborators. Fetcher, TLECache, Scorer, Store, and
// Notifier may be nil; the corresponding behavior is skipped.
type Deps struct {
	Catalog    *tle.Catalog
	Fetcher    *tle.Fetcher
	TLECache   *tle.Cache
	Propagator *propagation.Propagator
	Risk       *risk.Engine
	Alerts     *alert.Manager
	Predictor  *reentry.Predictor
	Registry   *reentry.Registry
	Scorer     scorer.Scorer
	Store      store.Store
	Notifier   *notify.Notifier
}

// Engine schedules the pipeline and holds the latest scan products.
type Engine struct {
	cfg      Config
	deps     Deps
	screener *screening.Screener
	analyzer *screening.Screener
	logger   *slog.Logger
	now      func() time.Time

	scanBusy    atomic.Bool
	refreshBusy atomic.Bool

	mu          sync.RWMutex
	assessments []risk.Assessment
	lastStats   screening.Stats
	lastScanAt  time.Time
	history     []scorer.Snapshot
	forecasts   []scorer.Forecast
}

// New builds an engine. The alert-store write-behind is attached here so
// every lifecycle event lands in the store regardless of which path caused
// it.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()

	analysisCfg := cfg.Screening
	analysisCfg.ThresholdKm = cfg.AnalysisThresholdKm

	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		screener: screening.NewScreener(cfg.Screening, logger),
		analyzer: screening.NewScreener(analysisCfg, logger),
		logger:   logger,
		now:      time.Now,
	}

	if deps.Store != nil && deps.Alerts != nil {
		deps.Alerts.Subscribe(e.persistAlert)
	}
	return e
}

// ScanResult is what one scan produced, in TCA order.
type ScanResult struct {
	Assessments []risk.Assessment `json:"conjunctions"`
	Stats       screening.Stats   `json:"stats"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Conjunctions returns the latest scan's rated events, optionally filtered
// to tiers ranking at or above minTier, newest scan only.
func (e *Engine) Conjunctions(minTier risk.Tier, limit int) []risk.Assessment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]risk.Assessment, 0, len(e.assessments))
	for _, as := range e.assessments {
		if minTier != "" && as.Tier.Rank() < minTier.Rank() {
			continue
		}
		out = append(out, as)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Scanning reports whether a screening scan is currently in flight.
func (e *Engine) Scanning() bool {
	return e.scanBusy.Load()
}

// LastScan returns the most recent scan's stats and completion time.
func (e *Engine) LastScan() (screening.Stats, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStats, e.lastScanAt
}

// Forecasts returns the forecaster's latest per-horizon output.
func (e *Engine) Forecasts() []scorer.Forecast {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]scorer.Forecast, len(e.forecasts))
	copy(out, e.forecasts)
	return out
}
