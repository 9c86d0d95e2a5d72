package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/cache"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/engine"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

func parseTier(s string) (risk.Tier, bool) {
	t := risk.Tier(s)
	if t.Rank() < 0 {
		return "", false
	}
	return t, true
}

func (s *Server) handleConjunctions(w http.ResponseWriter, r *http.Request) {
	limit, okLimit := queryInt(r, "limit", 0)
	if !okLimit || limit < 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "limit must be a non-negative integer")
		return
	}

	events := s.deps.Engine.Conjunctions("", limit)
	stats, scannedAt := s.deps.Engine.LastScan()
	ok(w, map[string]any{
		"conjunctions": events,
		"stats":        stats,
		"scanned_at":   scannedAt,
		"forecasts":    s.deps.Engine.Forecasts(),
	})
}

func (s *Server) handleConjunctionsHigh(w http.ResponseWriter, r *http.Request) {
	minTier := risk.TierHigh
	if v := r.URL.Query().Get("level"); v != "" {
		t, okTier := parseTier(v)
		if !okTier {
			fail(w, http.StatusBadRequest, kindBadRequest, "level must be one of low, moderate, high, critical")
			return
		}
		minTier = t
	}
	limit, okLimit := queryInt(r, "limit", 0)
	if !okLimit || limit < 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "limit must be a non-negative integer")
		return
	}

	events := s.deps.Engine.Conjunctions(minTier, limit)
	_, scannedAt := s.deps.Engine.LastScan()
	ok(w, map[string]any{
		"conjunctions": events,
		"min_tier":     minTier,
		"scanned_at":   scannedAt,
	})
}

// analysisBucket quantizes request time so repeated analyses of the same pair
// share a cache entry until either the bucket rolls over or the catalog moves.
const analysisBucket = 5 * time.Minute

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	idA, okA := pathID(r, "a")
	idB, okB := pathID(r, "b")
	if !okA || !okB {
		fail(w, http.StatusBadRequest, kindBadRequest, "satellite ids must be positive integers")
		return
	}
	if idA == idB {
		fail(w, http.StatusBadRequest, kindBadRequest, "analysis needs two distinct satellites")
		return
	}
	if idA > idB {
		idA, idB = idB, idA
	}

	key := cache.Key("analysis", s.deps.Catalog.Revision(), idA, idB,
		time.Now().UTC().Truncate(analysisBucket).Unix())
	if as, hit := s.analysisCache.Get(key); hit {
		ok(w, as)
		return
	}

	as, err := s.deps.Engine.AnalyzePair(r.Context(), idA, idB)
	switch {
	case errors.Is(err, tle.ErrUnknownObject):
		fail(w, http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, engine.ErrNoCloseApproach):
		fail(w, http.StatusNotFound, kindNotFound, err.Error())
	case err != nil:
		fail(w, http.StatusInternalServerError, kindInternal, err.Error())
	default:
		s.analysisCache.Add(key, as)
		ok(w, as)
	}
}

func (s *Server) handleRunScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine.Scanning() {
		fail(w, http.StatusConflict, kindScanInFlight, engine.ErrScanInFlight.Error())
		return
	}

	// The scan outlives the request; it runs on a fresh context and reports
	// through logs, metrics, and the next GET.
	go func() {
		if _, err := s.deps.Engine.RunScan(context.Background()); err != nil && !errors.Is(err, engine.ErrScanInFlight) {
			s.logger.Error("triggered scan failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, envelope{Success: true, Data: map[string]any{"started": true}})
}
