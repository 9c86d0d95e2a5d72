package api

import (
	"net/http"
	"sort"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
)

func (s *Server) handleReentry(w http.ResponseWriter, r *http.Request) {
	limit, okLimit := queryInt(r, "limit", 0)
	if !okLimit || limit < 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "limit must be a non-negative integer")
		return
	}

	preds, err := s.deps.Reentry.Snapshot(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, kindInternal, err.Error())
		return
	}
	if limit > 0 && len(preds) > limit {
		preds = preds[:limit]
	}
	ok(w, map[string]any{"predictions": preds})
}

func (s *Server) handleReentryUpcoming(w http.ResponseWriter, r *http.Request) {
	days, okDays := queryInt(r, "days", 30)
	if !okDays || days <= 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "days must be a positive integer")
		return
	}

	preds, err := s.deps.Reentry.Snapshot(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, kindInternal, err.Error())
		return
	}

	upcoming := make([]reentry.Prediction, 0, len(preds))
	for _, p := range preds {
		if p.DaysToReentry <= float64(days) {
			upcoming = append(upcoming, p)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].DaysToReentry < upcoming[j].DaysToReentry
	})
	ok(w, map[string]any{"days": days, "predictions": upcoming})
}
