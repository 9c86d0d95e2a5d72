package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
)

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, okLimit := queryInt(r, "limit", 0)
	skip, okSkip := queryInt(r, "skip", 0)
	if !okLimit || limit < 0 || !okSkip || skip < 0 {
		fail(w, http.StatusBadRequest, kindBadRequest, "limit and skip must be non-negative integers")
		return
	}

	filter := alert.ListFilter{
		Status:   alert.Status(q.Get("status")),
		Priority: alert.Priority(q.Get("priority")),
		Limit:    limit,
		Skip:     skip,
	}
	ok(w, map[string]any{
		"alerts": s.deps.Alerts.List(filter),
		"counts": s.deps.Alerts.CountByStatus(),
	})
}

// actionBody is the optional JSON body for lifecycle actions. An empty body
// means an anonymous API action.
type actionBody struct {
	Who    string `json:"who"`
	Method string `json:"method"`
	Note   string `json:"note"`
}

func (s *Server) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")

	var body actionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		fail(w, http.StatusBadRequest, kindBadRequest, "malformed request body")
		return
	}
	if body.Method == "" {
		body.Method = "api"
	}

	var (
		a   alert.Alert
		err error
	)
	switch action {
	case "acknowledge":
		a, err = s.deps.Alerts.Acknowledge(id, body.Who, body.Method, body.Note)
	case "escalate":
		a, err = s.deps.Alerts.Escalate(id)
	case "resolve":
		a, err = s.deps.Alerts.Resolve(id, body.Who, body.Note)
	case "close":
		a, err = s.deps.Alerts.Close(id)
	default:
		fail(w, http.StatusBadRequest, kindBadRequest, "unknown action "+action)
		return
	}

	var invalid *alert.InvalidTransitionError
	switch {
	case errors.Is(err, alert.ErrNotFound):
		fail(w, http.StatusNotFound, kindNotFound, err.Error())
	case errors.As(err, &invalid):
		fail(w, http.StatusConflict, kindInvalidTransition, err.Error())
	case err != nil:
		fail(w, http.StatusInternalServerError, kindInternal, err.Error())
	default:
		ok(w, a)
	}
}
