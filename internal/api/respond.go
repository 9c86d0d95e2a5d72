package api

import (
	"encoding/json"
	"net/http"
)

// Stable error kinds surfaced in the JSON envelope.
const (
	kindBadRequest        = "bad_request"
	kindNotFound          = "not_found"
	kindInvalidTransition = "invalid_transition"
	kindScanInFlight      = "scan_in_flight"
	kindRefreshInFlight   = "refresh_in_flight"
	kindIngestFailed      = "ingest_failed"
	kindInternal          = "internal"
)

// envelope is the uniform JSON response shape.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func fail(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, envelope{Success: false, Error: &apiError{Kind: kind, Message: message}})
}
