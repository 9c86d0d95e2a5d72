package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRouteLabelUsesMatchedPattern verifies parameterized routes collapse to
// one label and unmatched requests share "other".
func TestRouteLabelUsesMatchedPattern(t *testing.T) {
	mux := http.NewServeMux()

	var got string
	mux.HandleFunc("GET /api/satellites/{id}", func(w http.ResponseWriter, r *http.Request) {})
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		got = routeLabel(r)
	}))

	seen := make(map[string]bool)
	for _, target := range []string{
		"/api/satellites/25544",
		"/api/satellites/44713",
		"/api/satellites/1",
	} {
		req := httptest.NewRequest("GET", target, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		seen[got] = true
	}
	if len(seen) != 1 || !seen["/api/satellites/{id}"] {
		t.Errorf("parameterized requests produced labels %v, want only /api/satellites/{id}", seen)
	}

	// Bot noise and typos must not mint new series.
	for _, target := range []string{"/wp-admin", "/.env", "/favicon.ico"} {
		req := httptest.NewRequest("GET", target, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if got != "other" {
			t.Errorf("%s: label = %q, want other", target, got)
		}
	}
}

// TestMiddlewarePreservesStatus verifies the wrapper does not swallow the
// handler's status code.
func TestMiddlewarePreservesStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}
