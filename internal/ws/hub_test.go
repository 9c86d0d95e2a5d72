package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testEvent(tier risk.Tier, idA, idB int) alert.Event {
	as := risk.Assessment{
		Conjunction: screening.Conjunction{IDA: idA, IDB: idB, MissKm: 1.2},
		Tier:        tier,
	}
	return alert.Event{
		Type:  alert.EventCreated,
		Alert: alert.Alert{ID: "a-1", Status: alert.StatusNew, Assessment: as},
		At:    time.Now().UTC(),
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

// TestHubGreetingAndBroadcast verifies a new client receives the connected
// greeting followed by broadcast alert frames.
func TestHubGreetingAndBroadcast(t *testing.T) {
	hub := NewHub(10, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	if f := readFrame(t, conn); f.Type != "connected" {
		t.Fatalf("first frame type = %q, want connected", f.Type)
	}

	// Broadcast until the frame arrives; registration races the first send.
	got := make(chan Frame, 1)
	go func() {
		var f Frame
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&f); err == nil {
			got <- f
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		hub.BroadcastAlert(testEvent(risk.TierHigh, 100, 200))
		select {
		case f := <-got:
			if f.Type != string(alert.EventCreated) {
				t.Fatalf("frame type = %q, want %q", f.Type, alert.EventCreated)
			}
			var a alert.Alert
			if err := json.Unmarshal(f.Payload, &a); err != nil {
				t.Fatalf("payload unmarshal: %v", err)
			}
			if a.ID != "a-1" {
				t.Fatalf("payload alert id = %q, want a-1", a.ID)
			}
			return
		case <-deadline:
			t.Fatal("broadcast frame never arrived")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// TestHubSubscribeFilter verifies a min-tier subscription suppresses frames
// below the requested tier while letting higher tiers through.
func TestHubSubscribeFilter(t *testing.T) {
	hub := NewHub(10, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	readFrame(t, conn) // greeting

	sub := map[string]any{
		"type":    "subscribe",
		"payload": map[string]any{"min_risk_tier": "critical"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	// Give the read pump time to apply the filter.
	time.Sleep(100 * time.Millisecond)

	hub.BroadcastAlert(testEvent(risk.TierLow, 100, 200))
	hub.BroadcastAlert(testEvent(risk.TierCritical, 300, 400))

	f := readFrame(t, conn)
	var a alert.Alert
	if err := json.Unmarshal(f.Payload, &a); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if a.Assessment.IDA != 300 {
		t.Fatalf("filtered stream delivered pair %d/%d, want 300/400",
			a.Assessment.IDA, a.Assessment.IDB)
	}
}

// TestConnLimiter verifies the per-IP cap and release bookkeeping.
func TestConnLimiter(t *testing.T) {
	l := newConnLimiter(2)

	if !l.acquire("10.0.0.1") || !l.acquire("10.0.0.1") {
		t.Fatal("acquire under limit failed")
	}
	if l.acquire("10.0.0.1") {
		t.Fatal("acquire over per-IP limit succeeded")
	}
	if !l.acquire("10.0.0.2") {
		t.Fatal("unrelated IP was blocked")
	}

	l.release("10.0.0.1")
	if !l.acquire("10.0.0.1") {
		t.Fatal("acquire after release failed")
	}
	if got := l.count("10.0.0.2"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

// TestHubLimitExceeded verifies connections over the per-IP cap get a 429
// instead of an upgrade.
func TestHubLimitExceeded(t *testing.T) {
	hub := NewHub(1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	readFrame(t, conn)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("second connection from same IP was accepted")
	}
	if resp == nil || resp.StatusCode != 429 {
		t.Fatalf("expected 429 response, got %+v", resp)
	}
}
