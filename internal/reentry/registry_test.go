package reentry

import (
	"context"
	"testing"
	"time"
)

func regPred(id int, days float64, status Status) Prediction {
	return Prediction{NoradID: id, DaysToReentry: days, Status: status, PredictedAt: sweepEpoch}
}

func TestRegistryLifecycle(t *testing.T) {
	events := make(chan Event, 16)
	reg := NewRegistry(func(e Event) { events <- e }, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx)

	apply := func(preds ...Prediction) {
		t.Helper()
		if err := reg.Apply(ctx, preds, sweepEpoch); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	// Apply returns only after the owner goroutine processed the batch, so
	// every event it produced is already buffered.
	drain := func(want int) []Event {
		t.Helper()
		out := make([]Event, 0, want)
		for i := 0; i < want; i++ {
			select {
			case e := <-events:
				out = append(out, e)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for event %d of %d", i+1, want)
			}
		}
		select {
		case e := <-events:
			t.Fatalf("unexpected extra event %+v", e)
		default:
		}
		return out
	}

	// First sweep: one object still normal, one already at warning.
	apply(regPred(101, 200, StatusNormal), regPred(102, 5, StatusWarning))
	evs := drain(1)
	if evs[0].Type != EventCreated || evs[0].Prediction.NoradID != 102 {
		t.Fatalf("first sweep events = %+v", evs)
	}

	// Second sweep: the normal one crosses into elevated, the warning one
	// climbs to critical. Events follow batch order.
	apply(regPred(101, 20, StatusElevated), regPred(102, 0.5, StatusCritical))
	evs = drain(2)
	if evs[0].Type != EventCreated || evs[0].Prediction.NoradID != 101 {
		t.Fatalf("expected created(101), got %+v", evs[0])
	}
	if evs[1].Type != EventEscalated || evs[1].Prediction.NoradID != 102 {
		t.Fatalf("expected escalated(102), got %+v", evs[1])
	}

	// Third sweep: 102 recovers, 101 drops out of the batch entirely.
	apply(regPred(102, 300, StatusNormal))
	evs = drain(2)
	if evs[0].Type != EventResolved || evs[0].Prediction.NoradID != 102 {
		t.Fatalf("expected resolved(102), got %+v", evs[0])
	}
	if evs[1].Type != EventResolved || evs[1].Prediction.NoradID != 101 {
		t.Fatalf("expected resolved(101), got %+v", evs[1])
	}
	if evs[1].Prediction.Status != StatusNormal {
		t.Fatalf("vanished object should resolve as normal, got %q", evs[1].Prediction.Status)
	}

	// Steady state: nothing to say.
	apply(regPred(102, 300, StatusNormal))
	drain(0)

	preds, err := reg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(preds) != 1 || preds[0].NoradID != 102 {
		t.Fatalf("snapshot = %+v, want only 102", preds)
	}
}

func TestRegistryDeEscalationIsSilent(t *testing.T) {
	events := make(chan Event, 4)
	reg := NewRegistry(func(e Event) { events <- e }, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx)

	if err := reg.Apply(ctx, []Prediction{regPred(201, 0.5, StatusCritical)}, sweepEpoch); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	<-events // created

	if err := reg.Apply(ctx, []Prediction{regPred(201, 5, StatusWarning)}, sweepEpoch); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	select {
	case e := <-events:
		t.Fatalf("de-escalation emitted %+v", e)
	default:
	}

	preds, err := reg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(preds) != 1 || preds[0].Status != StatusWarning {
		t.Fatalf("snapshot = %+v, want the warning entry", preds)
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	reg := NewRegistry(nil, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx)

	batch := []Prediction{
		regPred(301, 30, StatusElevated),
		regPred(302, 1, StatusCritical),
		regPred(303, 7, StatusWarning),
	}
	if err := reg.Apply(ctx, batch, sweepEpoch); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	preds, err := reg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	wantOrder := []int{302, 303, 301}
	if len(preds) != len(wantOrder) {
		t.Fatalf("snapshot has %d entries, want %d", len(preds), len(wantOrder))
	}
	for i, id := range wantOrder {
		if preds[i].NoradID != id {
			t.Fatalf("snapshot[%d] = %d, want %d (most urgent first)", i, preds[i].NoradID, id)
		}
	}
}

func TestRegistryCancelledContext(t *testing.T) {
	reg := NewRegistry(nil, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := reg.Apply(ctx, []Prediction{regPred(401, 5, StatusWarning)}, sweepEpoch); err == nil {
		t.Fatal("Apply without a running registry should fail on context")
	}
	if _, err := reg.Snapshot(ctx); err == nil {
		t.Fatal("Snapshot without a running registry should fail on context")
	}
}
