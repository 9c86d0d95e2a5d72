package reentry

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// EventType names the lifecycle frames a prediction change can emit.
type EventType string

const (
	EventCreated   EventType = "reentry_created"
	EventEscalated EventType = "reentry_escalated"
	EventResolved  EventType = "reentry_resolved"
)

// Event is one lifecycle change derived by the registry.
type Event struct {
	Type       EventType  `json:"type"`
	Prediction Prediction `json:"prediction"`
	At         time.Time  `json:"at"`
}

// Registry holds the latest prediction per object. A single owner goroutine
// consumes sweep batches and snapshot requests, so the state needs no lock.
// Lifecycle events fall out of comparing each batch against the held state:
// an object crossing into elevated-or-worse is created, climbing further is
// escalated, and dropping back to normal (or leaving the catalog) is
// resolved. De-escalations that stay above normal update silently.
type Registry struct {
	updates chan updateReq
	reads   chan chan []Prediction
	sink    func(Event)
	logger  *slog.Logger
}

type updateReq struct {
	preds []Prediction
	at    time.Time
	done  chan struct{}
}

// NewRegistry builds a registry delivering lifecycle events to sink. The sink
// runs on the registry's own goroutine and must not block for long.
func NewRegistry(sink func(Event), logger *slog.Logger) *Registry {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Registry{
		updates: make(chan updateReq),
		reads:   make(chan chan []Prediction),
		sink:    sink,
		logger:  logger,
	}
}

// Run owns the registry state until the context ends.
func (r *Registry) Run(ctx context.Context) {
	held := make(map[int]Prediction)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.updates:
			r.apply(held, req)
			close(req.done)
		case resp := <-r.reads:
			resp <- sortedCopy(held)
		}
	}
}

// Apply replaces the held predictions with a complete sweep batch. Objects
// absent from the batch are dropped and read as resolved, so partial sweep
// results must not be applied.
func (r *Registry) Apply(ctx context.Context, preds []Prediction, at time.Time) error {
	req := updateReq{preds: preds, at: at, done: make(chan struct{})}
	select {
	case r.updates <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the held predictions, most urgent first.
func (r *Registry) Snapshot(ctx context.Context) ([]Prediction, error) {
	resp := make(chan []Prediction, 1)
	select {
	case r.reads <- resp:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case preds := <-resp:
		return preds, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) apply(held map[int]Prediction, req updateReq) {
	seen := make(map[int]bool, len(req.preds))
	for _, pred := range req.preds {
		seen[pred.NoradID] = true
		prev, had := held[pred.NoradID]
		held[pred.NoradID] = pred

		was := 0
		if had {
			was = severity(prev.Status)
		}
		now := severity(pred.Status)
		switch {
		case was == 0 && now > 0:
			r.emit(EventCreated, pred, req.at)
		case was > 0 && now > was:
			r.emit(EventEscalated, pred, req.at)
		case was > 0 && now == 0:
			r.emit(EventResolved, pred, req.at)
		}
	}

	for id, prev := range held {
		if seen[id] {
			continue
		}
		delete(held, id)
		if severity(prev.Status) > 0 {
			gone := prev
			gone.Status = StatusNormal
			r.emit(EventResolved, gone, req.at)
		}
	}
}

func (r *Registry) emit(typ EventType, pred Prediction, at time.Time) {
	r.logger.Info("re-entry lifecycle event",
		slog.String("type", string(typ)),
		slog.Int("norad_id", pred.NoradID),
		slog.String("status", string(pred.Status)),
		slog.Float64("days_to_reentry", pred.DaysToReentry))
	r.sink(Event{Type: typ, Prediction: pred, At: at})
}

func sortedCopy(held map[int]Prediction) []Prediction {
	out := make([]Prediction, 0, len(held))
	for _, p := range held {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysToReentry != out[j].DaysToReentry {
			return out[i].DaysToReentry < out[j].DaysToReentry
		}
		return out[i].NoradID < out[j].NoradID
	})
	return out
}
