package alert

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

const shardCount = 16

// Config holds the lifecycle policy knobs.
type Config struct {
	// Dwell times before a level-0 alert auto-escalates, by priority. Each
	// subsequent level doubles the previous dwell. Low-priority alerts never
	// auto-escalate.
	DwellCritical time.Duration
	DwellHigh     time.Duration
	DwellModerate time.Duration

	// MaxAutoLevel caps automatic escalation. Risk upgrades and manual
	// escalations are not capped.
	MaxAutoLevel int

	// SweepInterval is how often the escalation loop scans for dwell
	// breaches.
	SweepInterval time.Duration
}

// DefaultConfig returns the stock lifecycle policy.
func DefaultConfig() Config {
	return Config{
		DwellCritical: 5 * time.Minute,
		DwellHigh:     15 * time.Minute,
		DwellModerate: 60 * time.Minute,
		MaxAutoLevel:  3,
		SweepInterval: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DwellCritical <= 0 {
		c.DwellCritical = d.DwellCritical
	}
	if c.DwellHigh <= 0 {
		c.DwellHigh = d.DwellHigh
	}
	if c.DwellModerate <= 0 {
		c.DwellModerate = d.DwellModerate
	}
	if c.MaxAutoLevel <= 0 {
		c.MaxAutoLevel = d.MaxAutoLevel
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

type shard struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// Manager owns the alert set. Alerts shard by id; the fingerprint index of
// active alerts has its own lock, taken before any shard lock and never
// after, so ingest can decide create-versus-update atomically.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	shards [shardCount]*shard

	fpMu sync.Mutex
	byFp map[string]string

	subsMu sync.RWMutex
	subs   []func(Event)
}

func NewManager(cfg Config, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
		byFp:   make(map[string]string),
	}
	for i := range m.shards {
		m.shards[i] = &shard{alerts: make(map[string]*Alert)}
	}
	return m
}

// Subscribe registers an observer for lifecycle events. Observers run on the
// goroutine that performed the mutation; ordering across concurrent
// mutations of different alerts is not defined.
func (m *Manager) Subscribe(fn func(Event)) {
	m.subsMu.Lock()
	m.subs = append(m.subs, fn)
	m.subsMu.Unlock()
}

func (m *Manager) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return m.shards[h.Sum32()%shardCount]
}

// Ingest applies one rated conjunction event. No active alert for the
// fingerprint creates one; a strictly higher risk tier escalates the existing
// alert with reason risk_upgraded; anything else refreshes the snapshot in
// place without an event.
func (m *Manager) Ingest(as risk.Assessment) Alert {
	at := m.now()
	fp := as.Fingerprint()

	m.fpMu.Lock()
	if id, ok := m.byFp[fp]; ok {
		sh := m.shardFor(id)
		sh.mu.Lock()
		if a, live := sh.alerts[id]; live && !a.Status.Terminal() {
			if as.Tier.Rank() > a.Assessment.Tier.Rank() {
				a.Assessment = as
				a.Priority = priorityFor(as.Tier)
				m.escalateLocked(a, ReasonRiskUpgraded, at)
				out := a.clone()
				sh.mu.Unlock()
				m.fpMu.Unlock()
				m.publish(Event{Type: EventEscalated, Alert: out, At: at})
				return out
			}
			a.Assessment = as
			a.UpdatedAt = at
			out := a.clone()
			sh.mu.Unlock()
			m.fpMu.Unlock()
			return out
		}
		sh.mu.Unlock()
		// Index pointed at a terminal alert; fall through and replace it.
	}

	a := &Alert{
		ID:             uuid.NewString(),
		Fingerprint:    fp,
		Status:         StatusNew,
		Priority:       priorityFor(as.Tier),
		Assessment:     as,
		LevelChangedAt: at,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	m.byFp[fp] = a.ID
	sh := m.shardFor(a.ID)
	sh.mu.Lock()
	sh.alerts[a.ID] = a
	out := a.clone()
	sh.mu.Unlock()
	m.fpMu.Unlock()

	m.publish(Event{Type: EventCreated, Alert: out, At: at})
	return out
}

// Acknowledge moves a new or escalated alert to acknowledged, recording who
// and how. Re-acknowledging is a no-op returning the unchanged alert.
func (m *Manager) Acknowledge(id, who, method, note string) (Alert, error) {
	return m.mutate(id, func(a *Alert, at time.Time) (EventType, error) {
		switch a.Status {
		case StatusNew, StatusEscalated:
			a.Status = StatusAcknowledged
			a.Ack = &AckInfo{Who: who, Method: method, Note: note, At: at}
			a.UpdatedAt = at
			return EventAcknowledged, nil
		case StatusAcknowledged:
			return "", nil
		default:
			return "", &InvalidTransitionError{From: a.Status, Event: "acknowledge"}
		}
	})
}

// Escalate raises the level of a new or escalated alert by operator request.
func (m *Manager) Escalate(id string) (Alert, error) {
	return m.mutate(id, func(a *Alert, at time.Time) (EventType, error) {
		switch a.Status {
		case StatusNew, StatusEscalated:
			m.escalateLocked(a, ReasonManualEscalation, at)
			return EventEscalated, nil
		default:
			return "", &InvalidTransitionError{From: a.Status, Event: "escalate"}
		}
	})
}

// Resolve closes out the operational phase of a new or acknowledged alert.
// An escalated alert must be acknowledged first.
func (m *Manager) Resolve(id, who, note string) (Alert, error) {
	return m.mutate(id, func(a *Alert, at time.Time) (EventType, error) {
		switch a.Status {
		case StatusNew, StatusAcknowledged:
			a.Status = StatusResolved
			a.Resolution = &ResolutionInfo{Who: who, Note: note, At: at}
			a.UpdatedAt = at
			return EventResolved, nil
		default:
			return "", &InvalidTransitionError{From: a.Status, Event: "resolve"}
		}
	})
}

// Close archives a resolved alert. Closed is the only fully terminal state.
func (m *Manager) Close(id string) (Alert, error) {
	return m.mutate(id, func(a *Alert, at time.Time) (EventType, error) {
		if a.Status != StatusResolved {
			return "", &InvalidTransitionError{From: a.Status, Event: "close"}
		}
		a.Status = StatusClosed
		a.UpdatedAt = at
		return EventClosed, nil
	})
}

// RecordDispatch stores delivery bookkeeping for one channel. It is not a
// lifecycle transition and emits no event.
func (m *Manager) RecordDispatch(id, channel string, rec DispatchRecord) error {
	sh := m.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	a, ok := sh.alerts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Dispatches == nil {
		a.Dispatches = make(map[string]DispatchRecord)
	}
	a.Dispatches[channel] = rec
	return nil
}

// Get returns a snapshot of one alert.
func (m *Manager) Get(id string) (Alert, error) {
	sh := m.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	a, ok := sh.alerts[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	return a.clone(), nil
}

// ListFilter narrows List output. Zero values match everything.
type ListFilter struct {
	Status   Status
	Priority Priority
	Limit    int
	Skip     int
}

// List returns matching alert snapshots, newest first.
func (m *Manager) List(f ListFilter) []Alert {
	var out []Alert
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, a := range sh.alerts {
			if f.Status != "" && a.Status != f.Status {
				continue
			}
			if f.Priority != "" && a.Priority != f.Priority {
				continue
			}
			out = append(out, a.clone())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Skip > 0 {
		if f.Skip >= len(out) {
			return nil
		}
		out = out[f.Skip:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// CountByStatus returns the census the API and the active-alerts gauge use.
func (m *Manager) CountByStatus() map[string]int {
	counts := make(map[string]int)
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, a := range sh.alerts {
			counts[string(a.Status)]++
		}
		sh.mu.RUnlock()
	}
	return counts
}

// RunEscalations applies dwell-based auto-escalation until the context ends.
func (m *Manager) RunEscalations(ctx context.Context) {
	t := time.NewTicker(m.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.escalationPass(m.now())
		}
	}
}

// escalationPass escalates every alert whose level dwell has run out and
// returns how many it touched.
func (m *Manager) escalationPass(at time.Time) int {
	var events []Event
	for _, sh := range m.shards {
		sh.mu.Lock()
		for _, a := range sh.alerts {
			if !m.dwellExceeded(a, at) {
				continue
			}
			m.escalateLocked(a, ReasonAutoEscalation, at)
			events = append(events, Event{Type: EventEscalated, Alert: a.clone(), At: at})
		}
		sh.mu.Unlock()
	}
	for _, e := range events {
		m.publish(e)
	}
	return len(events)
}

// dwellExceeded decides whether an alert has sat at its level for longer than
// the policy allows. Only new and escalated alerts are eligible; an
// acknowledged alert has a human on it.
func (m *Manager) dwellExceeded(a *Alert, at time.Time) bool {
	if a.Status != StatusNew && a.Status != StatusEscalated {
		return false
	}
	if a.Level >= m.cfg.MaxAutoLevel {
		return false
	}
	dwell := m.dwellFor(a.Priority, a.Level)
	if dwell <= 0 {
		return false
	}
	return at.Sub(a.LevelChangedAt) >= dwell
}

// dwellFor is the allowed dwell at a level: the priority's base doubled per
// level already climbed.
func (m *Manager) dwellFor(p Priority, level int) time.Duration {
	var base time.Duration
	switch p {
	case PriorityCritical:
		base = m.cfg.DwellCritical
	case PriorityHigh:
		base = m.cfg.DwellHigh
	case PriorityMedium:
		base = m.cfg.DwellModerate
	default:
		return 0
	}
	return base << uint(level)
}

// escalateLocked bumps the level and appends history. Callers hold the shard
// lock.
func (m *Manager) escalateLocked(a *Alert, reason string, at time.Time) {
	a.Level++
	a.History = append(a.History, Escalation{Level: a.Level, Reason: reason, At: at})
	a.Status = StatusEscalated
	a.LevelChangedAt = at
	a.UpdatedAt = at
}

// mutate runs one guarded transition and handles snapshotting, index
// maintenance, and event fan-out. fn returns the event to publish, or empty
// for a silent no-op.
func (m *Manager) mutate(id string, fn func(a *Alert, at time.Time) (EventType, error)) (Alert, error) {
	at := m.now()
	sh := m.shardFor(id)
	sh.mu.Lock()
	a, ok := sh.alerts[id]
	if !ok {
		sh.mu.Unlock()
		return Alert{}, ErrNotFound
	}
	ev, err := fn(a, at)
	if err != nil {
		sh.mu.Unlock()
		return Alert{}, err
	}
	out := a.clone()
	terminal := a.Status.Terminal()
	sh.mu.Unlock()

	if terminal {
		m.dropIndex(out.Fingerprint, id)
	}
	if ev != "" {
		m.publish(Event{Type: ev, Alert: out, At: at})
	}
	return out, nil
}

// dropIndex removes the fingerprint mapping if it still points at this alert.
func (m *Manager) dropIndex(fp, id string) {
	m.fpMu.Lock()
	if cur, ok := m.byFp[fp]; ok && cur == id {
		delete(m.byFp, fp)
	}
	m.fpMu.Unlock()
}

func (m *Manager) publish(e Event) {
	metrics.RecordAlertTransition(string(e.Type))
	metrics.SetActiveAlerts(m.CountByStatus())
	m.logger.Info("alert event",
		slog.String("type", string(e.Type)),
		slog.String("alert_id", e.Alert.ID),
		slog.String("fingerprint", e.Alert.Fingerprint),
		slog.String("status", string(e.Alert.Status)),
		slog.String("priority", string(e.Alert.Priority)),
		slog.Int("level", e.Alert.Level))
	m.subsMu.RLock()
	subs := m.subs
	m.subsMu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
