// Package alert owns the conjunction alert lifecycle: creation deduplicated
// by conjunction fingerprint, the acknowledge/escalate/resolve/close state
// machine, risk-upgrade supersession, and dwell-based auto-escalation.
package alert

import (
	"errors"
	"fmt"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusNew          Status = "new"
	StatusAcknowledged Status = "acknowledged"
	StatusEscalated    Status = "escalated"
	StatusResolved     Status = "resolved"
	StatusClosed       Status = "closed"
)

// Terminal reports whether the alert no longer counts as active. A resolved
// alert can still be closed, but it never absorbs new events.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Priority is the operator-facing urgency, derived from the risk tier at
// creation and raised on supersession. It never goes back down.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func priorityFor(tier risk.Tier) Priority {
	switch tier {
	case risk.TierCritical:
		return PriorityCritical
	case risk.TierHigh:
		return PriorityHigh
	case risk.TierModerate:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Escalation history entry reasons.
const (
	ReasonRiskUpgraded     = "risk_upgraded"
	ReasonAutoEscalation   = "auto_escalation"
	ReasonManualEscalation = "manual_escalation"
)

// Escalation is one step in an alert's escalation history. Level is the level
// reached by the step, so an alert at level L carries exactly L entries.
type Escalation struct {
	Level  int       `json:"level"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// AckInfo records who acknowledged an alert and how.
type AckInfo struct {
	Who    string    `json:"who"`
	Method string    `json:"method,omitempty"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// ResolutionInfo records who resolved an alert.
type ResolutionInfo struct {
	Who  string    `json:"who"`
	Note string    `json:"note,omitempty"`
	At   time.Time `json:"at"`
}

// DispatchRecord is the delivery bookkeeping for one notification channel.
type DispatchRecord struct {
	Outcome  string    `json:"outcome"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Alert is one lifecycle-managed conjunction alert. It snapshots the rated
// event by value; later events for the same fingerprint replace the snapshot
// under the rules in Manager.Ingest.
type Alert struct {
	ID          string          `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	Status      Status          `json:"status"`
	Priority    Priority        `json:"priority"`
	Assessment  risk.Assessment `json:"conjunction"`

	Level          int          `json:"escalation_level"`
	History        []Escalation `json:"escalation_history,omitempty"`
	LevelChangedAt time.Time    `json:"level_changed_at"`

	Ack        *AckInfo                  `json:"acknowledgment,omitempty"`
	Resolution *ResolutionInfo           `json:"resolution,omitempty"`
	Dispatches map[string]DispatchRecord `json:"dispatches,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a deep copy safe to hand outside the shard lock.
func (a *Alert) clone() Alert {
	out := *a
	if a.History != nil {
		out.History = make([]Escalation, len(a.History))
		copy(out.History, a.History)
	}
	if a.Ack != nil {
		ack := *a.Ack
		out.Ack = &ack
	}
	if a.Resolution != nil {
		res := *a.Resolution
		out.Resolution = &res
	}
	if a.Dispatches != nil {
		out.Dispatches = make(map[string]DispatchRecord, len(a.Dispatches))
		for k, v := range a.Dispatches {
			out.Dispatches[k] = v
		}
	}
	return out
}

// EventType names the lifecycle frames an alert mutation can emit.
type EventType string

const (
	EventCreated      EventType = "alert_created"
	EventAcknowledged EventType = "alert_acknowledged"
	EventEscalated    EventType = "alert_escalated"
	EventResolved     EventType = "alert_resolved"
	EventClosed       EventType = "alert_closed"
)

// Event is one lifecycle change, carrying the post-transition alert snapshot.
type Event struct {
	Type  EventType `json:"type"`
	Alert Alert     `json:"alert"`
	At    time.Time `json:"at"`
}

// ErrNotFound reports an unknown alert id.
var ErrNotFound = errors.New("alert not found")

// InvalidTransitionError reports a lifecycle operation the current status
// does not permit.
type InvalidTransitionError struct {
	From  Status
	Event string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s an alert in status %q", e.Event, e.From)
}
