package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

// buildPayload renders the endpoint-type-specific body for one alert event.
// seq is the monotonic dispatch sequence stamped into generic payloads.
func buildPayload(ep Endpoint, e alert.Event, seq uint64) ([]byte, error) {
	switch ep.Type {
	case TypeSlack:
		return json.Marshal(slackFor(e))
	case TypePagerDuty:
		return json.Marshal(pagerDutyFor(ep.RoutingKey, e))
	case TypeEmail:
		return json.Marshal(emailFor(ep.To, e))
	default:
		return json.Marshal(genericFor(e, seq))
	}
}

// Slack Block Kit message.

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

func slackFor(e alert.Event) slackMessage {
	a := e.Alert
	c := a.Assessment
	headline := fmt.Sprintf("%s conjunction alert: %d / %d",
		strings.ToUpper(string(a.Priority)), c.IDA, c.IDB)

	mrkdwn := func(s string) slackText { return slackText{Type: "mrkdwn", Text: s} }
	fields := []slackText{
		mrkdwn(fmt.Sprintf("*Satellites*\n%d / %d", c.IDA, c.IDB)),
		mrkdwn(fmt.Sprintf("*TCA*\n%s", c.TCA.UTC().Format(time.RFC3339))),
		mrkdwn(fmt.Sprintf("*Miss distance*\n%.3f km", c.MissKm)),
		mrkdwn(fmt.Sprintf("*Collision probability*\n%.2e", c.Pc)),
		mrkdwn(fmt.Sprintf("*Risk tier*\n%s", c.Tier)),
		mrkdwn(fmt.Sprintf("*Status*\n%s", a.Status)),
	}

	return slackMessage{
		Text: headline,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: headline, Emoji: true}},
			{Type: "section", Fields: fields},
			{Type: "context", Elements: []slackText{
				mrkdwn(fmt.Sprintf("event %s | alert %s | level %d", e.Type, a.ID, a.Level)),
			}},
		},
	}
}

// PagerDuty Events API v2.

type pagerDutyPayload struct {
	Summary       string         `json:"summary"`
	Source        string         `json:"source"`
	Severity      risk.Tier      `json:"severity"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

type pagerDutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"`
	DedupKey    string           `json:"dedup_key"`
	Payload     pagerDutyPayload `json:"payload"`
}

func pagerDutyFor(routingKey string, e alert.Event) pagerDutyEvent {
	a := e.Alert
	c := a.Assessment

	action := "trigger"
	switch e.Type {
	case alert.EventAcknowledged:
		action = "acknowledge"
	case alert.EventResolved:
		action = "resolve"
	}

	return pagerDutyEvent{
		RoutingKey:  routingKey,
		EventAction: action,
		DedupKey:    a.ID,
		Payload: pagerDutyPayload{
			Summary: fmt.Sprintf("Conjunction %d/%d: miss %.3f km, Pc %.1e, TCA %s",
				c.IDA, c.IDB, c.MissKm, c.Pc, c.TCA.UTC().Format(time.RFC3339)),
			Source:    "astrashield",
			Severity:  c.Tier,
			Timestamp: e.At.UTC().Format(time.RFC3339),
			CustomDetails: map[string]any{
				"status":                string(a.Status),
				"priority":              string(a.Priority),
				"escalation_level":      a.Level,
				"relative_speed_km_s":   c.RelSpeedKmS,
				"collision_probability": c.Pc,
			},
		},
	}
}

// Generic webhook payload. Field names are part of the outbound contract.

type genericConjunction struct {
	TCA                  time.Time `json:"tca"`
	MissKm               float64   `json:"missKm"`
	RelativeSpeedKmS     float64   `json:"relativeSpeedKmS"`
	CollisionProbability float64   `json:"collisionProbability"`
}

type genericAck struct {
	Who    string    `json:"who"`
	Method string    `json:"method,omitempty"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

type genericEscalation struct {
	Level  int       `json:"level"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type genericAlert struct {
	ID             string             `json:"id"`
	Status         alert.Status       `json:"status"`
	Priority       alert.Priority     `json:"priority"`
	RiskLevel      risk.Tier          `json:"riskLevel"`
	Satellites     [2]int             `json:"satellites"`
	Conjunction    genericConjunction `json:"conjunction"`
	CreatedAt      time.Time          `json:"createdAt"`
	Acknowledgment *genericAck        `json:"acknowledgment,omitempty"`
	Escalation     *genericEscalation `json:"escalation,omitempty"`
}

type genericEvent struct {
	Event     alert.EventType `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
	Alert     genericAlert    `json:"alert"`
}

func genericFor(e alert.Event, seq uint64) genericEvent {
	a := e.Alert
	c := a.Assessment

	out := genericEvent{
		Event:     e.Type,
		Timestamp: e.At.UTC(),
		Sequence:  seq,
		Alert: genericAlert{
			ID:         a.ID,
			Status:     a.Status,
			Priority:   a.Priority,
			RiskLevel:  c.Tier,
			Satellites: [2]int{c.IDA, c.IDB},
			Conjunction: genericConjunction{
				TCA:                  c.TCA.UTC(),
				MissKm:               c.MissKm,
				RelativeSpeedKmS:     c.RelSpeedKmS,
				CollisionProbability: c.Pc,
			},
			CreatedAt: a.CreatedAt,
		},
	}
	if a.Ack != nil {
		out.Alert.Acknowledgment = &genericAck{
			Who:    a.Ack.Who,
			Method: a.Ack.Method,
			Note:   a.Ack.Note,
			At:     a.Ack.At,
		}
	}
	if n := len(a.History); n > 0 {
		last := a.History[n-1]
		out.Alert.Escalation = &genericEscalation{
			Level:  last.Level,
			Reason: last.Reason,
			At:     last.At,
		}
	}
	return out
}

// Email message posted to the configured relay.

type emailMessage struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func emailFor(to []string, e alert.Event) emailMessage {
	a := e.Alert
	c := a.Assessment

	var b strings.Builder
	fmt.Fprintf(&b, "Conjunction alert %s\n\n", a.ID)
	fmt.Fprintf(&b, "Event:                %s\n", e.Type)
	fmt.Fprintf(&b, "Satellites:           %d / %d\n", c.IDA, c.IDB)
	fmt.Fprintf(&b, "Time of closest approach: %s\n", c.TCA.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Miss distance:        %.3f km\n", c.MissKm)
	fmt.Fprintf(&b, "Relative speed:       %.2f km/s\n", c.RelSpeedKmS)
	fmt.Fprintf(&b, "Collision probability: %.2e\n", c.Pc)
	fmt.Fprintf(&b, "Risk tier:            %s\n", c.Tier)
	fmt.Fprintf(&b, "Status:               %s\n", a.Status)
	fmt.Fprintf(&b, "Priority:             %s\n", a.Priority)
	if a.Level > 0 {
		fmt.Fprintf(&b, "Escalation level:     %d\n", a.Level)
	}
	if a.Ack != nil {
		fmt.Fprintf(&b, "Acknowledged by:      %s at %s\n", a.Ack.Who, a.Ack.At.UTC().Format(time.RFC3339))
	}

	return emailMessage{
		To:      to,
		Subject: fmt.Sprintf("[%s] Conjunction alert %d/%d", strings.ToUpper(string(a.Priority)), c.IDA, c.IDB),
		Body:    b.String(),
	}
}
