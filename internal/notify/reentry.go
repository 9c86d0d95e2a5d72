package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

// reentryTier maps a re-entry status onto the risk-tier vocabulary the
// endpoint filters speak: critical→critical, warning→high, elevated→moderate.
func reentryTier(s reentry.Status) risk.Tier {
	switch s {
	case reentry.StatusCritical:
		return risk.TierCritical
	case reentry.StatusWarning:
		return risk.TierHigh
	case reentry.StatusElevated:
		return risk.TierModerate
	default:
		return risk.TierLow
	}
}

// matchesReentry applies the endpoint filter to a re-entry event. Priority
// and distance gates are conjunction concepts and do not apply here.
func (f Filter) matchesReentry(tier risk.Tier, noradID int) bool {
	if len(f.RiskTiers) > 0 && !containsString(f.RiskTiers, string(tier)) {
		return false
	}
	if len(f.SatelliteIDs) > 0 && !containsInt(f.SatelliteIDs, noradID) {
		return false
	}
	return true
}

// HandleReentryEvent enqueues a re-entry lifecycle event for every enabled
// endpoint whose filters match. It satisfies the registry's sink signature.
func (n *Notifier) HandleReentryEvent(e reentry.Event) {
	tier := reentryTier(e.Prediction.Status)
	for _, r := range n.runners {
		if !r.ep.Enabled || !r.ep.Filters.matchesReentry(tier, e.Prediction.NoradID) {
			continue
		}
		body, err := buildReentryPayload(r.ep, e, tier, n.seq.Add(1))
		if err != nil {
			n.logger.Error("reentry payload build failed", "endpoint", r.ep.ID, "error", err)
			continue
		}
		// No alert id: re-entry events have their own lifecycle and no
		// per-alert dispatch record.
		j := job{event: alert.EventType(e.Type), body: body, enqueuedAt: n.now()}
		select {
		case r.queue <- j:
		default:
			n.finish(r, j, OutcomeFailed, 0, errQueueFull, 0)
		}
	}
}

func buildReentryPayload(ep Endpoint, e reentry.Event, tier risk.Tier, seq uint64) ([]byte, error) {
	switch ep.Type {
	case TypeSlack:
		return json.Marshal(slackForReentry(e))
	case TypePagerDuty:
		return json.Marshal(pagerDutyForReentry(ep.RoutingKey, e, tier))
	case TypeEmail:
		return json.Marshal(emailForReentry(ep.To, e))
	default:
		return json.Marshal(genericForReentry(e, tier, seq))
	}
}

func slackForReentry(e reentry.Event) slackMessage {
	p := e.Prediction
	headline := fmt.Sprintf("%s re-entry alert: %s (NORAD %d)",
		strings.ToUpper(string(p.Status)), p.Name, p.NoradID)

	mrkdwn := func(s string) slackText { return slackText{Type: "mrkdwn", Text: s} }
	fields := []slackText{
		mrkdwn(fmt.Sprintf("*Object*\n%s (NORAD %d)", p.Name, p.NoradID)),
		mrkdwn(fmt.Sprintf("*Altitude*\n%.1f km", p.AltitudeKm)),
		mrkdwn(fmt.Sprintf("*Decay rate*\n%.2f km/day", p.DecayRateKmDay)),
		mrkdwn(fmt.Sprintf("*Days to re-entry*\n%.1f", p.DaysToReentry)),
		mrkdwn(fmt.Sprintf("*Predicted re-entry*\n%s", p.PredictedReentry.UTC().Format(time.RFC3339))),
		mrkdwn(fmt.Sprintf("*Confidence*\n%s", p.Confidence)),
	}
	if p.Uncontrolled.IsUncontrolled {
		fields = append(fields, mrkdwn(fmt.Sprintf("*Uncontrolled*\n%s",
			strings.Join(p.Uncontrolled.Reasons, "; "))))
	}

	return slackMessage{
		Text: headline,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: headline, Emoji: true}},
			{Type: "section", Fields: fields},
			{Type: "context", Elements: []slackText{
				mrkdwn(fmt.Sprintf("event %s | norad %d", e.Type, p.NoradID)),
			}},
		},
	}
}

func pagerDutyForReentry(routingKey string, e reentry.Event, tier risk.Tier) pagerDutyEvent {
	p := e.Prediction

	action := "trigger"
	if e.Type == reentry.EventResolved {
		action = "resolve"
	}

	return pagerDutyEvent{
		RoutingKey:  routingKey,
		EventAction: action,
		DedupKey:    fmt.Sprintf("reentry-%d", p.NoradID),
		Payload: pagerDutyPayload{
			Summary: fmt.Sprintf("Re-entry %s: %s (NORAD %d), %.1f days, %.2f km/day",
				p.Status, p.Name, p.NoradID, p.DaysToReentry, p.DecayRateKmDay),
			Source:    "astrashield",
			Severity:  tier,
			Timestamp: e.At.UTC().Format(time.RFC3339),
			CustomDetails: map[string]any{
				"altitude_km":       p.AltitudeKm,
				"decay_rate_km_day": p.DecayRateKmDay,
				"days_to_reentry":   p.DaysToReentry,
				"is_uncontrolled":   p.Uncontrolled.IsUncontrolled,
				"reasons":           p.Uncontrolled.Reasons,
			},
		},
	}
}

type genericReentryEvent struct {
	Event      string             `json:"event"`
	Timestamp  time.Time          `json:"timestamp"`
	Sequence   uint64             `json:"sequence"`
	RiskLevel  risk.Tier          `json:"riskLevel"`
	Prediction reentry.Prediction `json:"reentry"`
}

func genericForReentry(e reentry.Event, tier risk.Tier, seq uint64) genericReentryEvent {
	return genericReentryEvent{
		Event:      string(e.Type),
		Timestamp:  e.At.UTC(),
		Sequence:   seq,
		RiskLevel:  tier,
		Prediction: e.Prediction,
	}
}

func emailForReentry(to []string, e reentry.Event) emailMessage {
	p := e.Prediction
	body := fmt.Sprintf(
		"Re-entry status for %s (NORAD %d) is %s.\n\n"+
			"Altitude: %.1f km\nDecay rate: %.2f km/day\nDays to re-entry: %.1f\n"+
			"Predicted re-entry: %s\nConfidence: %s\n",
		p.Name, p.NoradID, p.Status,
		p.AltitudeKm, p.DecayRateKmDay, p.DaysToReentry,
		p.PredictedReentry.UTC().Format(time.RFC3339), p.Confidence)
	if p.Uncontrolled.IsUncontrolled {
		body += "\nUncontrolled re-entry indicators:\n - " +
			strings.Join(p.Uncontrolled.Reasons, "\n - ") + "\n"
	}
	return emailMessage{
		To:      to,
		Subject: fmt.Sprintf("[AstraShield] Re-entry %s: %s (NORAD %d)", p.Status, p.Name, p.NoradID),
		Body:    body,
	}
}
