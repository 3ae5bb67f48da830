package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/internal/rules"
)

// Status marks whether an alert is still open or has been resolved.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Alert is the mutable record of one unhealthy monitored key. An Alert
// exists only while its severity is above Normal; resolution removes it
// from the active set once the resolution event has been emitted.
type Alert struct {
	Key             string         `json:"key"`
	Severity        rules.Severity `json:"severity"`
	Value           float64        `json:"value"`
	Threshold       float64        `json:"threshold"`
	FirstObservedAt time.Time      `json:"first_observed_at"`
	LastObservedAt  time.Time      `json:"last_observed_at"`
	LastEscalatedAt time.Time      `json:"last_escalated_at"`
	Attempts        int            `json:"attempts"`
	Status          Status         `json:"status"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
}

// EventKind says why a notification event was emitted.
type EventKind string

const (
	KindRaised      EventKind = "raised"
	KindEscalated   EventKind = "escalated"
	KindDeescalated EventKind = "deescalated"
	KindResolved    EventKind = "resolved"
	KindActionTaken EventKind = "action_taken"
)

// Event is the notification payload handed to the dispatcher and the
// history recorder. Events are emitted, never stored by the engine itself.
type Event struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Severity  rules.Severity `json:"severity"`
	Kind      EventKind      `json:"kind"`
	Value     float64        `json:"value"`
	Threshold float64        `json:"threshold"`
	At        time.Time      `json:"at"`
	Message   string         `json:"message"`
}

// NewEvent builds an Event of the given kind from an alert snapshot.
// The message is rendered from the alert's fields; channel-specific
// formatting stays in the notify package.
func NewEvent(kind EventKind, a Alert, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Key:       a.Key,
		Severity:  a.Severity,
		Kind:      kind,
		Value:     a.Value,
		Threshold: a.Threshold,
		At:        at,
		Message:   renderMessage(kind, a),
	}
}

// ActionEvent builds an ActionTaken event describing a remediation attempt.
func ActionEvent(a Alert, action string, attempt int, succeeded bool, at time.Time) Event {
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	ev := NewEvent(KindActionTaken, a, at)
	ev.Message = fmt.Sprintf("[%s] %s: automatic action %q %s (attempt %d)",
		a.Severity, a.Key, action, outcome, attempt)
	return ev
}

func renderMessage(kind EventKind, a Alert) string {
	switch kind {
	case KindResolved:
		return fmt.Sprintf("[resolved] %s back to normal: value %.2f (open since %s)",
			a.Key, a.Value, a.FirstObservedAt.Format(time.RFC3339))
	case KindDeescalated:
		return fmt.Sprintf("[%s] %s stepped down: value %.2f, threshold %.2f (open since %s)",
			a.Severity, a.Key, a.Value, a.Threshold, a.FirstObservedAt.Format(time.RFC3339))
	case KindEscalated:
		return fmt.Sprintf("[%s] %s still firing: value %.2f, threshold %.2f (open since %s)",
			a.Severity, a.Key, a.Value, a.Threshold, a.FirstObservedAt.Format(time.RFC3339))
	default:
		return fmt.Sprintf("[%s] %s fired: value %.2f, threshold %.2f",
			a.Severity, a.Key, a.Value, a.Threshold)
	}
}
