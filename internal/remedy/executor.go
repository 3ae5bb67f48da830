package remedy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
)

// Outcome classifies one remediation attempt.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
	Skipped Outcome = "skipped"
)

// Attempt is the discrete, recordable fact of one remediation invocation.
type Attempt struct {
	ID      string    `json:"id"`
	Key     string    `json:"key"`
	Action  string    `json:"action"`
	Number  int       `json:"number"` // 1-based; 0 for Skipped without reservation
	Outcome Outcome   `json:"outcome"`
	At      time.Time `json:"at"`
	Err     string    `json:"err,omitempty"`
}

// Invoker executes a named, idempotent-intent remediation operation.
// Implementations own their own timeouts and side effects.
type Invoker interface {
	Invoke(ctx context.Context, action string, a alerts.Alert) error
}

// Executor looks up and invokes the configured action for an alert,
// charging the alert's attempt budget through the store.
type Executor struct {
	targets map[string]config.Target
	store   *alerts.Store
	invoker Invoker
	max     int
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor builds an Executor over the configured targets.
func NewExecutor(targets []config.Target, store *alerts.Store, invoker Invoker, maxAttempts int, logger *slog.Logger) *Executor {
	byKey := make(map[string]config.Target, len(targets))
	for _, t := range targets {
		byKey[t.Key] = t
	}
	return &Executor{
		targets: byKey,
		store:   store,
		invoker: invoker,
		max:     maxAttempts,
		logger:  logger,
		now:     time.Now,
	}
}

// Attempt runs at most one remediation for the alert. No action configured
// for (key, severity) or an exhausted budget yields Skipped. An invocation
// failure yields Failure and still consumes the attempt; any retry happens
// only on a later escalation firing, against the remaining budget.
func (e *Executor) Attempt(ctx context.Context, a alerts.Alert) Attempt {
	at := Attempt{ID: uuid.NewString(), Key: a.Key, At: e.now()}

	target, ok := e.targets[a.Key]
	if !ok {
		at.Outcome = Skipped
		return at
	}
	action := target.ActionFor(a.Severity)
	if action == "" {
		at.Outcome = Skipped
		return at
	}
	at.Action = action

	n, ok := e.store.BeginAttempt(a.Key, e.max)
	if !ok {
		at.Outcome = Skipped
		e.logger.Info("remedy: attempt budget exhausted",
			"key", a.Key, "action", action, "max_attempts", e.max)
		metrics.RemediationAttempts.WithLabelValues(string(Skipped)).Inc()
		return at
	}
	at.Number = n

	e.logger.Info("remedy: invoking action",
		"key", a.Key, "action", action, "attempt", n, "max_attempts", e.max)

	if err := e.invoker.Invoke(ctx, action, a); err != nil {
		at.Outcome = Failure
		at.Err = err.Error()
		e.logger.Error("remedy: action failed",
			"key", a.Key, "action", action, "attempt", n, "err", err)
	} else {
		at.Outcome = Success
	}
	metrics.RemediationAttempts.WithLabelValues(string(at.Outcome)).Inc()
	return at
}
