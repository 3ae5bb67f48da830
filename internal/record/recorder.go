package record

import (
	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
)

// Recorder receives the engine's history stream. Implementations must never
// block the caller and must swallow (log, count) their own failures.
type Recorder interface {
	RecordTransition(tr alerts.Transition)
	RecordEvent(ev alerts.Event)
	RecordAttempt(at remedy.Attempt)
	Close() error
}

// Nop discards everything. Used when no history path is configured.
type Nop struct{}

func (Nop) RecordTransition(alerts.Transition) {}
func (Nop) RecordEvent(alerts.Event)           {}
func (Nop) RecordAttempt(remedy.Attempt)       {}
func (Nop) Close() error                       { return nil }
