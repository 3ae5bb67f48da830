package rules

import (
	"fmt"
	"math"
)

// Severity is the ordered health classification of a monitored key.
// Normal < Warning < Critical. Unknown sits outside the order and marks a
// sample that could not be evaluated; it never produces a state transition.
type Severity int

const (
	Unknown Severity = iota - 1
	Normal
	Warning
	Critical
)

// MarshalJSON renders the severity as its lowercase name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// String returns the lowercase name used in logs, events, and the API.
func (s Severity) String() string {
	switch s {
	case Normal:
		return "normal"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Direction selects which side of a threshold is unhealthy.
type Direction string

const (
	// Above fires when the value rises to or past a threshold (CPU %, latency).
	Above Direction = "above"
	// Below fires when the value falls to or past a threshold (free disk, uptime %).
	Below Direction = "below"
)

// ThresholdSpec holds the configured warning and critical bounds for one
// monitored key. Warning must be strictly less extreme than Critical in the
// configured direction; Validate enforces this at startup.
type ThresholdSpec struct {
	Warning   float64
	Critical  float64
	Direction Direction
}

// Validate checks threshold ordering. It is called once at config load;
// a spec that passes Validate can never make Evaluate misbehave at runtime.
func (t ThresholdSpec) Validate() error {
	switch t.Direction {
	case Above:
		if t.Warning >= t.Critical {
			return fmt.Errorf("warning %v must be below critical %v for direction above", t.Warning, t.Critical)
		}
	case Below:
		if t.Warning <= t.Critical {
			return fmt.Errorf("warning %v must be above critical %v for direction below", t.Warning, t.Critical)
		}
	default:
		return fmt.Errorf("direction %q unknown: want above|below", t.Direction)
	}
	return nil
}

// Threshold returns the bound that applies at the given severity, for
// message rendering. Normal and Unknown map to the warning bound.
func (t ThresholdSpec) Threshold(s Severity) float64 {
	if s == Critical {
		return t.Critical
	}
	return t.Warning
}

// Evaluate classifies value against spec. Bounds are inclusive: a value
// sitting exactly on a threshold resolves to the more severe bucket.
// NaN values are Unknown; the caller must treat them as "no observation",
// not as Normal.
func Evaluate(value float64, spec ThresholdSpec) Severity {
	if math.IsNaN(value) {
		return Unknown
	}
	switch spec.Direction {
	case Below:
		if value <= spec.Critical {
			return Critical
		}
		if value <= spec.Warning {
			return Warning
		}
	default: // Above
		if value >= spec.Critical {
			return Critical
		}
		if value >= spec.Warning {
			return Warning
		}
	}
	return Normal
}
