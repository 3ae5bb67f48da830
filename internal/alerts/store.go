package alerts

import (
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/rules"
)

// TransitionKind classifies the outcome of applying one sample to the store.
type TransitionKind string

const (
	NoChange    TransitionKind = "no_change"
	Raised      TransitionKind = "raised"
	Escalated   TransitionKind = "escalated"
	Deescalated TransitionKind = "deescalated"
	Resolved    TransitionKind = "resolved"
)

// Transition is the result of ApplySample. Alert is a snapshot taken after
// the transition committed; for NoChange with no active alert it is zero.
type Transition struct {
	Kind  TransitionKind
	Alert Alert
}

// Store maps monitored keys to their active alerts and performs every state
// transition. Transitions on the same key are strictly ordered: each key has
// its own lock, so concurrent sampling cycles can never interleave two
// transitions on one key, while unrelated keys proceed in parallel. Reads
// for reporting take only the shared map lock plus per-entry locks.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// entry holds the alert slot and lock for a single key. The slot stays in
// the map after resolution (alert set to nil) so the per-key lock is stable;
// the entry count is bounded by the number of configured keys.
type entry struct {
	mu    sync.Mutex
	alert *Alert
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) entryFor(key string) *entry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &entry{}
	s.entries[key] = e
	return e
}

// ApplySample applies one evaluated sample to the key's alert state and
// returns the resulting transition. sev must be Normal, Warning, or
// Critical; Unknown samples never reach the store (callers drop them).
//
// The transition table:
//
//	no alert, Normal          → NoChange (nothing created)
//	no alert, Warning/Critical → Raised
//	alert, higher severity     → Escalated
//	alert, lower but > Normal  → Deescalated
//	alert, Normal              → Resolved (removed from active set)
//	alert, same severity       → NoChange (LastObservedAt refreshed)
func (s *Store) ApplySample(key string, sev rules.Severity, value, threshold float64, now time.Time) Transition {
	if sev == rules.Unknown {
		return Transition{Kind: NoChange}
	}

	e := s.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.alert
	switch {
	case a == nil && sev == rules.Normal:
		return Transition{Kind: NoChange}

	case a == nil:
		a = &Alert{
			Key:             key,
			Severity:        sev,
			Value:           value,
			Threshold:       threshold,
			FirstObservedAt: now,
			LastObservedAt:  now,
			LastEscalatedAt: now, // the raise notification counts as the first firing
			Status:          StatusOpen,
		}
		e.alert = a
		return Transition{Kind: Raised, Alert: *a}

	case sev == rules.Normal:
		resolved := now
		a.Severity = rules.Normal
		a.Value = value
		a.LastObservedAt = now
		a.Status = StatusResolved
		a.ResolvedAt = &resolved
		snap := *a
		e.alert = nil // retained only in the returned snapshot; history is the recorder's job
		return Transition{Kind: Resolved, Alert: snap}

	case sev > a.Severity:
		a.Severity = sev
		a.Value = value
		a.Threshold = threshold
		a.LastObservedAt = now
		a.LastEscalatedAt = now // escalation restarts the repeat cadence
		return Transition{Kind: Escalated, Alert: *a}

	case sev < a.Severity:
		a.Severity = sev
		a.Value = value
		a.Threshold = threshold
		a.LastObservedAt = now
		return Transition{Kind: Deescalated, Alert: *a}

	default:
		a.Value = value
		a.LastObservedAt = now
		return Transition{Kind: NoChange, Alert: *a}
	}
}

// ClaimEscalations returns snapshots of every open Critical alert whose last
// firing is at least repeat ago, stamping LastEscalatedAt in the same step.
// The stamp and the snapshot are atomic per key, so two overlapping sweeps
// can never double-fire the same alert.
func (s *Store) ClaimEscalations(now time.Time, repeat time.Duration) []Alert {
	var due []Alert
	for _, e := range s.snapshotEntries() {
		e.mu.Lock()
		a := e.alert
		if a != nil && a.Status == StatusOpen && a.Severity == rules.Critical &&
			now.Sub(a.LastEscalatedAt) >= repeat {
			a.LastEscalatedAt = now
			due = append(due, *a)
		}
		e.mu.Unlock()
	}
	return due
}

// BeginAttempt reserves one remediation attempt for the key's alert. It
// returns the attempt number (1-based) and true when the alert is open and
// under budget. The counter is incremented here, before any side-effecting
// call, so a slow or hanging action can never be re-reserved by a
// concurrent escalation firing.
func (s *Store) BeginAttempt(key string, maxAttempts int) (int, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.alert
	if a == nil || a.Status != StatusOpen || a.Attempts >= maxAttempts {
		return 0, false
	}
	a.Attempts++
	return a.Attempts, true
}

// Get returns a snapshot of the key's active alert, if any.
func (s *Store) Get(key string) (Alert, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Alert{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.alert == nil {
		return Alert{}, false
	}
	return *e.alert, true
}

// Active returns snapshots of all active alerts, in no particular order.
func (s *Store) Active() []Alert {
	var out []Alert
	for _, e := range s.snapshotEntries() {
		e.mu.Lock()
		if e.alert != nil {
			out = append(out, *e.alert)
		}
		e.mu.Unlock()
	}
	return out
}

// Stats summarizes the active set for the status API and internal health.
type Stats struct {
	Active     int            `json:"active"`
	BySeverity map[string]int `json:"by_severity"`
}

// Stats returns current active-alert counts by severity.
func (s *Store) Stats() Stats {
	st := Stats{BySeverity: make(map[string]int)}
	for _, a := range s.Active() {
		st.Active++
		st.BySeverity[a.Severity.String()]++
	}
	return st
}

func (s *Store) snapshotEntries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}
