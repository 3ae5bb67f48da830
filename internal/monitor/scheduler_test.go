package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/record"
	"github.com/pulsewatch/pulsewatch/internal/rules"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeCollector serves canned values, errors, or hangs per key.
type fakeCollector struct {
	mu     sync.Mutex
	values map[string]float64
	errs   map[string]error
	block  map[string]chan struct{} // Collect waits on the channel if present
}

func (f *fakeCollector) Collect(ctx context.Context, t config.Target) (Sample, error) {
	f.mu.Lock()
	blocker := f.block[t.Key]
	err := f.errs[t.Key]
	v := f.values[t.Key]
	f.mu.Unlock()

	if blocker != nil {
		select {
		case <-blocker:
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		}
	}
	if err != nil {
		return Sample{}, err
	}
	return Sample{Key: t.Key, Value: v, ObservedAt: time.Now()}, nil
}

func (f *fakeCollector) set(key string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = v
}

type captureChannel struct {
	mu     sync.Mutex
	events []alerts.Event
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(_ context.Context, ev alerts.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureChannel) kinds() []alerts.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]alerts.EventKind, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Kind
	}
	return out
}

func target(key string) config.Target {
	return config.Target{Key: key, Warning: 75, Critical: 85}
}

func newTestScheduler(targets []config.Target, fc *fakeCollector, ch *captureChannel, opts Options) (*Scheduler, *alerts.Store) {
	st := alerts.NewStore()
	var channels []notify.Channel
	if ch != nil {
		channels = []notify.Channel{ch}
	}
	d := notify.NewDispatcher(channels, config.QuietHoursConfig{}, discard())
	if opts.Interval == 0 {
		opts.Interval = time.Minute
	}
	s := NewScheduler(targets, fc, st, d, nil, record.Nop{}, opts, discard())
	return s, st
}

func TestCycle_Lifecycle(t *testing.T) {
	fc := &fakeCollector{values: map[string]float64{"cpu": 70}}
	ch := &captureChannel{}
	s, st := newTestScheduler([]config.Target{target("cpu")}, fc, ch, Options{})
	ctx := context.Background()

	// 70 raises a warning, 86 escalates, 60 resolves.
	s.Cycle(ctx)
	a, ok := st.Get("cpu")
	if !ok || a.Severity != rules.Warning {
		t.Fatalf("after 70: alert %+v ok=%v, want open warning", a, ok)
	}

	fc.set("cpu", 86)
	s.Cycle(ctx)
	if a, _ := st.Get("cpu"); a.Severity != rules.Critical {
		t.Fatalf("after 86: severity %v, want critical", a.Severity)
	}

	fc.set("cpu", 60)
	s.Cycle(ctx)
	if _, ok := st.Get("cpu"); ok {
		t.Fatal("after 60: alert still active, want resolved and removed")
	}

	want := []alerts.EventKind{alerts.KindRaised, alerts.KindEscalated, alerts.KindResolved}
	got := ch.kinds()
	if len(got) != len(want) {
		t.Fatalf("dispatched kinds: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCycle_ProbeFailureLeavesStateUntouched(t *testing.T) {
	fc := &fakeCollector{values: map[string]float64{"cpu": 90}, errs: map[string]error{}}
	s, st := newTestScheduler([]config.Target{target("cpu")}, fc, nil, Options{})
	ctx := context.Background()

	s.Cycle(ctx)
	if _, ok := st.Get("cpu"); !ok {
		t.Fatal("setup: alert not raised")
	}

	// A failing probe must not resolve the open alert.
	fc.mu.Lock()
	fc.errs["cpu"] = errors.New("probe: connection refused")
	fc.mu.Unlock()
	s.Cycle(ctx)
	if a, ok := st.Get("cpu"); !ok || a.Status != alerts.StatusOpen {
		t.Errorf("after failed probe: alert %+v ok=%v, want still open", a, ok)
	}
}

func TestCycle_OneKeyFailingDoesNotAffectOthers(t *testing.T) {
	fc := &fakeCollector{
		values: map[string]float64{"cpu": 90, "mem": 50},
		errs:   map[string]error{"disk": errors.New("probe: timeout")},
	}
	targets := []config.Target{target("cpu"), target("disk"), target("mem")}
	s, st := newTestScheduler(targets, fc, nil, Options{})

	s.Cycle(context.Background())
	if a, ok := st.Get("cpu"); !ok || a.Severity != rules.Critical {
		t.Errorf("cpu: alert %+v ok=%v, want critical despite disk failing", a, ok)
	}
	if _, ok := st.Get("mem"); ok {
		t.Error("mem: unexpected alert for a normal value")
	}
	if _, ok := st.Get("disk"); ok {
		t.Error("disk: failed probe raised an alert")
	}
}

func TestCycle_DeadlineAbandonsStragglers(t *testing.T) {
	blocker := make(chan struct{})
	defer close(blocker)
	fc := &fakeCollector{
		values: map[string]float64{"cpu": 90},
		block:  map[string]chan struct{}{"slow": blocker},
	}
	targets := []config.Target{target("slow"), target("cpu")}
	s, st := newTestScheduler(targets, fc, nil, Options{
		CycleDeadline: 100 * time.Millisecond,
		Workers:       2,
	})

	start := time.Now()
	s.Cycle(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cycle did not respect its deadline: took %v", elapsed)
	}
	// The healthy key's transition committed; the hung key produced nothing.
	if a, ok := st.Get("cpu"); !ok || a.Severity != rules.Critical {
		t.Errorf("cpu: alert %+v ok=%v, want critical", a, ok)
	}
	if _, ok := st.Get("slow"); ok {
		t.Error("slow: abandoned probe committed a transition")
	}
}

func TestCycle_DeescalationNotifyFlag(t *testing.T) {
	for _, notifyFlag := range []bool{false, true} {
		fc := &fakeCollector{values: map[string]float64{"cpu": 90}}
		ch := &captureChannel{}
		s, _ := newTestScheduler([]config.Target{target("cpu")}, fc, ch,
			Options{NotifyDeescalation: notifyFlag})
		ctx := context.Background()

		s.Cycle(ctx) // raise critical
		fc.set("cpu", 80)
		s.Cycle(ctx) // step down to warning

		got := ch.kinds()
		if notifyFlag {
			if len(got) != 2 || got[1] != alerts.KindDeescalated {
				t.Errorf("notify on: kinds %v, want [raised deescalated]", got)
			}
		} else {
			if len(got) != 1 {
				t.Errorf("notify off: kinds %v, want [raised] only", got)
			}
		}
	}
}

func TestCycle_DegradedDispatcherRaisesInternalAlert(t *testing.T) {
	failing := &failingChannel{}
	st := alerts.NewStore()
	d := notify.NewDispatcher([]notify.Channel{failing}, config.QuietHoursConfig{}, discard())
	fc := &fakeCollector{values: map[string]float64{"cpu": 90}}
	s := NewScheduler([]config.Target{target("cpu")}, fc, st, d, nil, record.Nop{},
		Options{Interval: time.Minute}, discard())
	ctx := context.Background()

	// The raise plus escalation checks push the channel past its breaker
	// threshold; repeated critical samples keep the alert open while the
	// breaker trips.
	for i := 0; i < 4; i++ {
		fc.set("cpu", 90+float64(i))
		s.Cycle(ctx)
		// force fresh raises so each cycle dispatches
		fc.set("cpu", 10)
		s.Cycle(ctx)
	}
	if !d.Degraded() {
		t.Fatal("setup: dispatcher not degraded after repeated failures")
	}

	s.Cycle(ctx)
	if a, ok := st.Get(notifierKey); !ok || a.Severity != rules.Critical {
		t.Errorf("internal alert: %+v ok=%v, want critical %q", a, ok, notifierKey)
	}
}

type failingChannel struct{}

func (failingChannel) Name() string { return "failing" }

func (failingChannel) Send(context.Context, alerts.Event) error {
	return errors.New("send: 502 Bad Gateway")
}

func TestRun_StopsOnCancel(t *testing.T) {
	fc := &fakeCollector{values: map[string]float64{"cpu": 10}}
	s, _ := newTestScheduler([]config.Target{target("cpu")}, fc, nil,
		Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
