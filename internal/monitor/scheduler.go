package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/record"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
	"github.com/pulsewatch/pulsewatch/internal/rules"
)

// notifierKey is the internal alert raised when every notification
// channel's breaker is open at once. It shows up in the active set and the
// status API like any other alert.
const notifierKey = "pulsewatch/notifier"

// Scheduler drives the sampling loop. Each cycle fans the configured
// targets out to at most Workers concurrent probes, applies the results to
// the store, and reacts to the transitions that come back.
type Scheduler struct {
	targets    []config.Target
	collector  Collector
	store      *alerts.Store
	dispatcher *notify.Dispatcher
	executor   *remedy.Executor // nil when remediation is disabled
	recorder   record.Recorder
	logger     *slog.Logger

	interval time.Duration
	deadline time.Duration // zero disables the per-cycle deadline
	workers  int

	notifyDeescalation bool

	now func() time.Time
}

// Options carries the scheduler's tuning knobs out of the config.
type Options struct {
	Interval           time.Duration
	CycleDeadline      time.Duration
	Workers            int
	NotifyDeescalation bool
}

func NewScheduler(targets []config.Target, collector Collector, store *alerts.Store,
	dispatcher *notify.Dispatcher, executor *remedy.Executor, recorder record.Recorder,
	opts Options, logger *slog.Logger) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	return &Scheduler{
		targets:            targets,
		collector:          collector,
		store:              store,
		dispatcher:         dispatcher,
		executor:           executor,
		recorder:           recorder,
		logger:             logger,
		interval:           opts.Interval,
		deadline:           opts.CycleDeadline,
		workers:            workers,
		notifyDeescalation: opts.NotifyDeescalation,
		now:                time.Now,
	}
}

// Run samples on the configured cadence until ctx is cancelled. The first
// cycle starts immediately rather than one interval in.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("monitor: scheduler started",
		"targets", len(s.targets), "interval", s.interval, "workers", s.workers)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitor: scheduler stopped")
			return
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle probes every target once. Probes run concurrently, bounded by the
// worker limit; if the cycle deadline expires first, the stragglers are
// abandoned and their results discarded so the next cycle starts on time.
func (s *Scheduler) Cycle(ctx context.Context) {
	cycleCtx := ctx
	cancel := context.CancelFunc(func() {})
	if s.deadline > 0 {
		cycleCtx, cancel = context.WithTimeout(ctx, s.deadline)
	}
	defer cancel()

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
dispatchLoop:
	for _, t := range s.targets {
		select {
		case sem <- struct{}{}:
		case <-cycleCtx.Done():
			break dispatchLoop
		}
		wg.Add(1)
		go func(t config.Target) {
			defer wg.Done()
			defer func() { <-sem }()
			s.probe(cycleCtx, t)
		}(t)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-cycleCtx.Done():
		metrics.CyclesAbandoned.Inc()
		s.logger.Warn("monitor: cycle deadline hit, abandoning unfinished probes",
			"deadline", s.deadline)
	}

	metrics.Cycles.Inc()
	s.updateGauges()
	s.checkNotifier(ctx)
}

// probe fetches and evaluates one target. A failed or unparsable probe is
// an unknown observation: it is counted but never touches alert state, so
// one flaky collector cannot resolve or raise anything.
func (s *Scheduler) probe(ctx context.Context, t config.Target) {
	sample, err := s.collector.Collect(ctx, t)
	if err != nil {
		metrics.ProbeFailures.WithLabelValues(t.Key).Inc()
		metrics.Samples.WithLabelValues("unknown").Inc()
		s.logger.Warn("monitor: probe failed", "key", t.Key, "err", err)
		return
	}

	spec := t.Spec()
	sev := rules.Evaluate(sample.Value, spec)
	if sev == rules.Unknown {
		metrics.ProbeFailures.WithLabelValues(t.Key).Inc()
		metrics.Samples.WithLabelValues("unknown").Inc()
		s.logger.Warn("monitor: probe produced no usable value",
			"key", t.Key, "value", sample.Value)
		return
	}
	metrics.Samples.WithLabelValues(sev.String()).Inc()

	// Stragglers from an abandoned cycle should not commit. The check is
	// best-effort, not atomic with the deadline: a probe finishing in the
	// race window may still commit, which is safe because its sample was
	// observed within the cycle and the store serializes per key.
	if ctx.Err() != nil {
		return
	}

	tr := s.store.ApplySample(t.Key, sev, sample.Value, spec.Threshold(sev), s.now())
	s.react(ctx, tr)
}

func (s *Scheduler) react(ctx context.Context, tr alerts.Transition) {
	if tr.Kind == alerts.NoChange {
		return
	}
	metrics.Transitions.WithLabelValues(string(tr.Kind)).Inc()
	s.recorder.RecordTransition(tr)

	a := tr.Alert
	switch tr.Kind {
	case alerts.Raised:
		s.logger.Warn("monitor: alert raised",
			"key", a.Key, "severity", a.Severity, "value", a.Value, "threshold", a.Threshold)
		s.emit(ctx, alerts.NewEvent(alerts.KindRaised, a, s.now()))
		s.remediate(ctx, a)

	case alerts.Escalated:
		s.logger.Warn("monitor: alert escalated",
			"key", a.Key, "severity", a.Severity, "value", a.Value, "threshold", a.Threshold)
		s.emit(ctx, alerts.NewEvent(alerts.KindEscalated, a, s.now()))
		s.remediate(ctx, a)

	case alerts.Deescalated:
		s.logger.Info("monitor: alert stepped down",
			"key", a.Key, "severity", a.Severity, "value", a.Value)
		if s.notifyDeescalation {
			s.emit(ctx, alerts.NewEvent(alerts.KindDeescalated, a, s.now()))
		}

	case alerts.Resolved:
		s.logger.Info("monitor: alert resolved",
			"key", a.Key, "value", a.Value, "open_since", a.FirstObservedAt)
		s.emit(ctx, alerts.NewEvent(alerts.KindResolved, a, s.now()))
	}
}

func (s *Scheduler) emit(ctx context.Context, ev alerts.Event) {
	s.recorder.RecordEvent(ev)
	s.dispatcher.Dispatch(ctx, ev)
}

func (s *Scheduler) remediate(ctx context.Context, a alerts.Alert) {
	if s.executor == nil {
		return
	}
	at := s.executor.Attempt(ctx, a)
	s.recorder.RecordAttempt(at)
	if at.Outcome == remedy.Skipped {
		return
	}
	s.emit(ctx, alerts.ActionEvent(a, at.Action, at.Number, at.Outcome == remedy.Success, s.now()))
}

func (s *Scheduler) updateGauges() {
	stats := s.store.Stats()
	metrics.ActiveAlerts.WithLabelValues("warning").Set(float64(stats.BySeverity["warning"]))
	metrics.ActiveAlerts.WithLabelValues("critical").Set(float64(stats.BySeverity["critical"]))
}

// checkNotifier turns a fully degraded dispatcher (every channel breaker
// open) into an internal alert. The raise itself is not dispatched, since
// nothing could deliver it, but it is recorded and visible in the status
// API; the recovery resolution does go out.
func (s *Scheduler) checkNotifier(ctx context.Context) {
	if s.dispatcher.Degraded() {
		tr := s.store.ApplySample(notifierKey, rules.Critical, 1, 0, s.now())
		if tr.Kind == alerts.Raised {
			metrics.Transitions.WithLabelValues(string(tr.Kind)).Inc()
			s.recorder.RecordTransition(tr)
			s.recorder.RecordEvent(alerts.NewEvent(alerts.KindRaised, tr.Alert, s.now()))
			s.logger.Error("monitor: all notification channels failing")
		}
		return
	}
	tr := s.store.ApplySample(notifierKey, rules.Normal, 0, 0, s.now())
	if tr.Kind == alerts.Resolved {
		metrics.Transitions.WithLabelValues(string(tr.Kind)).Inc()
		s.recorder.RecordTransition(tr)
		s.emit(ctx, alerts.NewEvent(alerts.KindResolved, tr.Alert, s.now()))
		s.logger.Info("monitor: notification channels recovered")
	}
}
