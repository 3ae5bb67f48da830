package escalate

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/record"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
)

// Sweeper periodically re-notifies open Critical alerts whose last firing
// is at least RepeatInterval in the past. It coordinates with the sampling
// scheduler only through the alert store, so both can run concurrently.
type Sweeper struct {
	store      *alerts.Store
	dispatcher *notify.Dispatcher
	executor   *remedy.Executor // nil when remediation is disabled
	recorder   record.Recorder
	repeat     time.Duration
	sweep      time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// New builds a sweeper. executor may be nil; escalations then notify
// without re-attempting remediation.
func New(store *alerts.Store, dispatcher *notify.Dispatcher, executor *remedy.Executor,
	recorder record.Recorder, repeat, sweep time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		executor:   executor,
		recorder:   recorder,
		repeat:     repeat,
		sweep:      sweep,
		logger:     logger,
		now:        time.Now,
	}
}

// Run sweeps until ctx is cancelled. It blocks; callers start it in its
// own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("escalate: sweeper started",
		"repeat_interval", s.repeat, "sweep_interval", s.sweep)
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("escalate: sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep claims and fires every due alert once. Claiming stamps the alert
// inside the store, so overlapping sweeps cannot double-fire.
func (s *Sweeper) Sweep(ctx context.Context) {
	due := s.store.ClaimEscalations(s.now(), s.repeat)
	for _, a := range due {
		s.fire(ctx, a)
	}
}

func (s *Sweeper) fire(ctx context.Context, a alerts.Alert) {
	metrics.Escalations.Inc()
	s.logger.Warn("escalate: alert still firing",
		"key", a.Key, "value", a.Value, "open_since", a.FirstObservedAt)

	ev := alerts.NewEvent(alerts.KindEscalated, a, s.now())
	s.recorder.RecordEvent(ev)
	s.dispatcher.Dispatch(ctx, ev)

	if s.executor == nil {
		return
	}
	at := s.executor.Attempt(ctx, a)
	s.recorder.RecordAttempt(at)
	if at.Outcome == remedy.Skipped {
		return
	}
	actionEv := alerts.ActionEvent(a, at.Action, at.Number, at.Outcome == remedy.Success, s.now())
	s.recorder.RecordEvent(actionEv)
	s.dispatcher.Dispatch(ctx, actionEv)
}
