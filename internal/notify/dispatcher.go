package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/rules"
)

// Channel delivers one event to one destination. Implementations must be
// safe for concurrent use; Send should honor ctx cancellation.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev alerts.Event) error
}

// breaker settings shared by all channels: trip after three consecutive
// failures, probe again after a minute.
const (
	breakerTripAfter = 3
	breakerCooldown  = time.Minute
)

type guardedChannel struct {
	ch Channel
	cb *gobreaker.CircuitBreaker
}

// Dispatcher fans events out to every configured channel.
type Dispatcher struct {
	channels []*guardedChannel
	quiet    quietWindow
	logger   *slog.Logger
	now      func() time.Time // injectable for deterministic tests
}

// NewDispatcher wraps each channel in its own circuit breaker. The quiet
// configuration must already be validated (config.Load does this).
func NewDispatcher(channels []Channel, quiet config.QuietHoursConfig, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		quiet:  parseQuietWindow(quiet),
		logger: logger,
		now:    time.Now,
	}
	for _, ch := range channels {
		d.channels = append(d.channels, &guardedChannel{
			ch: ch,
			cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    ch.Name(),
				Timeout: breakerCooldown,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= breakerTripAfter
				},
			}),
		})
	}
	return d
}

// Dispatch delivers ev to all channels in parallel and returns when every
// delivery has finished or failed. One channel failing or hanging never
// affects another; callers that must not block run Dispatch in a goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, ev alerts.Event) {
	if d.suppressed(ev) {
		metrics.Suppressed.Inc()
		d.logger.Info("notify: suppressed by quiet hours",
			"key", ev.Key, "kind", ev.Kind, "severity", ev.Severity)
		return
	}

	var wg sync.WaitGroup
	for _, gc := range d.channels {
		wg.Add(1)
		go func(gc *guardedChannel) {
			defer wg.Done()
			d.send(ctx, gc, ev)
		}(gc)
	}
	wg.Wait()

	if d.Degraded() {
		metrics.DispatcherDegraded.Set(1)
	} else {
		metrics.DispatcherDegraded.Set(0)
	}
}

func (d *Dispatcher) send(ctx context.Context, gc *guardedChannel, ev alerts.Event) {
	_, err := gc.cb.Execute(func() (any, error) {
		return nil, gc.ch.Send(ctx, ev)
	})
	switch {
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		metrics.Notifications.WithLabelValues(gc.ch.Name(), "breaker_open").Inc()
		d.logger.Warn("notify: channel breaker open, skipping delivery",
			"channel", gc.ch.Name(), "key", ev.Key)
	case err != nil:
		metrics.Notifications.WithLabelValues(gc.ch.Name(), "failed").Inc()
		d.logger.Error("notify: delivery failed",
			"channel", gc.ch.Name(), "key", ev.Key, "kind", ev.Kind, "err", err)
	default:
		metrics.Notifications.WithLabelValues(gc.ch.Name(), "delivered").Inc()
		d.logger.Debug("notify: delivered",
			"channel", gc.ch.Name(), "key", ev.Key, "kind", ev.Kind)
	}
}

// Degraded reports whether every channel's breaker is currently open, i.e.
// no notification can be delivered anywhere. The scheduler feeds this back
// into the alert store as an internal health alert so a silent dispatcher
// is itself alarmed on.
func (d *Dispatcher) Degraded() bool {
	if len(d.channels) == 0 {
		return false
	}
	for _, gc := range d.channels {
		if gc.cb.State() != gobreaker.StateOpen {
			return false
		}
	}
	return true
}

// suppressed applies the quiet-hours policy: inside the window only a
// critical raise and any resolution go out. Escalations, warnings, and
// action notices wait for the window to close (state is unaffected).
func (d *Dispatcher) suppressed(ev alerts.Event) bool {
	if !d.quiet.enabled || !d.quiet.contains(d.now()) {
		return false
	}
	if ev.Kind == alerts.KindResolved {
		return false
	}
	if ev.Kind == alerts.KindRaised && ev.Severity == rules.Critical {
		return false
	}
	return true
}

// quietWindow is a daily window in minutes-of-day, possibly crossing midnight.
type quietWindow struct {
	enabled    bool
	start, end int
}

func parseQuietWindow(q config.QuietHoursConfig) quietWindow {
	if !q.Enabled() {
		return quietWindow{}
	}
	return quietWindow{enabled: true, start: minuteOfDay(q.Start), end: minuteOfDay(q.End)}
}

func minuteOfDay(hhmm string) int {
	t, _ := time.Parse("15:04", hhmm) // validated at config load
	return t.Hour()*60 + t.Minute()
}

func (w quietWindow) contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return m >= w.start && m < w.end
	}
	// Window crosses midnight, e.g. 22:00 to 07:00.
	return m >= w.start || m < w.end
}
