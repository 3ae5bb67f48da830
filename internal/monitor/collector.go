package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/config"
)

// Sample is one observed value for a monitored key.
type Sample struct {
	Key        string
	Value      float64
	ObservedAt time.Time
}

// Collector fetches the current sample for one target. Implementations
// must honor ctx; the scheduler abandons fetches that outlive the cycle.
type Collector interface {
	Collect(ctx context.Context, t config.Target) (Sample, error)
}

// CommandCollector runs each target's probe command through the shell and
// parses a single float from its stdout. Probes are how external check
// scripts (disk usage, queue depth, synthetic checks) feed the engine.
type CommandCollector struct {
	// DefaultTimeout bounds probes that set no probe_timeout of their own.
	DefaultTimeout time.Duration

	now func() time.Time
}

func NewCommandCollector(defaultTimeout time.Duration) *CommandCollector {
	return &CommandCollector{DefaultTimeout: defaultTimeout, now: time.Now}
}

func (c *CommandCollector) Collect(ctx context.Context, t config.Target) (Sample, error) {
	if t.Probe == "" {
		return Sample{}, fmt.Errorf("monitor: target %q has no probe command", t.Key)
	}

	// A non-positive timeout means unbounded: cycle_deadline may be
	// disabled, in which case only ctx bounds the probe.
	timeout := time.Duration(t.ProbeTimeout)
	if timeout <= 0 {
		timeout = c.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, "sh", "-c", t.Probe).Output()
	if err != nil {
		return Sample{}, fmt.Errorf("monitor: probe %q: %w", t.Key, err)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("monitor: probe %q: parse output %q: %w",
			t.Key, strings.TrimSpace(string(out)), err)
	}
	return Sample{Key: t.Key, Value: v, ObservedAt: c.now()}, nil
}
