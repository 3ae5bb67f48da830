package config

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/pulsewatch/pulsewatch/internal/rules"
)

// Defaults applied by Load when the corresponding field is absent.
const (
	DefaultInterval       = 60 * time.Second
	DefaultCycleDeadline  = 45 * time.Second
	DefaultWorkers        = 8
	DefaultRepeatInterval = 15 * time.Minute
	DefaultSweepInterval  = 60 * time.Second
	DefaultMaxAttempts    = 3
	DefaultListenAddr     = ":8080"
	DefaultActionTimeout  = 30 * time.Second
	DefaultChannelTimeout = 10 * time.Second
)

// Config is the root of config.yaml.
type Config struct {
	// Interval is the sampling cycle cadence.
	Interval model.Duration `yaml:"interval"`

	// CycleDeadline bounds one whole sampling cycle. Workers still running
	// at the deadline are abandoned so the cadence holds. Zero disables it.
	CycleDeadline model.Duration `yaml:"cycle_deadline"`

	// Workers bounds how many targets are probed concurrently per cycle.
	Workers int `yaml:"workers"`

	// ListenAddr is the HTTP status/metrics listen address.
	ListenAddr string `yaml:"listen_addr"`

	// Targets lists the monitored keys with their thresholds.
	Targets []Target `yaml:"targets"`

	// Escalation controls re-firing of unresolved critical alerts.
	Escalation EscalationConfig `yaml:"escalation"`

	// Remediation controls bounded automatic actions.
	Remediation RemediationConfig `yaml:"remediation"`

	// QuietHours suppresses non-critical notification delivery in a window.
	QuietHours QuietHoursConfig `yaml:"quiet_hours"`

	// Channels lists notification delivery targets.
	Channels []ChannelConfig `yaml:"channels"`

	// NotifyDeescalation re-notifies when a critical alert steps down to
	// warning without resolving. Default off: deescalation is logged only.
	NotifyDeescalation bool `yaml:"notify_deescalation"`

	// HistoryPath is the SQLite file for transition/event/attempt history.
	// Empty disables persistence.
	HistoryPath string `yaml:"history_path"`
}

// Target is one monitored key.
type Target struct {
	// Key is the stable identifier for the metric or probe.
	Key string `yaml:"key"`

	// Probe is the check command executed to fetch a sample; its stdout
	// must be a single float. Run through "sh -c".
	Probe string `yaml:"probe"`

	// ProbeTimeout bounds one probe run. Defaults to the cycle deadline.
	ProbeTimeout model.Duration `yaml:"probe_timeout"`

	Warning   float64         `yaml:"warning"`
	Critical  float64         `yaml:"critical"`
	Direction rules.Direction `yaml:"direction"`

	// Action names the remediation action invoked when this key goes
	// critical. Empty means no automatic action.
	Action string `yaml:"action"`

	// WarningAction optionally names an action for the warning level.
	WarningAction string `yaml:"warning_action"`
}

// Spec returns the target's threshold spec.
func (t Target) Spec() rules.ThresholdSpec {
	return rules.ThresholdSpec{Warning: t.Warning, Critical: t.Critical, Direction: t.Direction}
}

// ActionFor returns the configured action name for a severity, if any.
func (t Target) ActionFor(sev rules.Severity) string {
	switch sev {
	case rules.Critical:
		return t.Action
	case rules.Warning:
		return t.WarningAction
	default:
		return ""
	}
}

// EscalationConfig controls the escalation sweeper.
type EscalationConfig struct {
	// RepeatInterval is how often an unresolved critical alert re-fires.
	RepeatInterval model.Duration `yaml:"repeat_interval"`

	// SweepInterval is the sweeper's own cadence, a fraction of
	// RepeatInterval so firings land close to their due time.
	SweepInterval model.Duration `yaml:"sweep_interval"`
}

// RemediationConfig controls automatic remediation.
type RemediationConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxAttempts caps automatic invocations per alert lifecycle. The
	// counter resets only when an alert resolves and is raised afresh.
	MaxAttempts int `yaml:"max_attempts"`

	// ActionTimeout bounds one action invocation.
	ActionTimeout model.Duration `yaml:"action_timeout"`

	// Actions maps action names to the commands that implement them,
	// e.g. restart_services: "systemctl restart app". Run through "sh -c".
	Actions map[string]string `yaml:"actions"`
}

// QuietHoursConfig is a daily suppression window in the engine's local time.
// Inside the window only critical raise and resolution events are delivered.
// The window may cross midnight ("22:00" to "07:00"). Empty disables it.
type QuietHoursConfig struct {
	Start string `yaml:"start"` // "HH:MM"
	End   string `yaml:"end"`   // "HH:MM"
}

// Enabled reports whether a window is configured.
func (q QuietHoursConfig) Enabled() bool { return q.Start != "" || q.End != "" }

// ChannelConfig defines one notification delivery target.
type ChannelConfig struct {
	// Type is one of: log | webhook | slack | teams | email.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL
	// (webhook, slack, teams).
	URLEnv string `yaml:"url_env"`

	// Timeout bounds one delivery. Defaults to 10s.
	Timeout model.Duration `yaml:"timeout"`

	// SMTP delivery settings (email).
	SMTPHost    string   `yaml:"smtp_host"`
	SMTPPort    int      `yaml:"smtp_port"`
	From        string   `yaml:"from"`
	Recipients  []string `yaml:"recipients"`
	UserEnv     string   `yaml:"user_env"`
	PasswordEnv string   `yaml:"password_env"`
}

// URL returns the webhook URL resolved from the environment.
func (c ChannelConfig) URL() string {
	if c.URLEnv == "" {
		return ""
	}
	return os.Getenv(c.URLEnv)
}

// SMTPUser returns the SMTP username resolved from the environment.
func (c ChannelConfig) SMTPUser() string {
	if c.UserEnv == "" {
		return ""
	}
	return os.Getenv(c.UserEnv)
}

// SMTPPassword returns the SMTP password resolved from the environment.
func (c ChannelConfig) SMTPPassword() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation; any validation failure is fatal here so
// threshold ordering or window format can never fail at runtime.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses raw YAML. Split from Load for tests.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Interval:      model.Duration(DefaultInterval),
		CycleDeadline: model.Duration(DefaultCycleDeadline),
		Workers:       DefaultWorkers,
		ListenAddr:    DefaultListenAddr,
		Escalation: EscalationConfig{
			RepeatInterval: model.Duration(DefaultRepeatInterval),
			SweepInterval:  model.Duration(DefaultSweepInterval),
		},
		Remediation: RemediationConfig{
			MaxAttempts:   DefaultMaxAttempts,
			ActionTimeout: model.Duration(DefaultActionTimeout),
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.Escalation.RepeatInterval <= 0 {
		return fmt.Errorf("escalation.repeat_interval must be positive")
	}
	if cfg.Escalation.SweepInterval <= 0 {
		return fmt.Errorf("escalation.sweep_interval must be positive")
	}
	if cfg.Remediation.MaxAttempts < 0 {
		return fmt.Errorf("remediation.max_attempts must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if t.Key == "" {
			return fmt.Errorf("targets[%d]: key is required", i)
		}
		if seen[t.Key] {
			return fmt.Errorf("targets[%d]: duplicate key %q", i, t.Key)
		}
		seen[t.Key] = true
		if t.Direction == "" {
			t.Direction = rules.Above
			cfg.Targets[i].Direction = rules.Above
		}
		if err := t.Spec().Validate(); err != nil {
			return fmt.Errorf("target %q: %w", t.Key, err)
		}
		for _, action := range []string{t.Action, t.WarningAction} {
			if action == "" {
				continue
			}
			if _, ok := cfg.Remediation.Actions[action]; !ok {
				return fmt.Errorf("target %q: action %q is not defined under remediation.actions", t.Key, action)
			}
		}
	}

	if cfg.QuietHours.Enabled() {
		for _, v := range []string{cfg.QuietHours.Start, cfg.QuietHours.End} {
			if _, err := time.Parse("15:04", v); err != nil {
				return fmt.Errorf("quiet_hours: %q is not HH:MM", v)
			}
		}
	}

	for i, ch := range cfg.Channels {
		switch ch.Type {
		case "log":
		case "webhook", "slack", "teams":
			if ch.URLEnv == "" {
				return fmt.Errorf("channels[%d] (%s): url_env is required", i, ch.Type)
			}
		case "email":
			if ch.SMTPHost == "" || ch.From == "" || len(ch.Recipients) == 0 {
				return fmt.Errorf("channels[%d] (email): smtp_host, from, and recipients are required", i)
			}
		default:
			return fmt.Errorf("channels[%d]: type %q unknown: want log|webhook|slack|teams|email", i, ch.Type)
		}
	}

	return nil
}
