package remedy

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
)

// ScriptInvoker runs operator-supplied commands for named actions, in the
// style of classic check/handler monitors. The alert's key, severity, and
// value are exported to the command's environment.
type ScriptInvoker struct {
	actions map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

// NewScriptInvoker builds an Invoker from the remediation action map.
func NewScriptInvoker(cfg config.RemediationConfig, logger *slog.Logger) *ScriptInvoker {
	timeout := time.Duration(cfg.ActionTimeout)
	if timeout <= 0 {
		timeout = config.DefaultActionTimeout
	}
	return &ScriptInvoker{actions: cfg.Actions, timeout: timeout, logger: logger}
}

// Invoke runs the command registered for action under the invoker's timeout.
func (s *ScriptInvoker) Invoke(ctx context.Context, action string, a alerts.Alert) error {
	command, ok := s.actions[action]
	if !ok {
		// Config validation rejects dangling action references, so this
		// only fires if an Executor is built from mismatched config.
		return fmt.Errorf("action %q has no command", action)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(cmd.Environ(),
		"PW_KEY="+a.Key,
		"PW_SEVERITY="+a.Severity.String(),
		fmt.Sprintf("PW_VALUE=%f", a.Value),
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("action %q: %w (output: %s)", action, err, trimOutput(out))
	}
	s.logger.Debug("remedy: action output", "action", action, "output", trimOutput(out))
	return nil
}

func trimOutput(out []byte) string {
	const max = 512
	if len(out) > max {
		out = out[:max]
	}
	return string(out)
}
