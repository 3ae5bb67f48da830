package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/rules"
)

// BuildChannels constructs delivery channels from configuration. Channel
// config has already been validated; this only resolves env-held secrets
// and builds HTTP clients.
func BuildChannels(cfgs []config.ChannelConfig, logger *slog.Logger) []Channel {
	var out []Channel
	for _, c := range cfgs {
		timeout := time.Duration(c.Timeout)
		if timeout <= 0 {
			timeout = config.DefaultChannelTimeout
		}
		switch c.Type {
		case "log":
			out = append(out, &logChannel{logger: logger})
		case "webhook":
			out = append(out, &webhookChannel{name: "webhook", url: c.URL(), client: &http.Client{Timeout: timeout}})
		case "slack":
			out = append(out, &slackChannel{webhookChannel{name: "slack", url: c.URL(), client: &http.Client{Timeout: timeout}}})
		case "teams":
			out = append(out, &teamsChannel{webhookChannel{name: "teams", url: c.URL(), client: &http.Client{Timeout: timeout}}})
		case "email":
			out = append(out, &emailChannel{cfg: c, timeout: timeout})
		}
	}
	return out
}

// severityLabel renders the bracketed label used across channel payloads.
func severityLabel(s rules.Severity) string {
	return "[" + strings.ToUpper(s.String()) + "]"
}

func severityColor(s rules.Severity) string {
	switch s {
	case rules.Critical:
		return "#FF4F6A"
	case rules.Warning:
		return "#FFAB40"
	default:
		return "#00D4FF"
	}
}

// logChannel writes events to the structured log. It never fails, which
// also makes it the delivery of last resort while webhooks are down.
type logChannel struct {
	logger *slog.Logger
}

func (c *logChannel) Name() string { return "log" }

func (c *logChannel) Send(_ context.Context, ev alerts.Event) error {
	log := c.logger.Info
	if ev.Severity == rules.Critical && ev.Kind != alerts.KindResolved {
		log = c.logger.Error
	} else if ev.Severity == rules.Warning && ev.Kind != alerts.KindResolved {
		log = c.logger.Warn
	}
	log("notification",
		"key", ev.Key,
		"kind", ev.Kind,
		"severity", ev.Severity,
		"value", ev.Value,
		"threshold", ev.Threshold,
		"message", ev.Message,
	)
	return nil
}

// webhookChannel POSTs the raw event as JSON to a generic HTTP endpoint.
type webhookChannel struct {
	name   string
	url    string
	client *http.Client
}

func (c *webhookChannel) Name() string { return c.name }

func (c *webhookChannel) Send(ctx context.Context, ev alerts.Event) error {
	body, _ := json.Marshal(map[string]any{"event": ev})
	return c.post(ctx, body)
}

func (c *webhookChannel) post(ctx context.Context, body []byte) error {
	if c.url == "" {
		return fmt.Errorf("%s: webhook url not set in environment", c.name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// slackChannel formats events as Slack incoming-webhook messages.
type slackChannel struct {
	webhookChannel
}

func (c *slackChannel) Send(ctx context.Context, ev alerts.Event) error {
	body, _ := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*%s* %s", severityLabel(ev.Severity), ev.Message),
		"attachments": []map[string]any{{
			"color": severityColor(ev.Severity),
			"fields": []map[string]any{
				{"title": "Key", "value": ev.Key, "short": true},
				{"title": "Value", "value": fmt.Sprintf("%.2f", ev.Value), "short": true},
				{"title": "Threshold", "value": fmt.Sprintf("%.2f", ev.Threshold), "short": true},
				{"title": "Kind", "value": string(ev.Kind), "short": true},
			},
		}},
	})
	return c.post(ctx, body)
}

// teamsChannel formats events as Teams MessageCards.
type teamsChannel struct {
	webhookChannel
}

func (c *teamsChannel) Send(ctx context.Context, ev alerts.Event) error {
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": strings.TrimPrefix(severityColor(ev.Severity), "#"),
		"summary":    ev.Key,
		"title":      fmt.Sprintf("pulsewatch: %s %s", ev.Key, ev.Kind),
		"text":       ev.Message,
	})
	return c.post(ctx, body)
}

// emailChannel delivers events over SMTP with STARTTLS when the server
// offers it. The whole exchange runs under the channel timeout; an
// unresponsive server fails the delivery instead of stalling the dispatcher.
type emailChannel struct {
	cfg     config.ChannelConfig
	timeout time.Duration
}

func (c *emailChannel) Name() string { return "email" }

func (c *emailChannel) Send(ctx context.Context, ev alerts.Event) error {
	subject := fmt.Sprintf("%s pulsewatch: %s %s", severityLabel(ev.Severity), ev.Key, ev.Kind)
	if ev.Kind == alerts.KindResolved {
		subject = fmt.Sprintf("[RESOLVED] pulsewatch: %s", ev.Key)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.cfg.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\nkey: %s\r\nvalue: %.2f\r\nthreshold: %.2f\r\nat: %s\r\n",
		ev.Message, ev.Key, ev.Value, ev.Threshold, ev.At.Format(time.RFC3339))

	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer conn.Close()
	// One deadline covers greeting through QUIT. net/smtp has no
	// per-command deadline hook, so it is set on the connection.
	if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout)) //nolint:errcheck
	}
	if d, ok := ctx.Deadline(); ok && (c.timeout <= 0 || d.Before(time.Now().Add(c.timeout))) {
		conn.SetDeadline(d) //nolint:errcheck
	}

	client, err := smtp.NewClient(conn, c.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if user := c.cfg.SMTPUser(); user != "" {
		auth := smtp.PlainAuth("", user, c.cfg.SMTPPassword(), c.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range c.cfg.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return client.Quit()
}
