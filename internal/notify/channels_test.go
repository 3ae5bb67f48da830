package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/rules"
)

func TestWebhookChannel_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type: got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer srv.Close()

	ch := &webhookChannel{name: "webhook", url: srv.URL, client: srv.Client()}
	ev := event(alerts.KindRaised, rules.Critical)
	if err := ch.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	wrapped, ok := got["event"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing event object: %v", got)
	}
	if wrapped["key"] != "cpu" {
		t.Errorf("event.key: got %v, want cpu", wrapped["key"])
	}
	if wrapped["severity"] != "critical" {
		t.Errorf("event.severity: got %v, want critical", wrapped["severity"])
	}
}

func TestWebhookChannel_HTTPErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := &webhookChannel{name: "webhook", url: srv.URL, client: srv.Client()}
	if err := ch.Send(context.Background(), event(alerts.KindRaised, rules.Warning)); err == nil {
		t.Error("Send to 502 endpoint: expected error")
	}
}

func TestWebhookChannel_EmptyURL(t *testing.T) {
	ch := &webhookChannel{name: "webhook", url: "", client: http.DefaultClient}
	if err := ch.Send(context.Background(), event(alerts.KindRaised, rules.Warning)); err == nil {
		t.Error("Send with empty url: expected error")
	}
}

func TestSlackChannel_Payload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	ch := &slackChannel{webhookChannel{name: "slack", url: srv.URL, client: srv.Client()}}
	if err := ch.Send(context.Background(), event(alerts.KindEscalated, rules.Critical)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	text, _ := got["text"].(string)
	if text == "" {
		t.Fatal("slack payload missing text")
	}
	if want := "*[CRITICAL]*"; len(text) < len(want) || text[:len(want)] != want {
		t.Errorf("text: got %q, want %q prefix", text, want)
	}
}

func TestBuildChannels(t *testing.T) {
	t.Setenv("PW_HOOK", "https://example.com/hook")
	cfgs := []config.ChannelConfig{
		{Type: "log"},
		{Type: "slack", URLEnv: "PW_HOOK"},
		{Type: "webhook", URLEnv: "PW_HOOK", Timeout: 0},
	}
	chans := BuildChannels(cfgs, discard())
	if len(chans) != 3 {
		t.Fatalf("BuildChannels: got %d channels, want 3", len(chans))
	}
	names := map[string]bool{}
	for _, c := range chans {
		names[c.Name()] = true
	}
	for _, want := range []string{"log", "slack", "webhook"} {
		if !names[want] {
			t.Errorf("missing channel %q (got %v)", want, names)
		}
	}
}

// fakeSMTP speaks just enough plaintext SMTP for one delivery and
// captures the DATA payload.
func fakeSMTP(t *testing.T, ln net.Listener, data *strings.Builder, done chan<- struct{}) {
	t.Helper()
	defer close(done)
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	br := bufio.NewReader(conn)
	reply := func(s string) { fmt.Fprintf(conn, "%s\r\n", s) }
	reply("220 fake ESMTP")
	inData := false
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if inData {
			if line == "." {
				inData = false
				reply("250 OK")
				continue
			}
			data.WriteString(line + "\n")
			continue
		}
		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(line, "MAIL FROM"), strings.HasPrefix(line, "RCPT TO"):
			reply("250 OK")
		case line == "DATA":
			inData = true
			reply("354 go ahead")
		case line == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestEmailChannel_Send(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	var data strings.Builder
	done := make(chan struct{})
	go fakeSMTP(t, ln, &data, done)

	port := ln.Addr().(*net.TCPAddr).Port
	ch := &emailChannel{
		cfg: config.ChannelConfig{
			Type: "email", SMTPHost: "127.0.0.1", SMTPPort: port,
			From: "pulsewatch@example.com", Recipients: []string{"ops@example.com"},
		},
		timeout: 2 * time.Second,
	}
	ev := event(alerts.KindRaised, rules.Critical)
	ev.Message = "[critical] cpu fired: value 95.00, threshold 85.00"
	if err := ch.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done
	body := data.String()
	for _, want := range []string{"To: ops@example.com", "Subject: [CRITICAL] pulsewatch:", "cpu fired"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q:\n%s", want, body)
		}
	}
}

func TestEmailChannel_UnresponsiveServerTimesOut(t *testing.T) {
	// Accept the connection but never send the SMTP greeting. Delivery
	// must fail within the channel timeout instead of hanging the
	// dispatcher's fan-out.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		<-hold // hold the connection open, silently
		conn.Close()
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	ch := &emailChannel{
		cfg: config.ChannelConfig{
			Type: "email", SMTPHost: "127.0.0.1", SMTPPort: port,
			From: "pulsewatch@example.com", Recipients: []string{"ops@example.com"},
		},
		timeout: 100 * time.Millisecond,
	}

	start := time.Now()
	err = ch.Send(context.Background(), event(alerts.KindRaised, rules.Critical))
	if err == nil {
		t.Fatal("Send against a silent server: want error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send did not respect the channel timeout: took %v", elapsed)
	}
}

func TestLogChannel_NeverFails(t *testing.T) {
	ch := &logChannel{logger: discard()}
	for _, kind := range []alerts.EventKind{alerts.KindRaised, alerts.KindEscalated, alerts.KindResolved, alerts.KindActionTaken} {
		ev := event(kind, rules.Warning)
		ev.At = time.Now()
		if err := ch.Send(context.Background(), ev); err != nil {
			t.Errorf("Send(%s): %v", kind, err)
		}
	}
}
