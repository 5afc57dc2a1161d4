// Package alert implements the alert pipeline: given a finished
// RunContext, it renders a lightweight mustache-style template against a
// configured set of sinks (cmd, webhook, email, nats) in declaration
// order. Sink failures are logged and swallowed; they never propagate
// back to the scheduler loop.
package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"cron-rs/internal/task"
)

// webhookTimeout is the fixed connect+read timeout for webhook sinks.
// Webhook delivery is at-most-once, so a single generous timeout is the
// only resilience knob available.
const webhookTimeout = 10 * time.Second

// emailMaxElapsed bounds how long the email sink retries a failed SMTP
// dial before giving up. Transient dial/auth failures (server momentarily
// unreachable, greylisting) are worth a few attempts; webhook and cmd
// sinks stay at-most-once and get no such leeway.
const emailMaxElapsed = 30 * time.Second

// Sink delivers a rendered alert. Name is used only for log context.
type Sink interface {
	Name() string
	Send(ctx context.Context, rc *task.RunContext) error
}

// Pipeline holds the ordered sink lists for each outcome channel.
type Pipeline struct {
	OnSuccess []Sink
	OnFailure []Sink
	log       zerolog.Logger
}

// New builds a Pipeline that logs sink failures through log.
func New(log zerolog.Logger, onSuccess, onFailure []Sink) *Pipeline {
	return &Pipeline{OnSuccess: onSuccess, OnFailure: onFailure, log: log}
}

// Dispatch routes rc to the appropriate channel's sinks, in declaration
// order, swallowing and logging any failure.
func (p *Pipeline) Dispatch(ctx context.Context, rc *task.RunContext) {
	sinks := p.OnFailure
	if rc.Succeeded() {
		sinks = p.OnSuccess
	}
	for _, sink := range sinks {
		if err := sink.Send(ctx, rc); err != nil {
			p.log.Warn().Str("task", rc.TaskName).Str("sink", sink.Name()).Err(err).Msg("alert sink failed")
		}
	}
}

// templateValues builds the substitution map every sink template can
// draw from.
func templateValues(rc *task.RunContext) map[string]string {
	return map[string]string{
		"task_name":     rc.TaskName,
		"cmd":           rc.Command,
		"exit_code":     strconv.Itoa(rc.ExitCode),
		"start_time":    rc.StartTime.Format(time.RFC3339),
		"end_time":      rc.EndTime.Format(time.RFC3339),
		"duration":      rc.Duration.String(),
		"error_message": rc.ErrorMessage,
		"debug_info":    rc.DebugInfo,
		"stdout":        rc.StdoutTail,
		"stderr":        rc.StderrTail,
	}
}

// CmdSink runs `sh -c <rendered cmd>`. Best-effort: a nonzero exit is
// returned as an error, which Dispatch logs; there is no retry.
type CmdSink struct {
	Shell string
	Cmd   string
}

func (s *CmdSink) Name() string { return "cmd" }

func (s *CmdSink) Send(ctx context.Context, rc *task.RunContext) error {
	shell := s.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	rendered := render(s.Cmd, templateValues(rc))
	cmd := exec.CommandContext(ctx, shell, "-c", rendered)
	// Inherit nothing from the failed task: no env/cwd carried over.
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cmd sink exited non-zero: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// WebhookSink performs a single HTTP request with no retry. Delivery is
// at-most-once.
type WebhookSink struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, rc *task.RunContext) error {
	method := strings.ToUpper(strings.TrimSpace(s.Method))
	if method == "" {
		method = http.MethodPost
	}

	values := templateValues(rc)
	body := render(s.Body, values)
	renderedURL := render(s.URL, values)

	reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, renderedURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, render(v, values))
	}
	if req.Header.Get("Content-Type") == "" && body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// EmailSink delivers an alert over SMTP. Port 465 uses implicit TLS; on
// every other port (587 included) net/smtp's SendMail connects in the
// clear and upgrades with STARTTLS when the server offers it.
type EmailSink struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	To           []string
	Subject      string
	Body         string
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, rc *task.RunContext) error {
	values := templateValues(rc)
	subject := render(s.Subject, values)
	body := render(s.Body, values)

	msg := buildMIMEMessage(s.SMTPUsername, s.To, subject, body)
	addr := net.JoinHostPort(s.SMTPServer, strconv.Itoa(s.SMTPPort))
	auth := smtp.PlainAuth("", s.SMTPUsername, s.SMTPPassword, s.SMTPServer)

	send := func() error {
		switch s.SMTPPort {
		case 465:
			return sendImplicitTLS(addr, s.SMTPServer, auth, s.SMTPUsername, s.To, msg)
		default:
			return smtp.SendMail(addr, auth, s.SMTPUsername, s.To, msg)
		}
	}

	policy := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(emailMaxElapsed)), ctx)
	return backoff.Retry(send, policy)
}

func buildMIMEMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sendImplicitTLS handles port-465 delivery, where the connection is TLS
// from the first byte rather than upgraded via STARTTLS (which net/smtp's
// SendMail assumes).
func sendImplicitTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// NatsSink publishes the rendered body to a NATS subject, for
// deployments that already run a NATS bus for other event fan-out.
type NatsSink struct {
	URL     string
	Subject string
	Body    string
}

func (s *NatsSink) Name() string { return "nats" }

func (s *NatsSink) Send(_ context.Context, rc *task.RunContext) error {
	nc, err := nats.Connect(s.URL, nats.Timeout(webhookTimeout))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	body := render(s.Body, templateValues(rc))
	if err := nc.Publish(s.Subject, []byte(body)); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nc.FlushTimeout(webhookTimeout)
}
