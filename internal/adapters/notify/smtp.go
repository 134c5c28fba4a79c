package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"levelwatch/internal/ports"
)

// SMTPNotifier delivers notifications as plain-text e-mail over a STARTTLS
// submission connection. Each Notify call opens a fresh connection; batches
// are infrequent enough that pooling is not worth the state.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger ports.Logger
}

// SMTPConfig holds the mail submission settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// NewSMTP creates an SMTP notifier. All fields except Timeout are required.
func NewSMTP(cfg SMTPConfig, logger ports.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("%w: SMTP host, from address, and at least one recipient are required", ports.ErrConfigurationError)
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPNotifier{cfg: cfg, logger: logger}, nil
}

// Notify sends one message with the given subject and body to every
// configured recipient.
func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string) error {
	deadline := time.Now().Add(n.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprintf("%d", n.cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", ports.ErrNotificationFailed, addr, err)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: SMTP handshake: %w", ports.ErrNotificationFailed, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return fmt.Errorf("%w: STARTTLS: %w", ports.ErrNotificationFailed, err)
		}
	}

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: SMTP auth: %w", ports.ErrNotificationFailed, err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("%w: MAIL FROM: %w", ports.ErrNotificationFailed, err)
	}
	for _, rcpt := range n.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("%w: RCPT TO %s: %w", ports.ErrNotificationFailed, rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: DATA: %w", ports.ErrNotificationFailed, err)
	}
	if _, err := w.Write(n.buildMessage(subject, body)); err != nil {
		w.Close()
		return fmt.Errorf("%w: writing message: %w", ports.ErrNotificationFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finishing message: %w", ports.ErrNotificationFailed, err)
	}

	if err := client.Quit(); err != nil {
		n.logger.Debug(ctx, "SMTP QUIT failed after successful delivery", map[string]interface{}{"error": err.Error()})
	}
	n.logger.Info(ctx, "Notification e-mail sent", map[string]interface{}{
		"subject": subject, "recipients": len(n.cfg.To),
	})
	return nil
}

func (n *SMTPNotifier) buildMessage(subject, body string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(sb.String())
}
