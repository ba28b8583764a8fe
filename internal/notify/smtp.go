package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig is a flow owner's outbound mail configuration.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Secure   bool   `json:"secure"` // implicit TLS when true, STARTTLS otherwise
}

// Validate fails when the configuration is incomplete.
func (c SMTPConfig) Validate() error {
	if c.Host == "" || c.Port == 0 || c.Username == "" || c.Password == "" {
		return fmt.Errorf("notify: SMTP configuration incomplete")
	}
	return nil
}

// ConfigSource resolves the SMTP configuration of a flow owner.
type ConfigSource interface {
	SMTPConfig(ctx context.Context, userID string) (SMTPConfig, error)
}

// DefaultDialTimeout bounds the SMTP connection attempt so a dead mail host
// cannot stall the conversation.
const DefaultDialTimeout = 10 * time.Second

// Notifier sends completion emails through the owner's configured SMTP relay.
type Notifier struct {
	configs     ConfigSource
	dialTimeout time.Duration
}

// NewNotifier creates a Notifier resolving per-user SMTP configs from source.
func NewNotifier(source ConfigSource) *Notifier {
	return &Notifier{configs: source, dialTimeout: DefaultDialTimeout}
}

// OwnerAddress returns the owner's SMTP username, the destination of the
// conversation summary mail.
func (n *Notifier) OwnerAddress(ctx context.Context, userID string) (string, error) {
	cfg, err := n.configs.SMTPConfig(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return cfg.Username, nil
}

// Send resolves the user's SMTP configuration and delivers one HTML mail.
// kind tags the mail for logging only ("form" or "completion").
func (n *Notifier) Send(ctx context.Context, userID, to, subject, html, kind string) error {
	cfg, err := n.configs.SMTPConfig(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify: resolve SMTP config: %w", err)
	}
	if err := n.SendWithConfig(ctx, cfg, []string{to}, subject, html); err != nil {
		return err
	}
	log.Printf("notify: sent %s email to %s for user %s", kind, to, userID)
	return nil
}

// SendTest verifies a configuration by mailing the owner's own address.
func (n *Notifier) SendTest(ctx context.Context, cfg SMTPConfig) error {
	body := "This is a test email sent using your SMTP configuration."
	return n.sendMail(ctx, cfg, []string{cfg.Username}, "SMTP Test Email", body, "text/plain")
}

// SendWithConfig delivers one HTML mail using an explicit configuration.
// Recipients are validated and deduplicated before the dial.
func (n *Notifier) SendWithConfig(ctx context.Context, cfg SMTPConfig, to []string, subject, html string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	recipients := dedupeAddresses(to)
	if len(recipients) == 0 {
		return fmt.Errorf("notify: no valid recipients")
	}
	return n.sendMail(ctx, cfg, recipients, subject, html, "text/html")
}

func (n *Notifier) sendMail(ctx context.Context, cfg SMTPConfig, recipients []string, subject, body, contentType string) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: %s; charset=UTF-8\r\n\r\n%s",
		cfg.Username,
		strings.Join(recipients, ", "),
		subject,
		contentType,
		body,
	)

	timeout := n.dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	tlsCfg := &tls.Config{ServerName: cfg.Host}
	var client *smtp.Client
	if cfg.Secure {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", addr, tlsCfg)
		if err != nil {
			return fmt.Errorf("notify: TLS dial %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("notify: SMTP client: %w", err)
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return fmt.Errorf("notify: dial %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("notify: SMTP client: %w", err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				client.Close()
				return fmt.Errorf("notify: STARTTLS: %w", err)
			}
		}
	}
	defer client.Close()

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("notify: SMTP auth: %w", err)
	}
	if err := client.Mail(cfg.Username); err != nil {
		return fmt.Errorf("notify: MAIL FROM: %w", err)
	}
	for _, r := range recipients {
		if err := client.Rcpt(r); err != nil {
			return fmt.Errorf("notify: RCPT TO %s: %w", r, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("notify: DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("notify: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("notify: close message: %w", err)
	}
	return client.Quit()
}

// dedupeAddresses keeps the first occurrence of each valid address.
func dedupeAddresses(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	var out []string
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] || !ValidAddress(a) {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
