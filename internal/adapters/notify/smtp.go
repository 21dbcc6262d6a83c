package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/netpulse/internal/domain/model"
)

// SMTPConfig holds the relay settings for email notifications.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends notifications through an SMTP relay.
type Email struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

var _ Notifier = (*Email)(nil)

// NewEmail creates an SMTP notifier.
func NewEmail(cfg SMTPConfig) *Email {
	return &Email{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Name implements Notifier.
func (e *Email) Name() string { return "email" }

// Notify implements Notifier. smtp.SendMail cannot be cancelled, so a
// cancelled ctx abandons the send instead of interrupting it.
func (e *Email) Notify(ctx context.Context, n model.Notification) error {
	if e.cfg.Host == "" || e.cfg.From == "" || len(e.cfg.To) == 0 {
		return fmt.Errorf("email: %w", ErrMisconfigured)
	}

	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	msg := e.message(n)

	errc := make(chan error, 1)
	go func() {
		errc <- e.send(addr, auth, e.cfg.From, e.cfg.To, msg)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("email: %w: %w", ErrDelivery, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email: %w: %w", ErrDelivery, ctx.Err())
	}
}

// message renders an RFC 5322 plain-text message.
func (e *Email) message(n model.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeader(n.Subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	if n.ID != "" {
		fmt.Fprintf(&b, "Message-ID: <%s@netpulse>\r\n", n.ID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(n.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// sanitizeHeader stops user-provided text from injecting headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
