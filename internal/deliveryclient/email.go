// Package deliveryclient defines the outbound collaborators the delivery
// driver uses to reach recipients: an SMTP-backed email sender and an
// HTTP-webhook-backed chat client.
package deliveryclient

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

// EmailMessage is a fully rendered outbound email, ready to send.
type EmailMessage struct {
	To              string
	Subject         string
	HTMLBody        string
	TextBody        string
	ListUnsubscribe string // raw List-Unsubscribe header value; empty to omit
}

// EmailSender delivers a single rendered email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPConfig holds the connection details for an SMTPEmailSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPEmailSender sends multipart/alternative email (HTML plus a
// plain-text fallback) over SMTP with PLAIN auth.
type SMTPEmailSender struct {
	cfg SMTPConfig
}

// NewSMTPEmailSender builds a sender from cfg, defaulting Timeout to 10s.
func NewSMTPEmailSender(cfg SMTPConfig) *SMTPEmailSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPEmailSender{cfg: cfg}
}

// Send implements EmailSender. ctx is checked once before sending; once
// net/smtp starts, the send is blocking and does not observe ctx.
func (s *SMTPEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	body := buildMIMEMessage(s.cfg.From, msg)
	return smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, body)
}

func buildMIMEMessage(from string, msg EmailMessage) []byte {
	boundary := "inkwell-boundary"
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	if msg.ListUnsubscribe != "" {
		fmt.Fprintf(&buf, "List-Unsubscribe: %s\r\n", msg.ListUnsubscribe)
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.TextBody)
	buf.WriteString("\r\n\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.HTMLBody)
	buf.WriteString("\r\n\r\n")

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// RenderSubject substitutes ${date_zh} and ${ts} into a subject or title
// template. dateZh is expected pre-formatted in the configured locale
// (e.g. "2026年8月1日"); ts is a Unix timestamp string.
func RenderSubject(template string, dateZh string, ts string) string {
	r := strings.NewReplacer("${date_zh}", dateZh, "${ts}", ts)
	return r.Replace(template)
}
