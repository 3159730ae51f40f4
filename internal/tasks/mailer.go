package tasks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/oakpoint/schoolhub/pkg/config"
)

// Mailer delivers transactional email. The worker is the only process that
// talks SMTP; the API server never blocks on mail.
type Mailer struct {
	cfg *config.SMTPConfig
}

func NewMailer(cfg *config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether an SMTP host is configured. With no host the
// worker logs reset links instead of sending them (development setups).
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

func (m *Mailer) SendPasswordReset(_ context.Context, email, name, rawToken string) error {
	subject := "Reset your Schoolhub password"
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n"+
			"A password reset was requested for your account. Use the token below within 30 minutes:\r\n\r\n"+
			"%s\r\n\r\n"+
			"If you did not request this, you can ignore this email.\r\n",
		name, rawToken,
	)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.cfg.From, email, subject, body,
	))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if m.cfg.UseTLS {
		return m.sendMailTLS(addr, auth, email, msg)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{email}, msg)
}

// sendMailTLS handles implicit-TLS servers (port 465). STARTTLS servers
// (port 587) go through smtp.SendMail, which upgrades automatically.
func (m *Mailer) sendMailTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		// Fall back to the STARTTLS path
		return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO %s: %w", to, err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return c.Quit()
}
