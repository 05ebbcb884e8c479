package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"autoflow/internal/config"
)

// Mailer delivers plain-text notification emails.
type Mailer interface {
	Send(recipients []string, subject, body string) error
}

// SMTPMailer sends mail through a configured SMTP server.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer constructs a mailer from config. The host and from address
// are required.
func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}, nil
}

// Send 发送通知邮件
func (m *SMTPMailer) Send(recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		m.from, strings.Join(recipients, ", "), subject)
	msg := []byte(headers + body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := smtp.SendMail(addr, auth, m.from, recipients, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
