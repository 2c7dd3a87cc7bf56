package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"monitoring/internal/config"
	"monitoring/internal/domain"
	"monitoring/internal/permanent"
)

// EmailSender delivers notifications over SMTP.
// Params: SMTP endpoint, credentials, and addressing from config.
// Returns: email channel sender.
type EmailSender struct {
	cfg     config.EmailChannel
	initErr error
}

// NewEmailSender creates SMTP sender.
// Params: email channel config.
// Returns: initialized sender; config errors surface on first Send.
func NewEmailSender(cfg config.EmailChannel) *EmailSender {
	sender := &EmailSender{cfg: cfg}
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		sender.initErr = permanent.Mark(errors.New("email smtp_host is required"))
		return sender
	}
	if strings.TrimSpace(cfg.From) == "" {
		sender.initErr = permanent.Mark(errors.New("email from address is required"))
		return sender
	}
	if len(cfg.To) == 0 {
		sender.initErr = permanent.Mark(errors.New("email needs at least one recipient"))
		return sender
	}
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *EmailSender) Channel() string {
	return config.ChannelEmail
}

// Send delivers one notification as a plain-text mail.
// smtp.SendMail has no context hook; cancellation is checked before the
// dial and the server-side timeout bounds the rest.
// Params: context and notification payload.
// Returns: SMTP error.
func (s *EmailSender) Send(ctx context.Context, notification domain.Notification) error {
	if s.initErr != nil {
		return s.initErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	port := s.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}

	subject := fmt.Sprintf("[%s] %s", notification.Severity, subjectTitle(notification))
	var body strings.Builder
	body.WriteString("From: " + s.cfg.From + "\r\n")
	body.WriteString("To: " + strings.Join(s.cfg.To, ", ") + "\r\n")
	body.WriteString("Subject: " + subject + "\r\n")
	body.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	body.WriteString(notification.Message)
	body.WriteString("\r\n")

	if err := smtp.SendMail(addr, auth, s.cfg.From, s.cfg.To, []byte(body.String())); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

// subjectTitle picks the most specific identity for the mail subject.
// Params: notification payload.
// Returns: rule name, entity/metric pair, or source label.
func subjectTitle(notification domain.Notification) string {
	if notification.RuleName != "" {
		return notification.RuleName
	}
	if notification.Entity != "" {
		return notification.Entity + " " + notification.Metric
	}
	return string(notification.Source)
}
