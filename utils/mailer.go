package utils

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Email is one outgoing HTML message
type Email struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Mailer delivers outgoing email
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// DeliveryError wraps a delivery failure and records whether a later attempt
// may succeed.
type DeliveryError struct {
	Err       error
	Retryable bool
}

func (e *DeliveryError) Error() string { return e.Err.Error() }

func (e *DeliveryError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is worth retrying
func (e *DeliveryError) Temporary() bool { return e.Retryable }

// MailerSettings selects and configures the delivery backend
type MailerSettings struct {
	From         string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// NewMailer prefers the Resend API, then SMTP, then a log-only mailer
func NewMailer(settings MailerSettings, logger *logrus.Entry) Mailer {
	switch {
	case settings.ResendAPIKey != "":
		return NewResendMailer(settings.ResendAPIKey, settings.From)
	case settings.SMTPHost != "":
		return NewSMTPMailer(settings.SMTPHost, settings.SMTPPort, settings.SMTPUsername, settings.SMTPPassword, settings.From)
	default:
		return &LogMailer{Logger: logger}
	}
}

// SMTPMailer sends through an SMTP relay
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	if email.ReplyTo != "" {
		msg.SetHeader("Reply-To", email.ReplyTo)
	}
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTML)

	if err := m.dialer.DialAndSend(msg); err != nil {
		// Connection level problems are retryable; protocol rejections are not
		var netErr net.Error
		return &DeliveryError{
			Err:       fmt.Errorf("error sending email: %w", err),
			Retryable: errors.As(err, &netErr),
		}
	}
	return nil
}

// LogMailer only logs messages. Used when no delivery backend is configured.
type LogMailer struct {
	Logger *logrus.Entry
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	logger := m.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger.WithFields(logrus.Fields{
		"to":      email.To,
		"subject": email.Subject,
	}).Warn("Skipping email send - no mail backend configured")
	return nil
}
