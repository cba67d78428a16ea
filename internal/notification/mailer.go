package notification

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Attachment is a file attached to an Email.
type Attachment struct {
	Name string
	Data []byte
}

// Email is a rendered message ready to send.
type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer sends an Email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send delivers e. gomail has no context support; ctx is only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)
	msg.SetBody("text/html", e.HTML)
	for _, a := range e.Attachments {
		data := a.Data
		msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", e.To, err)
	}
	return nil
}

// LogMailer logs emails instead of sending them. Used when SMTP is not configured.
type LogMailer struct {
	log *slog.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// Send logs e.
func (m *LogMailer) Send(ctx context.Context, e Email) error {
	m.log.InfoContext(ctx, "email not sent, smtp disabled",
		slog.String("to", e.To),
		slog.String("subject", e.Subject),
		slog.Int("attachments", len(e.Attachments)),
	)
	return nil
}
