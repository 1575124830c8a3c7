// Package mail sends notifications over SMTP and reads approval replies over IMAP.
package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/pkg/logger"
)

// Message is a plain text email with an optional HTML alternative
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends through an authenticated SMTP server over TLS
type SMTPSender struct {
	cfg config.EmailConfig
	log *logger.Logger
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg config.EmailConfig, log *logger.Logger) *SMTPSender {
	return &SMTPSender{
		cfg: cfg,
		log: log.WithComponent("smtp"),
	}
}

// Send builds a multipart/alternative message and delivers it
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return errs.Configuration("EMAIL_USER and EMAIL_PASS are required to send mail")
	}
	if s.cfg.SMTPHost == "" {
		return errs.Configuration("EMAIL_SMTP is required to send mail")
	}
	to := msg.To
	if to == "" {
		to = s.cfg.Username
	}

	m := gomail.NewMsg()
	if err := m.From(s.cfg.Username); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	client, err := gomail.NewClient(s.cfg.SMTPHost, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return errs.Wrap(errs.ErrTransient, "smtp send", err)
	}

	s.log.Info().Str("to", to).Str("subject", msg.Subject).Msg("Email sent")
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	port := s.cfg.SMTPPort
	if port == 0 {
		port = 465
	}
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTimeout(30 * time.Second),
	}
	// 465 is implicit TLS, anything else upgrades with STARTTLS
	if port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	return opts
}

var _ Sender = (*SMTPSender)(nil)
