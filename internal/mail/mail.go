// Package mail delivers the plain-text emails the service sends, currently only
// verification codes.
package mail

import (
	"context"
	"time"

	"heartsync-backend/internal/config"

	"github.com/rs/zerolog/log"
)

// Message is a plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers a message or returns why it could not
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the mailer for cfg. Without an SMTP host messages are only logged.
func New(cfg config.SMTPConfig) Mailer {
	if cfg.Host == "" {
		log.Warn().Msg("SMTP host not configured, emails will be logged instead of sent")
		return LogMailer{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewBreakerMailer(&SMTPMailer{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		From:     cfg.From,
		FromName: cfg.FromName,
		UseTLS:   cfg.UseTLS,
		Timeout:  timeout,
	}, DefaultBreakerSettings())
}

// LogMailer writes messages to the log. Used in development.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("Email (not sent)")
	return nil
}
