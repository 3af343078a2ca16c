package services

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/config"
)

// Mailer sends one transactional email
type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, plain, html string) error
}

// SendGridMailer delivers through the SendGrid v3 API
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewMailer returns a SendGrid mailer, or a mailer that only logs when no
// API key is configured.
func NewMailer(cfg config.SendGridConfig) Mailer {
	if cfg.APIKey == "" {
		return logMailer{}
	}
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail("CitizenVoice", cfg.FromEmail),
	}
}

// Send builds a single recipient message and posts it
func (m *SendGridMailer) Send(ctx context.Context, toName, toEmail, subject, plain, html string) error {
	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail(toName, toEmail), plain, html)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type logMailer struct{}

func (logMailer) Send(_ context.Context, _, toEmail, subject, _, _ string) error {
	zap.S().Infow("email sending disabled, skipping", "to", toEmail, "subject", subject)
	return nil
}
