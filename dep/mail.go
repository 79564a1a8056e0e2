package dep

import (
	"context"
	"fmt"
	"strings"

	"outreach/config"
)

const (
	DefaultCampaign = "general"
	DefaultTemplate = "custom"
)

// Email is one fully rendered outbound message.
type Email struct {
	To          string
	Subject     string
	HtmlContent string
	TextContent string
	Campaign    string
	Template    string
	ContactID   uint64
}

func (e *Email) GetCampaign() string {
	if e != nil && e.Campaign != "" {
		return e.Campaign
	}
	return DefaultCampaign
}

func (e *Email) GetTemplate() string {
	if e != nil && e.Template != "" {
		return e.Template
	}
	return DefaultTemplate
}

// Outcome is the settled result of sending one Email.
type Outcome struct {
	Email     string `json:"email"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp uint64 `json:"timestamp"`
}

// EmailService sends one message at a time through an external relay.
// SendEmail never returns an error: transport failures are reported in the Outcome.
type EmailService interface {
	SendEmail(ctx context.Context, email *Email) *Outcome
	TestConnection(ctx context.Context) error
	Close(ctx context.Context) error
}

func NewEmailService(ctx context.Context, cfg *config.Config) (EmailService, error) {
	switch cfg.Mail.Provider {
	case config.MailProviderSMTP:
		return NewSmtpService(ctx, cfg.SMTP, cfg.Mail), nil
	case config.MailProviderBrevo:
		return NewBrevoService(ctx, cfg.Brevo, cfg.Mail)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %q", cfg.Mail.Provider)
	}
}

func failedOutcome(email *Email, err error, ts uint64) *Outcome {
	return &Outcome{
		Email:     email.To,
		Success:   false,
		Error:     err.Error(),
		Timestamp: ts,
	}
}

func emailDomain(address, fallback string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return fallback
}
