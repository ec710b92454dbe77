package notifications

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/seaside-charters/api/internal/domain"
)

// BookingNotification is the booking snapshot rendered into emails.
type BookingNotification = domain.BookingNotification

// sendClient is the subset of the SendGrid client used by the mailer.
type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig configures the mailer.
type SendGridConfig struct {
	APIKey          string
	FromAddress     string
	FromName        string
	AlertRecipients []string
	Logger          func(ctx context.Context, event string, fields map[string]any)

	client sendClient
}

// SendGridMailer sends booking emails through SendGrid.
type SendGridMailer struct {
	client     sendClient
	from       *mail.Email
	recipients []string
	renderer   renderer
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewSendGridMailer validates the configuration and creates the SendGrid client.
func NewSendGridMailer(cfg SendGridConfig) (*SendGridMailer, error) {
	client := cfg.client
	if client == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("notifications: sendgrid api key is required")
		}
		client = sendgrid.NewSendClient(apiKey)
	}
	fromAddress := strings.TrimSpace(cfg.FromAddress)
	if fromAddress == "" {
		return nil, errors.New("notifications: from address is required")
	}
	recipients := make([]string, 0, len(cfg.AlertRecipients))
	for _, recipient := range cfg.AlertRecipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SendGridMailer{
		client:     client,
		from:       mail.NewEmail(cfg.FromName, fromAddress),
		recipients: recipients,
		renderer:   newRenderer(),
		logger:     logger,
	}, nil
}

// SendBookingConfirmation emails the customer once their payment has been confirmed.
func (m *SendGridMailer) SendBookingConfirmation(ctx context.Context, n BookingNotification) error {
	view := m.renderer.view(n)
	subject := fmt.Sprintf("Your charter aboard %s is confirmed", view.YachtName)
	return m.send(ctx, "booking_confirmation", confirmationTemplate, view, subject,
		[]*mail.Email{mail.NewEmail(view.CustomerName, n.Customer.Email)})
}

// SendInquiryAcknowledgement tells the customer their enquiry was received.
func (m *SendGridMailer) SendInquiryAcknowledgement(ctx context.Context, n BookingNotification) error {
	view := m.renderer.view(n)
	subject := fmt.Sprintf("We received your enquiry for %s", view.YachtName)
	return m.send(ctx, "inquiry_acknowledgement", inquiryTemplate, view, subject,
		[]*mail.Email{mail.NewEmail(view.CustomerName, n.Customer.Email)})
}

// SendInternalAlert notifies the charter team about a new booking or enquiry. It is a no-op when no
// alert recipients are configured.
func (m *SendGridMailer) SendInternalAlert(ctx context.Context, n BookingNotification) error {
	if len(m.recipients) == 0 {
		return nil
	}
	view := m.renderer.view(n)
	kind := "booking"
	if view.Inquiry {
		kind = "enquiry"
	}
	subject := fmt.Sprintf("New %s: %s (%s)", kind, view.YachtName, view.Reference)
	to := make([]*mail.Email, 0, len(m.recipients))
	for _, recipient := range m.recipients {
		to = append(to, mail.NewEmail("", recipient))
	}
	return m.send(ctx, "internal_alert", alertTemplate, view, subject, to)
}

func (m *SendGridMailer) send(ctx context.Context, kind string, tmpl *template.Template, view emailView, subject string, to []*mail.Email) error {
	rendered, err := render(tmpl, view)
	if err != nil {
		return err
	}

	message := mail.NewV3Mail()
	message.SetFrom(m.from)
	message.Subject = subject
	personalization := mail.NewPersonalization()
	personalization.AddTos(to...)
	message.AddPersonalizations(personalization)
	message.AddContent(
		mail.NewContent("text/plain", rendered.Plain),
		mail.NewContent("text/html", rendered.HTML),
	)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notifications: send %s: %w", kind, err)
	}
	if resp != nil && resp.StatusCode >= 400 {
		return fmt.Errorf("notifications: send %s: sendgrid status %d: %s", kind, resp.StatusCode, truncate(resp.Body, 256))
	}
	m.logger(ctx, "notifications.sent", map[string]any{
		"kind":       kind,
		"reference":  view.Reference,
		"recipients": len(to),
	})
	return nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
