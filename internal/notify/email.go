package notify

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"sync"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/booking-agent/pkg/logging"
)

// ErrNotConfigured is returned by provider constructors missing credentials
// or a from address.
var ErrNotConfigured = errors.New("notify: email provider not configured")

// Address is a named mailbox.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	return (&netmail.Address{Name: a.Name, Address: a.Email}).String()
}

// EmailMessage is one outbound staff email. HTML is optional. Category tags
// the message in the provider's reporting.
type EmailMessage struct {
	To       Address
	Subject  string
	Text     string
	HTML     string
	Category string
}

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig configures the SendGrid sender.
type SendGridConfig struct {
	APIKey string
	From   Address
}

type SendGridSender struct {
	api    sendgridAPI
	from   Address
	logger *logging.Logger
}

func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.From.Email) == "" {
		return nil, ErrNotConfigured
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg.From, logger), nil
}

func newSendGridSender(api sendgridAPI, from Address, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{api: api, from: from, logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.from.Name, s.from.Email))
	m.Subject = msg.Subject
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.To.Name, msg.To.Email))
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}

	resp, err := s.api.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		s.logger.Warn("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid: status %d", resp.StatusCode)
	}
	s.logger.Debug("email sent", "provider", "sendgrid", "category", msg.Category)
	return nil
}

// StubEmailSender only logs and records messages. It is the default in local
// runs and the fallback for a misconfigured provider.
type StubEmailSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []EmailMessage
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("email not sent (stub)", "subject", msg.Subject, "category", msg.Category)
	return nil
}

// Sent returns the recorded messages.
func (s *StubEmailSender) Sent() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailMessage(nil), s.sent...)
}
