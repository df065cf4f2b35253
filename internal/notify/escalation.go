package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/booking-agent/internal/business"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// ErrNoRecipient is returned when a tenant has no escalation address.
var ErrNoRecipient = errors.New("notify: no escalation recipient configured")

// Complaint is a customer message routed to staff.
type Complaint struct {
	TenantID   string
	CustomerID string
	Text       string
	ReceivedAt time.Time
}

// Escalator emails complaints to the tenant's notify address.
type Escalator struct {
	email      EmailSender
	businesses business.Store
	logger     *logging.Logger
}

func NewEscalator(email EmailSender, businesses business.Store, logger *logging.Logger) *Escalator {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if businesses == nil {
		panic("notify: business store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Escalator{email: email, businesses: businesses, logger: logger}
}

// EscalateComplaint sends the complaint to the tenant. Tenants without a
// notify address yield ErrNoRecipient.
func (e *Escalator) EscalateComplaint(ctx context.Context, c Complaint) error {
	b, err := e.businesses.Get(ctx, c.TenantID)
	if err != nil {
		return fmt.Errorf("notify: load business: %w", err)
	}
	to := strings.TrimSpace(b.NotifyEmail)
	if to == "" {
		return ErrNoRecipient
	}
	msg := complaintEmail(b, c)
	msg.To = Address{Name: msg.To.Name, Email: to}
	if err := e.email.Send(ctx, msg); err != nil {
		return err
	}
	e.logger.Info("complaint escalated", "tenant_id", c.TenantID, "customer_id", c.CustomerID)
	return nil
}

func complaintEmail(b *business.Business, c Complaint) EmailMessage {
	received := c.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	received = received.In(b.Location("UTC"))
	name := b.Name
	if name == "" {
		name = b.ID
	}

	subject := fmt.Sprintf("Customer complaint for %s", name)
	body := fmt.Sprintf("A customer complaint needs attention.\n\nChat: %s\nReceived: %s\n\nMessage:\n%s\n",
		c.CustomerID, received.Format("2006-01-02 15:04 MST"), c.Text)
	htmlBody := fmt.Sprintf("<p>A customer complaint needs attention.</p><p><strong>Chat:</strong> %s<br><strong>Received:</strong> %s</p><blockquote>%s</blockquote>",
		html.EscapeString(c.CustomerID),
		html.EscapeString(received.Format("2006-01-02 15:04 MST")),
		strings.ReplaceAll(html.EscapeString(c.Text), "\n", "<br>"),
	)
	return EmailMessage{To: Address{Name: name}, Subject: subject, Text: body, HTML: htmlBody, Category: "complaint"}
}
