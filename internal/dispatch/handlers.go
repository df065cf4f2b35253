package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/booking-agent/internal/booking"
	"github.com/wolfman30/booking-agent/internal/bookings"
	"github.com/wolfman30/booking-agent/internal/business"
	"github.com/wolfman30/booking-agent/internal/faq"
	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/internal/notify"
	"github.com/wolfman30/booking-agent/internal/observability/metrics"
	"github.com/wolfman30/booking-agent/internal/queue"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

const (
	GreetingReply       = "Hello! How can I help you today?"
	UnknownReply        = "I apologize, but I did not understand your request. Could you please rephrase?"
	ComplaintReply      = "Your complaint has been escalated to our team. We will contact you shortly."
	NoAppointmentReply  = "I couldn't find any upcoming appointments for you."
	BudgetExceededReply = "Budget exceeded - please upgrade plan"
)

// Request is one routed customer message.
type Request struct {
	ItemID     string
	TenantID   string
	Intent     intent.Intent
	Tier       intent.Tier
	Message    queue.Message
	ReceivedAt time.Time
}

// Reply is a handler outcome. Usage is the paid model usage to charge; a
// zero usage releases the reservation instead.
type Reply struct {
	Text  string
	Usage llm.Usage
}

func (r Reply) spent() bool {
	return r.Usage.InputTokens > 0 || r.Usage.OutputTokens > 0
}

// Handler answers one routed message. A returned error is a transient
// failure and marks the queue item failed; the Reply may still carry usage
// consumed before the failure.
type Handler interface {
	Handle(ctx context.Context, req Request) (Reply, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Reply, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}

// Fixed always answers text without calling a model.
func Fixed(text string) Handler {
	return HandlerFunc(func(context.Context, Request) (Reply, error) {
		return Reply{Text: text}, nil
	})
}

// FAQAnswerer answers questions from the tenant's FAQ documents.
type FAQAnswerer interface {
	Answer(ctx context.Context, tenantID, question string) (faq.Answer, error)
}

// FAQ answers from retrieved documents only.
func FAQ(answerer FAQAnswerer) Handler {
	if answerer == nil {
		panic("dispatch: faq answerer cannot be nil")
	}
	return HandlerFunc(func(ctx context.Context, req Request) (Reply, error) {
		ans, err := answerer.Answer(ctx, req.TenantID, req.Message.Text)
		if err != nil {
			return Reply{Usage: ans.Usage}, err
		}
		return Reply{Text: ans.Text, Usage: ans.Usage}, nil
	})
}

// BookingRunner drives the booking conversation for one message.
type BookingRunner interface {
	Run(ctx context.Context, in booking.Input) (booking.Result, error)
}

// Booking hands the message to the booking agent. The customer is keyed by
// chat so replies and conversation state follow the chat.
func Booking(agent BookingRunner, m *metrics.DispatchMetrics) Handler {
	if agent == nil {
		panic("dispatch: booking agent cannot be nil")
	}
	return HandlerFunc(func(ctx context.Context, req Request) (Reply, error) {
		res, err := agent.Run(ctx, booking.Input{
			TenantID:   req.TenantID,
			CustomerID: req.Message.ChatID,
			Text:       req.Message.Text,
		})
		if err != nil {
			return Reply{Usage: res.Usage}, err
		}
		m.ObserveAgent(res.Iterations, res.Exhausted)
		return Reply{Text: res.Reply, Usage: res.Usage}, nil
	})
}

// AppointmentFinder looks up a customer's next appointment.
type AppointmentFinder interface {
	NextUpcoming(ctx context.Context, tenantID, customerChatID string, from time.Time) (*bookings.Appointment, error)
}

// Status reports the customer's next confirmed appointment. Today is taken in
// the tenant's timezone.
func Status(appts AppointmentFinder, businesses business.Store, defaultTimezone string, now func() time.Time) Handler {
	if appts == nil {
		panic("dispatch: appointment finder cannot be nil")
	}
	if now == nil {
		now = time.Now
	}
	return HandlerFunc(func(ctx context.Context, req Request) (Reply, error) {
		loc := time.UTC
		if businesses != nil {
			b, err := businesses.Get(ctx, req.TenantID)
			switch {
			case err == nil:
				loc = b.Location(defaultTimezone)
			case errors.Is(err, business.ErrNotFound):
				loc = (&business.Business{}).Location(defaultTimezone)
			default:
				return Reply{}, fmt.Errorf("dispatch: load business: %w", err)
			}
		} else {
			loc = (&business.Business{}).Location(defaultTimezone)
		}
		today := now().In(loc)
		from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

		appt, err := appts.NextUpcoming(ctx, req.TenantID, req.Message.ChatID, from)
		if errors.Is(err, bookings.ErrNotFound) {
			return Reply{Text: NoAppointmentReply}, nil
		}
		if err != nil {
			return Reply{}, fmt.Errorf("dispatch: status lookup: %w", err)
		}
		return Reply{Text: statusText(appt)}, nil
	})
}

func statusText(a *bookings.Appointment) string {
	var b strings.Builder
	b.WriteString("Your next appointment")
	if s := strings.TrimSpace(a.ServiceType); s != "" {
		fmt.Fprintf(&b, " for %s", s)
	}
	date := a.Date
	if d, err := time.Parse("2006-01-02", a.Date); err == nil {
		date = d.Format("Monday, 2 January 2006")
	}
	fmt.Fprintf(&b, " is on %s at %s.", date, a.Time)
	if a.ExternalEventID != "" {
		fmt.Fprintf(&b, " Reference: %s", a.ExternalEventID)
	}
	return b.String()
}

// ComplaintEscalator forwards a complaint to staff.
type ComplaintEscalator interface {
	EscalateComplaint(ctx context.Context, c notify.Complaint) error
}

// Complaint acknowledges the customer and emails staff. Escalation failures
// are logged; the customer still gets the acknowledgement.
func Complaint(escalator ComplaintEscalator, logger *logging.Logger) Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return HandlerFunc(func(ctx context.Context, req Request) (Reply, error) {
		if escalator == nil {
			logger.Warn("complaint escalation disabled", "tenant_id", req.TenantID, "queue_item_id", req.ItemID)
			return Reply{Text: ComplaintReply}, nil
		}
		err := escalator.EscalateComplaint(ctx, notify.Complaint{
			TenantID:   req.TenantID,
			CustomerID: req.Message.ChatID,
			Text:       req.Message.Text,
			ReceivedAt: req.ReceivedAt,
		})
		if err != nil {
			logger.Error("complaint escalation failed", "tenant_id", req.TenantID, "queue_item_id", req.ItemID, "error", err)
		}
		return Reply{Text: ComplaintReply}, nil
	})
}

// Handlers routes intents to handlers. Nil Greeting and Unknown fall back to
// the fixed replies; any other nil route is answered by Unknown.
type Handlers struct {
	Greeting  Handler
	FAQ       Handler
	Booking   Handler
	Status    Handler
	Complaint Handler
	Unknown   Handler
}

func (h Handlers) withDefaults() Handlers {
	if h.Greeting == nil {
		h.Greeting = Fixed(GreetingReply)
	}
	if h.Unknown == nil {
		h.Unknown = Fixed(UnknownReply)
	}
	return h
}

func (h Handlers) route(i intent.Intent) Handler {
	var out Handler
	switch i {
	case intent.Greeting:
		out = h.Greeting
	case intent.FAQ:
		out = h.FAQ
	case intent.Booking:
		out = h.Booking
	case intent.Status:
		out = h.Status
	case intent.Complaint:
		out = h.Complaint
	}
	if out == nil {
		return h.Unknown
	}
	return out
}
