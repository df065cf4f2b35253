package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/booking-agent/internal/business"
)

type fakeSendGrid struct {
	sent   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status, Body: "rejected"}, nil
}

func TestNewSendGridSenderRequiresKeyAndFrom(t *testing.T) {
	if _, err := NewSendGridSender(SendGridConfig{From: Address{Email: "bot@example.com"}}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured without key, got %v", err)
	}
	if _, err := NewSendGridSender(SendGridConfig{APIKey: "sg-key"}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured without from, got %v", err)
	}
	if s, err := NewSendGridSender(SendGridConfig{APIKey: "sg-key", From: Address{Email: "bot@example.com"}}, nil); err != nil || s == nil {
		t.Fatalf("expected sender, got %v", err)
	}
}

func TestSendGridSenderBuildsMessage(t *testing.T) {
	api := &fakeSendGrid{status: 202}
	sender := newSendGridSender(api, Address{Name: "Bookings", Email: "bot@example.com"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To: Address{Name: "Owner", Email: "owner@example.com"}, Subject: "Hi", Text: "plain", Category: "complaint",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if api.sent.From.Address != "bot@example.com" || api.sent.Subject != "Hi" {
		t.Fatalf("unexpected envelope %+v", api.sent)
	}
	if len(api.sent.Content) != 1 || api.sent.Content[0].Type != "text/plain" {
		t.Fatalf("text-only message should carry one plain part, got %+v", api.sent.Content)
	}
	if len(api.sent.Categories) != 1 || api.sent.Categories[0] != "complaint" {
		t.Fatalf("expected complaint category, got %v", api.sent.Categories)
	}
}

func TestSendGridSenderRejectedStatus(t *testing.T) {
	sender := newSendGridSender(&fakeSendGrid{status: 401}, Address{Email: "bot@example.com"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: Address{Email: "a@example.com"}}); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
	sender = newSendGridSender(&fakeSendGrid{err: errors.New("dial tcp")}, Address{Email: "bot@example.com"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: Address{Email: "a@example.com"}}); err == nil || !strings.Contains(err.Error(), "dial tcp") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSenderBuildsMessage(t *testing.T) {
	api := &fakeSES{}
	sender := newSESSender(api, SESConfig{From: Address{Name: "Bookings", Email: "bot@example.com"}, ConfigurationSet: "escalations"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To: Address{Email: "owner@example.com"}, Subject: "Hi", Text: "plain", HTML: "<p>html</p>", Category: "complaint",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != `"Bookings" <bot@example.com>` {
		t.Fatalf("unexpected from %q", got)
	}
	if got := api.input.Destination.ToAddresses; len(got) != 1 || got[0] != "<owner@example.com>" {
		t.Fatalf("unexpected recipients %v", got)
	}
	body := api.input.Content.Simple.Body
	if aws.ToString(body.Text.Data) != "plain" || aws.ToString(body.Html.Data) != "<p>html</p>" {
		t.Fatalf("unexpected body %+v", body)
	}
	if aws.ToString(api.input.ConfigurationSetName) != "escalations" || len(api.input.EmailTags) != 1 {
		t.Fatalf("expected configuration set and tag, got %+v", api.input)
	}
}

func TestSESSenderWrapsError(t *testing.T) {
	if _, err := NewSESSender(nil, SESConfig{}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	sender := newSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{From: Address{Email: "bot@example.com"}}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: Address{Email: "a@example.com"}}); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type stubBusinesses map[string]*business.Business

func (s stubBusinesses) Get(ctx context.Context, id string) (*business.Business, error) {
	b, ok := s[id]
	if !ok {
		return nil, business.ErrNotFound
	}
	return b, nil
}

func (s stubBusinesses) CalendarCredentials(ctx context.Context, id string) (business.CalendarCredentials, error) {
	return business.CalendarCredentials{}, business.ErrNoCalendar
}

func TestEscalateComplaint(t *testing.T) {
	stub := NewStubEmailSender(nil)
	biz := stubBusinesses{
		"biz-1": {ID: "biz-1", Name: "Cool Air", Timezone: "UTC", NotifyEmail: "owner@coolair.lk"},
		"biz-2": {ID: "biz-2", Name: "Quiet"},
	}
	e := NewEscalator(stub, biz, nil)

	err := e.EscalateComplaint(context.Background(), Complaint{
		TenantID:   "biz-1",
		CustomerID: "42",
		Text:       "The technician never came <b>again</b>",
		ReceivedAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	sent := stub.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	msg := sent[0]
	if msg.To.Email != "owner@coolair.lk" || msg.Subject != "Customer complaint for Cool Air" || msg.Category != "complaint" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if strings.Contains(msg.HTML, "<b>again</b>") {
		t.Fatalf("customer text must be escaped in HTML: %s", msg.HTML)
	}

	if err := e.EscalateComplaint(context.Background(), Complaint{TenantID: "biz-2"}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if err := e.EscalateComplaint(context.Background(), Complaint{TenantID: "missing"}); !errors.Is(err, business.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
