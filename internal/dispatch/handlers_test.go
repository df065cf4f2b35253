package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-agent/internal/booking"
	"github.com/wolfman30/booking-agent/internal/bookings"
	"github.com/wolfman30/booking-agent/internal/business"
	"github.com/wolfman30/booking-agent/internal/faq"
	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/internal/notify"
	"github.com/wolfman30/booking-agent/internal/queue"
)

func request(text string) Request {
	return Request{
		ItemID:   "item-1",
		TenantID: tenant,
		Message:  queue.Message{Text: text, UserID: "9", ChatID: "9", MessageID: 42},
	}
}

type stubAnswerer struct {
	answer faq.Answer
	err    error
}

func (s stubAnswerer) Answer(ctx context.Context, tenantID, question string) (faq.Answer, error) {
	return s.answer, s.err
}

func TestFAQHandlerPassesUsage(t *testing.T) {
	h := FAQ(stubAnswerer{answer: faq.Answer{Text: "We open at 8.", Usage: llm.Usage{InputTokens: 40, OutputTokens: 10}}})
	reply, err := h.Handle(context.Background(), request("when do you open"))
	require.NoError(t, err)
	assert.Equal(t, "We open at 8.", reply.Text)
	assert.True(t, reply.spent())
}

func TestFAQHandlerErrorKeepsUsage(t *testing.T) {
	h := FAQ(stubAnswerer{answer: faq.Answer{Usage: llm.Usage{InputTokens: 40}}, err: errors.New("oracle down")})
	reply, err := h.Handle(context.Background(), request("when do you open"))
	require.Error(t, err)
	assert.Equal(t, 40, reply.Usage.InputTokens)
}

type stubRunner struct {
	in  booking.Input
	res booking.Result
	err error
}

func (s *stubRunner) Run(ctx context.Context, in booking.Input) (booking.Result, error) {
	s.in = in
	return s.res, s.err
}

func TestBookingHandlerKeysCustomerByChat(t *testing.T) {
	runner := &stubRunner{res: booking.Result{Reply: "Booked!", Usage: llm.Usage{InputTokens: 5}, Iterations: 2}}
	req := request("book tomorrow")
	req.Message.UserID = "user-5"
	reply, err := Booking(runner, nil).Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Booked!", reply.Text)
	assert.Equal(t, "9", runner.in.CustomerID)
	assert.Equal(t, tenant, runner.in.TenantID)
}

type stubFinder struct {
	appt *bookings.Appointment
	err  error
	from time.Time
}

func (s *stubFinder) NextUpcoming(ctx context.Context, tenantID, chatID string, from time.Time) (*bookings.Appointment, error) {
	s.from = from
	return s.appt, s.err
}

func TestStatusHandler(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC) }
	businesses := business.NewStaticStore(business.Business{ID: tenant, Timezone: "Asia/Colombo"})

	finder := &stubFinder{appt: &bookings.Appointment{ServiceType: "AC cleaning", Date: "2026-10-18", Time: "10:00", ExternalEventID: "evt-1"}}
	reply, err := Status(finder, businesses, "UTC", now).Handle(context.Background(), request("where is my technician"))
	require.NoError(t, err)
	assert.Equal(t, "Your next appointment for AC cleaning is on Sunday, 18 October 2026 at 10:00. Reference: evt-1", reply.Text)
	// 20:00 UTC is already the 17th in Colombo.
	assert.Equal(t, "2026-10-17", finder.from.Format("2006-01-02"))

	reply, err = Status(&stubFinder{err: bookings.ErrNotFound}, nil, "UTC", now).Handle(context.Background(), request("status?"))
	require.NoError(t, err)
	assert.Equal(t, NoAppointmentReply, reply.Text)

	_, err = Status(&stubFinder{err: errors.New("db down")}, nil, "UTC", now).Handle(context.Background(), request("status?"))
	require.Error(t, err)
}

type stubEscalator struct {
	got []notify.Complaint
	err error
}

func (s *stubEscalator) EscalateComplaint(ctx context.Context, c notify.Complaint) error {
	s.got = append(s.got, c)
	return s.err
}

func TestComplaintHandlerEscalates(t *testing.T) {
	esc := &stubEscalator{err: errors.New("smtp down")}
	reply, err := Complaint(esc, nil).Handle(context.Background(), request("this is terrible"))
	require.NoError(t, err)
	assert.Equal(t, ComplaintReply, reply.Text)
	require.Len(t, esc.got, 1)
	assert.Equal(t, "this is terrible", esc.got[0].Text)
	assert.Equal(t, "9", esc.got[0].CustomerID)

	reply, err = Complaint(nil, nil).Handle(context.Background(), request("broken"))
	require.NoError(t, err)
	assert.Equal(t, ComplaintReply, reply.Text)
}

func TestHandlersRouteFallsBackToUnknown(t *testing.T) {
	h := Handlers{}.withDefaults()
	for _, i := range []intent.Intent{intent.FAQ, intent.Booking, intent.Status, intent.Unknown} {
		reply, err := h.route(i).Handle(context.Background(), request("x"))
		require.NoError(t, err)
		assert.Equal(t, UnknownReply, reply.Text, "intent %s", i)
	}
	reply, _ := h.route(intent.Greeting).Handle(context.Background(), request("hi"))
	assert.True(t, strings.HasPrefix(reply.Text, "Hello!"))
}
