package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-agent/internal/bookings"
	"github.com/wolfman30/booking-agent/internal/business"
	"github.com/wolfman30/booking-agent/internal/calendar"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/internal/slotlock"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

const (
	ToolGetAvailableSlots = "get_available_slots"
	ToolBookAppointment   = "book_appointment"
	ToolCancelAppointment = "cancel_appointment"

	defaultDurationMinutes = 60
	maxDurationMinutes     = 8 * 60
)

// Tool error messages returned to the oracle.
const (
	msgInvalidDate       = "Invalid date format. Use YYYY-MM-DD"
	msgInvalidTime       = "Invalid time format. Use HH:MM (24-hour)"
	msgInvalidPhone      = "Invalid phone number. Please provide a valid Sri Lankan number (e.g., 0771234567)"
	msgSlotTaken         = "This slot was just booked by another customer. Please choose a different time."
	msgSlotBusy          = "This slot is currently being booked. Please try again in a moment."
	msgBookingFailed     = "Failed to create appointment. Please try again."
	msgNoCalendar        = "Online booking is not available for this business yet. A team member will contact you."
	msgAppointmentAbsent = "No confirmed appointment was found with that reference."
)

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern  = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	phonePattern = regexp.MustCompile(`^0\d{9}$`)
)

// ValidPhone reports whether phone is a 10-digit local number starting with 0.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Declarations are the tools exposed to the booking oracle.
func Declarations() []llm.ToolDeclaration {
	return []llm.ToolDeclaration{
		{
			Name:        ToolGetAvailableSlots,
			Description: "Get available time slots for booking an appointment on a specific date. Returns list of available times in HH:MM format (24-hour).",
			Params: []llm.Param{
				{Name: "date", Type: llm.ParamString, Description: "Date in YYYY-MM-DD format (e.g., 2026-11-25)", Required: true},
			},
		},
		{
			Name:        ToolBookAppointment,
			Description: "Book an appointment at a specific date and time. Call this AFTER confirming availability with get_available_slots.",
			Params: []llm.Param{
				{Name: "date", Type: llm.ParamString, Description: "Date in YYYY-MM-DD format (e.g., 2026-11-25)", Required: true},
				{Name: "time", Type: llm.ParamString, Description: "Time in HH:MM format, 24-hour (e.g., 14:00 for 2 PM)", Required: true},
				{Name: "customer_name", Type: llm.ParamString, Description: "Customer full name", Required: true},
				{Name: "customer_phone", Type: llm.ParamString, Description: "Customer phone number (Sri Lankan format: 0771234567)", Required: true},
				{Name: "service_type", Type: llm.ParamString, Description: "Type of service (e.g., AC Cleaning, Plumbing, General Cleaning)", Required: true},
				{Name: "duration", Type: llm.ParamNumber, Description: "Duration in minutes (default: 60)"},
			},
		},
		{
			Name:        ToolCancelAppointment,
			Description: "Cancel one of the customer's confirmed appointments using the event_id returned when it was booked.",
			Params: []llm.Param{
				{Name: "event_id", Type: llm.ParamString, Description: "The event_id of the appointment to cancel", Required: true},
			},
		},
	}
}

// SlotLocker is the lock store used while booking.
type SlotLocker interface {
	Acquire(ctx context.Context, key slotlock.Key, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key slotlock.Key) (bool, error)
	Release(ctx context.Context, key slotlock.Key) error
}

// ExecutorConfig holds executor limits and tenant defaults.
type ExecutorConfig struct {
	CalendarTimeout time.Duration
	LockTTL         time.Duration
	DefaultTimezone string
	OpenHour        int
	CloseHour       int
}

// Executor runs calendar tools on behalf of the booking agent.
//
// Validation and contention problems are returned as {"error": "..."}
// payloads for the oracle to relay. Lock store and calendar read failures are
// returned as Go errors.
type Executor struct {
	calendar   calendar.Client
	locks      SlotLocker
	appts      bookings.Repository
	businesses business.Store
	cfg        ExecutorConfig
	now        func() time.Time
	logger     *logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorClock overrides the clock used to hide past slots.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor wires the calendar tools. businesses may be nil, in which case
// every tenant uses the configured defaults.
func NewExecutor(cal calendar.Client, locks SlotLocker, appts bookings.Repository, businesses business.Store, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	if cal == nil {
		panic("booking: calendar client cannot be nil")
	}
	if locks == nil {
		panic("booking: slot locker cannot be nil")
	}
	if appts == nil {
		panic("booking: appointment repository cannot be nil")
	}
	if cfg.CalendarTimeout <= 0 {
		cfg.CalendarTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = slotlock.DefaultTTL
	}
	if cfg.OpenHour == 0 && cfg.CloseHour == 0 {
		cfg.OpenHour, cfg.CloseHour = 8, 18
	}
	e := &Executor{
		calendar:   cal,
		locks:      locks,
		appts:      appts,
		businesses: businesses,
		cfg:        cfg,
		now:        time.Now,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call for a customer of tenantID.
func (e *Executor) Execute(ctx context.Context, tenantID, customerID string, call llm.ToolCall) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "booking.tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tool", call.Name),
		attribute.String("booking.tenant_id", tenantID),
	)

	var (
		out map[string]any
		err error
	)
	switch call.Name {
	case ToolGetAvailableSlots:
		out, err = e.availableSlots(ctx, tenantID, call.Args)
	case ToolBookAppointment:
		out, err = e.book(ctx, tenantID, customerID, call.Args)
	case ToolCancelAppointment:
		out, err = e.cancel(ctx, tenantID, customerID, call.Args)
	default:
		out = toolError(fmt.Sprintf("Unknown tool: %s", call.Name))
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if msg, ok := out["error"]; ok {
		span.SetAttributes(attribute.String("booking.tool_error", fmt.Sprint(msg)))
	}
	return out, nil
}

func (e *Executor) availableSlots(ctx context.Context, tenantID string, args map[string]any) (map[string]any, error) {
	date := stringArg(args, "date")
	hours, err := e.hours(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !datePattern.MatchString(date) {
		return toolError(msgInvalidDate), nil
	}
	open, closing, err := hours.Day(date)
	if err != nil {
		return toolError(msgInvalidDate), nil
	}

	calCtx, cancel := context.WithTimeout(ctx, e.cfg.CalendarTimeout)
	busy, err := e.calendar.BusyIntervals(calCtx, tenantID, open, closing)
	cancel()
	if err != nil {
		if errors.Is(err, business.ErrNoCalendar) {
			return toolError(msgNoCalendar), nil
		}
		return nil, fmt.Errorf("booking: free/busy for %s: %w", date, err)
	}

	slots := calendar.Slots(open, closing, time.Hour, busy, e.now())
	available := make([]string, 0, len(slots))
	for _, slot := range slots {
		locked, err := e.locks.Exists(ctx, slotlock.Key{TenantID: tenantID, Date: date, Time: slot})
		if err != nil {
			return nil, fmt.Errorf("booking: check slot lock: %w", err)
		}
		if !locked {
			available = append(available, slot)
		}
	}
	return map[string]any{
		"date":            date,
		"available_slots": available,
		"count":           len(available),
	}, nil
}

func (e *Executor) book(ctx context.Context, tenantID, customerID string, args map[string]any) (map[string]any, error) {
	var (
		date    = stringArg(args, "date")
		slot    = stringArg(args, "time")
		name    = stringArg(args, "customer_name")
		phone   = strings.ReplaceAll(stringArg(args, "customer_phone"), " ", "")
		service = stringArg(args, "service_type")
	)
	duration := intArg(args, "duration", defaultDurationMinutes)
	if duration <= 0 || duration > maxDurationMinutes {
		duration = defaultDurationMinutes
	}

	if !datePattern.MatchString(date) {
		return toolError(msgInvalidDate), nil
	}
	if !ValidPhone(phone) {
		return toolError(msgInvalidPhone), nil
	}
	if !timePattern.MatchString(slot) {
		return toolError(msgInvalidTime), nil
	}
	for field, v := range map[string]string{"customer_name": name, "service_type": service} {
		if v == "" {
			return toolError("Missing required field: " + field), nil
		}
	}

	hours, err := e.hours(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+slot, hours.Location)
	if err != nil {
		return toolError(msgInvalidDate), nil
	}

	key := slotlock.Key{TenantID: tenantID, Date: date, Time: slot}
	locked, err := e.locks.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("booking: check slot lock: %w", err)
	}
	if locked {
		return toolError(msgSlotTaken), nil
	}
	acquired, err := e.locks.Acquire(ctx, key, e.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("booking: acquire slot lock: %w", err)
	}
	if !acquired {
		return toolError(msgSlotBusy), nil
	}

	log := e.logger.With("tenant_id", tenantID, "slot", key.String())

	calCtx, cancel := context.WithTimeout(ctx, e.cfg.CalendarTimeout)
	eventID, err := e.calendar.InsertEvent(calCtx, tenantID, calendar.Event{
		Summary:         fmt.Sprintf("%s - %s", service, name),
		Description:     fmt.Sprintf("Customer: %s\nPhone: %s\nService: %s\nBooked via chat assistant", name, phone, service),
		Start:           start,
		End:             start.Add(time.Duration(duration) * time.Minute),
		TimeZone:        hours.Location.String(),
		ReminderMinutes: []int64{60, 10},
	})
	cancel()
	if err != nil {
		log.Error("calendar insert failed", "error", err)
		e.releaseLock(ctx, key)
		if errors.Is(err, business.ErrNoCalendar) {
			return toolError(msgNoCalendar), nil
		}
		return toolError(msgBookingFailed), nil
	}

	appt := &bookings.Appointment{
		TenantID:        tenantID,
		CustomerChatID:  customerID,
		CustomerName:    name,
		CustomerPhone:   phone,
		ServiceType:     service,
		Date:            date,
		Time:            slot,
		DurationMinutes: duration,
		ExternalEventID: eventID,
		Status:          bookings.StatusConfirmed,
	}
	if err := e.appts.Create(ctx, appt); err != nil {
		log.Error("appointment insert failed, removing calendar event", "error", err, "event_id", eventID)
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CalendarTimeout)
		if derr := e.calendar.DeleteEvent(cleanupCtx, tenantID, eventID); derr != nil {
			log.Error("calendar compensation failed", "error", derr, "event_id", eventID)
		}
		cancel()
		e.releaseLock(ctx, key)
		return toolError(msgBookingFailed), nil
	}

	log.Info("appointment booked", "event_id", eventID, "appointment_id", appt.ID)
	return map[string]any{
		"success":      true,
		"event_id":     eventID,
		"date":         date,
		"time":         slot,
		"confirmation": fmt.Sprintf("Appointment confirmed for %s on %s at %s", name, date, slot),
	}, nil
}

func (e *Executor) cancel(ctx context.Context, tenantID, customerID string, args map[string]any) (map[string]any, error) {
	eventID := stringArg(args, "event_id")
	if eventID == "" {
		return toolError("Missing required field: event_id"), nil
	}
	appt, err := e.appts.Cancel(ctx, tenantID, customerID, eventID)
	if errors.Is(err, bookings.ErrNotFound) {
		return toolError(msgAppointmentAbsent), nil
	}
	if err != nil {
		return nil, fmt.Errorf("booking: cancel appointment: %w", err)
	}

	log := e.logger.With("tenant_id", tenantID, "event_id", eventID)
	calCtx, cancel := context.WithTimeout(ctx, e.cfg.CalendarTimeout)
	if err := e.calendar.DeleteEvent(calCtx, tenantID, eventID); err != nil {
		log.Error("calendar delete failed after cancellation", "error", err)
	}
	cancel()
	e.releaseLock(ctx, slotlock.Key{TenantID: tenantID, Date: appt.Date, Time: appt.Time})

	log.Info("appointment cancelled", "appointment_id", appt.ID)
	return map[string]any{
		"success":      true,
		"event_id":     eventID,
		"confirmation": fmt.Sprintf("Appointment on %s at %s has been cancelled", appt.Date, appt.Time),
	}, nil
}

func (e *Executor) releaseLock(ctx context.Context, key slotlock.Key) {
	if err := e.locks.Release(context.WithoutCancel(ctx), key); err != nil {
		e.logger.Warn("failed to release slot lock", "slot", key.String(), "error", err)
	}
}

// hours resolves the tenant's opening hours and timezone.
func (e *Executor) hours(ctx context.Context, tenantID string) (calendar.Hours, error) {
	h := calendar.Hours{Open: e.cfg.OpenHour, Close: e.cfg.CloseHour}
	fallback := &business.Business{}
	if e.businesses == nil {
		h.Location = fallback.Location(e.cfg.DefaultTimezone)
		return h, nil
	}
	b, err := e.businesses.Get(ctx, tenantID)
	switch {
	case errors.Is(err, business.ErrNotFound):
		h.Location = fallback.Location(e.cfg.DefaultTimezone)
		return h, nil
	case err != nil:
		return calendar.Hours{}, fmt.Errorf("booking: load business: %w", err)
	}
	h.Location = b.Location(e.cfg.DefaultTimezone)
	if b.CloseHour > b.OpenHour {
		h.Open, h.Close = b.OpenHour, b.CloseHour
	}
	return h, nil
}

func toolError(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// stringArg reads a tool argument as text. Providers may deliver numbers
// for fields the model decided to quote or not.
func stringArg(args map[string]any, name string) string {
	v, ok := args[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func intArg(args map[string]any, name string, def int) int {
	raw := stringArg(args, name)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return int(f)
}
