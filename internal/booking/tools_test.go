package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-agent/internal/bookings"
	"github.com/wolfman30/booking-agent/internal/calendar"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/internal/slotlock"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

type failingCalendar struct {
	*calendar.Memory
	insertErr error
	deleted   []string
}

func (f *failingCalendar) InsertEvent(ctx context.Context, tenantID string, ev calendar.Event) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	return f.Memory.InsertEvent(ctx, tenantID, ev)
}

func (f *failingCalendar) DeleteEvent(ctx context.Context, tenantID, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	return f.Memory.DeleteEvent(ctx, tenantID, eventID)
}

type failingRepo struct {
	*bookings.MemoryRepository
}

func (failingRepo) Create(ctx context.Context, appt *bookings.Appointment) error {
	return errors.New("db down")
}

type executorFixture struct {
	mr    *miniredis.Miniredis
	cal   *calendar.Memory
	appts *bookings.MemoryRepository
	exec  *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &executorFixture{
		mr:    mr,
		cal:   calendar.NewMemory(),
		appts: bookings.NewMemoryRepository(),
	}
	f.exec = NewExecutor(f.cal, slotlock.New(client), f.appts, nil,
		ExecutorConfig{DefaultTimezone: "UTC", CalendarTimeout: time.Second},
		WithExecutorClock(func() time.Time { return testNow }),
	)
	return f
}

func bookCall(date, slot, phone string) llm.ToolCall {
	return llm.ToolCall{ID: "call-1", Name: ToolBookAppointment, Args: map[string]any{
		"date":           date,
		"time":           slot,
		"customer_name":  "Nimal Perera",
		"customer_phone": phone,
		"service_type":   "AC Cleaning",
	}}
}

func TestDeclarations(t *testing.T) {
	names := map[string]bool{}
	for _, d := range Declarations() {
		names[d.Name] = true
	}
	for _, want := range []string{ToolGetAvailableSlots, ToolBookAppointment, ToolCancelAppointment} {
		if !names[want] {
			t.Fatalf("missing tool %s", want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	cases := map[string]bool{
		"0771234567":  true,
		"0112345678":  true,
		"12345":       false,
		"771234567":   false,
		"07712345678": false,
		"077123456a":  false,
		"":            false,
	}
	for phone, want := range cases {
		if got := ValidPhone(phone); got != want {
			t.Errorf("ValidPhone(%q) = %v, want %v", phone, got, want)
		}
	}
}

func TestAvailableSlotsSkipsBusyAndLocked(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	start := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	if _, err := f.cal.InsertEvent(ctx, "biz-1", calendar.Event{Start: start, End: start.Add(time.Hour)}); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	if err := f.mr.Set(slotlock.Key{TenantID: "biz-1", Date: "2026-10-17", Time: "14:00"}.String(), "x"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	out, err := f.exec.Execute(ctx, "biz-1", "chat-1", llm.ToolCall{Name: ToolGetAvailableSlots, Args: map[string]any{"date": "2026-10-17"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	slots, ok := out["available_slots"].([]string)
	if !ok {
		t.Fatalf("unexpected payload %+v", out)
	}
	want := []string{"08:00", "09:00", "11:00", "12:00", "13:00", "15:00", "16:00", "17:00"}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, slots)
		}
	}
}

func TestAvailableSlotsHidesPastTimesToday(t *testing.T) {
	f := newExecutorFixture(t)
	out, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", llm.ToolCall{Name: ToolGetAvailableSlots, Args: map[string]any{"date": "2026-10-16"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	slots := out["available_slots"].([]string)
	if len(slots) == 0 || slots[0] != "10:00" {
		t.Fatalf("expected first slot 10:00, got %v", slots)
	}
}

func TestAvailableSlotsRejectsBadDate(t *testing.T) {
	f := newExecutorFixture(t)
	for _, date := range []string{"17/10/2026", "2026-13-40", ""} {
		out, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", llm.ToolCall{Name: ToolGetAvailableSlots, Args: map[string]any{"date": date}})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if out["error"] != msgInvalidDate {
			t.Fatalf("date %q: expected invalid date error, got %+v", date, out)
		}
	}
}

func TestBookRejectsInvalidPhoneWithoutLocking(t *testing.T) {
	f := newExecutorFixture(t)
	out, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", bookCall("2026-10-17", "10:00", "12345"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["error"] != msgInvalidPhone {
		t.Fatalf("expected phone error, got %+v", out)
	}
	if keys := f.mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no locks, got %v", keys)
	}
	if len(f.appts.All()) != 0 {
		t.Fatalf("expected no appointments")
	}
}

func TestBookRejectsBadTime(t *testing.T) {
	f := newExecutorFixture(t)
	out, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", bookCall("2026-10-17", "2pm", "0771234567"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["error"] != msgInvalidTime {
		t.Fatalf("expected time error, got %+v", out)
	}
}

func TestBookSuccessKeepsLock(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	call := bookCall("2026-10-17", "10:00", "0771234567")
	call.Args["duration"] = float64(90)
	out, err := f.exec.Execute(ctx, "biz-1", "chat-1", call)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["success"] != true {
		t.Fatalf("expected success, got %+v", out)
	}
	if out["confirmation"] != "Appointment confirmed for Nimal Perera on 2026-10-17 at 10:00" {
		t.Fatalf("unexpected confirmation %v", out["confirmation"])
	}

	key := slotlock.Key{TenantID: "biz-1", Date: "2026-10-17", Time: "10:00"}.String()
	if !f.mr.Exists(key) {
		t.Fatalf("expected lock %s to remain after success", key)
	}
	if ttl := f.mr.TTL(key); ttl <= 0 || ttl > slotlock.DefaultTTL {
		t.Fatalf("unexpected lock ttl %v", ttl)
	}

	events := f.cal.Events("biz-1")
	ev, ok := events[out["event_id"].(string)]
	if !ok {
		t.Fatalf("calendar event missing")
	}
	if ev.Summary != "AC Cleaning - Nimal Perera" || ev.End.Sub(ev.Start) != 90*time.Minute {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(ev.ReminderMinutes) != 2 {
		t.Fatalf("expected two reminders, got %v", ev.ReminderMinutes)
	}

	appts := f.appts.All()
	if len(appts) != 1 || appts[0].ExternalEventID != out["event_id"] || appts[0].CustomerChatID != "chat-1" {
		t.Fatalf("unexpected appointments %+v", appts)
	}

	again, err := f.exec.Execute(ctx, "biz-1", "chat-2", bookCall("2026-10-17", "10:00", "0777654321"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if again["error"] != msgSlotTaken {
		t.Fatalf("expected slot taken, got %+v", again)
	}
}

func TestBookSlotExclusivityUnderConcurrency(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.exec.Execute(ctx, "biz-1", "chat-x", bookCall("2026-10-17", "11:00", "0771234567"))
			if err != nil {
				t.Errorf("execute: %v", err)
				return
			}
			if out["success"] == true {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one booking, got %d", successes)
	}
	if n := len(f.appts.All()); n != 1 {
		t.Fatalf("expected one appointment, got %d", n)
	}
	if n := len(f.cal.Events("biz-1")); n != 1 {
		t.Fatalf("expected one calendar event, got %d", n)
	}
}

func TestBookCalendarFailureReleasesLock(t *testing.T) {
	f := newExecutorFixture(t)
	cal := &failingCalendar{Memory: f.cal, insertErr: errors.New("calendar unavailable")}
	f.exec.calendar = cal

	out, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", bookCall("2026-10-17", "12:00", "0771234567"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["error"] != msgBookingFailed {
		t.Fatalf("expected booking failure, got %+v", out)
	}
	if f.mr.Exists(slotlock.Key{TenantID: "biz-1", Date: "2026-10-17", Time: "12:00"}.String()) {
		t.Fatalf("lock should be released after calendar failure")
	}
}

func TestBookPersistFailureCompensates(t *testing.T) {
	f := newExecutorFixture(t)
	cal := &failingCalendar{Memory: f.cal}
	f.exec.calendar = cal
	f.exec.appts = failingRepo{f.appts}

	out, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", bookCall("2026-10-17", "13:00", "0771234567"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["error"] != msgBookingFailed {
		t.Fatalf("expected booking failure, got %+v", out)
	}
	if len(cal.deleted) != 1 {
		t.Fatalf("expected compensating delete, got %v", cal.deleted)
	}
	if n := len(f.cal.Events("biz-1")); n != 0 {
		t.Fatalf("expected no calendar events, got %d", n)
	}
	if f.mr.Exists(slotlock.Key{TenantID: "biz-1", Date: "2026-10-17", Time: "13:00"}.String()) {
		t.Fatalf("lock should be released after persist failure")
	}
}

func TestBookLockStoreFailureIsTransient(t *testing.T) {
	f := newExecutorFixture(t)
	f.mr.Close()

	_, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", bookCall("2026-10-17", "10:00", "0771234567"))
	if err == nil {
		t.Fatalf("expected transient error when lock store is down")
	}
}

func TestCancelAppointment(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	booked, err := f.exec.Execute(ctx, "biz-1", "chat-1", bookCall("2026-10-17", "15:00", "0771234567"))
	if err != nil || booked["success"] != true {
		t.Fatalf("book: %+v err=%v", booked, err)
	}
	eventID := booked["event_id"].(string)

	other, err := f.exec.Execute(ctx, "biz-1", "chat-2", llm.ToolCall{Name: ToolCancelAppointment, Args: map[string]any{"event_id": eventID}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if other["error"] != msgAppointmentAbsent {
		t.Fatalf("another customer must not cancel, got %+v", other)
	}

	out, err := f.exec.Execute(ctx, "biz-1", "chat-1", llm.ToolCall{Name: ToolCancelAppointment, Args: map[string]any{"event_id": eventID}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["success"] != true {
		t.Fatalf("expected success, got %+v", out)
	}
	if len(f.cal.Events("biz-1")) != 0 {
		t.Fatalf("expected calendar event removed")
	}
	if f.mr.Exists(slotlock.Key{TenantID: "biz-1", Date: "2026-10-17", Time: "15:00"}.String()) {
		t.Fatalf("expected lock released on cancel")
	}
}

func TestUnknownTool(t *testing.T) {
	f := newExecutorFixture(t)
	out, err := f.exec.Execute(context.Background(), "biz-1", "chat-1", llm.ToolCall{Name: "send_invoice"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["error"] != "Unknown tool: send_invoice" {
		t.Fatalf("unexpected payload %+v", out)
	}
}

func TestArgParsing(t *testing.T) {
	args := map[string]any{"duration": "45", "count": float64(3), "name": "  Kamal ", "phone": 771234567}
	if got := intArg(args, "duration", 60); got != 45 {
		t.Fatalf("expected 45, got %d", got)
	}
	if got := intArg(args, "count", 60); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := intArg(args, "missing", 60); got != 60 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := stringArg(args, "name"); got != "Kamal" {
		t.Fatalf("expected trimmed name, got %q", got)
	}
	if got := stringArg(args, "phone"); got != "771234567" {
		t.Fatalf("expected stringified number, got %q", got)
	}
}
