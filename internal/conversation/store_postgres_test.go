package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
)

var conversationColumns = []string{
	"id", "business_id", "customer_chat_id", "intent", "state", "history",
	"last_message_at", "created_at", "expires_at",
}

func TestPGStoreGetActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	store := newPGStoreWithExec(mock, WithClock(func() time.Time { return now }))

	mock.ExpectQuery("SELECT id, business_id, customer_chat_id").
		WithArgs("biz-1", "chat-1", now).
		WillReturnRows(pgxmock.NewRows(conversationColumns).AddRow(
			"conv-1", "biz-1", "chat-1", "booking",
			[]byte(`{"version":1,"last_date_checked":"2026-10-17"}`),
			[]byte(`[{"role":"user","text":"book tomorrow","at":"2026-10-16T08:50:00Z"}]`),
			now.Add(-10*time.Minute), now.Add(-10*time.Minute), now.Add(20*time.Minute),
		))

	c, err := store.GetActive(context.Background(), "biz-1", "chat-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if c.ID != "conv-1" || c.Intent != intent.Booking || c.State.LastDateChecked != "2026-10-17" {
		t.Fatalf("unexpected conversation %+v", c)
	}
	if len(c.History) != 1 || c.History[0].Role != llm.RoleUser {
		t.Fatalf("unexpected history %+v", c.History)
	}

	mock.ExpectQuery("SELECT id, business_id, customer_chat_id").
		WithArgs("biz-1", "chat-2", now).
		WillReturnError(pgx.ErrNoRows)
	c, err = store.GetActive(context.Background(), "biz-1", "chat-2")
	if err != nil || c != nil {
		t.Fatalf("expected no conversation, got %+v err=%v", c, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreGetOrCreateInsertsWhenMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	store := newPGStoreWithExec(mock, WithClock(func() time.Time { return now }))

	mock.ExpectQuery("SELECT id, business_id, customer_chat_id").
		WithArgs("biz-1", "chat-1", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs("biz-1", "chat-1", "booking", pgxmock.AnyArg(), now, now.Add(30*time.Minute)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("conv-new"))

	c, err := store.GetOrCreate(context.Background(), "biz-1", "chat-1", intent.Booking)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if c.ID != "conv-new" || !c.ExpiresAt.Equal(now.Add(30*time.Minute)) {
		t.Fatalf("unexpected conversation %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreUpdateSlidesExpiry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC)
	store := newPGStoreWithExec(mock, WithClock(func() time.Time { return now }))

	mock.ExpectExec("UPDATE conversations").
		WithArgs("conv-1", pgxmock.AnyArg(), pgxmock.AnyArg(), now, now.Add(30*time.Minute)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.Update(context.Background(), "conv-1", BookingState{}, []llm.Turn{llm.UserTurn("hi", now)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	mock.ExpectExec("UPDATE conversations").
		WithArgs("conv-x", pgxmock.AnyArg(), pgxmock.AnyArg(), now, now.Add(30*time.Minute)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := store.Update(context.Background(), "conv-x", BookingState{}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
