// Package queue holds inbound customer messages waiting for the dispatcher.
//
// Items move pending → processing → completed|failed. The pending →
// processing claim is a conditional update and is the only guard against two
// dispatchers handling the same item.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrMalformedPayload is returned when a payload is not a Telegram update.
	ErrMalformedPayload = errors.New("queue: malformed payload")
	// ErrNotFound is returned when a transition targets an unknown or
	// already settled item.
	ErrNotFound = errors.New("queue: item not found in expected status")
)

// Item is one queued inbound message.
type Item struct {
	ID        string
	TenantID  string
	Payload   json.RawMessage
	Status    Status
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TelegramUpdate is the subset of a Telegram Bot API update the dispatcher
// reads.
type TelegramUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *TelegramMessage `json:"message,omitempty"`
	EditedMessage *TelegramMessage `json:"edited_message,omitempty"`
}

type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from,omitempty"`
	Chat      *TelegramChat `json:"chat,omitempty"`
	Date      int64         `json:"date"`
	Text      string        `json:"text,omitempty"`
}

type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type TelegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// HasMessage reports whether the update carries a new or edited message.
func (u TelegramUpdate) HasMessage() bool {
	return u.Message != nil || u.EditedMessage != nil
}

// Message is the customer text extracted from a payload.
type Message struct {
	Text      string
	UserID    string
	ChatID    string
	MessageID int64
}

// ParseUpdate decodes a raw payload.
func ParseUpdate(raw []byte) (TelegramUpdate, error) {
	var u TelegramUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return TelegramUpdate{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return u, nil
}

// ExtractMessage returns the text message of a payload, preferring a new
// message over an edit. It returns nil, nil when the update has no text.
func ExtractMessage(raw []byte) (*Message, error) {
	u, err := ParseUpdate(raw)
	if err != nil {
		return nil, err
	}
	m := u.Message
	if m == nil {
		m = u.EditedMessage
	}
	if m == nil || strings.TrimSpace(m.Text) == "" {
		return nil, nil
	}
	out := &Message{Text: m.Text, UserID: "unknown", ChatID: "unknown", MessageID: m.MessageID}
	if m.From != nil {
		out.UserID = strconv.FormatInt(m.From.ID, 10)
	}
	if m.Chat != nil {
		out.ChatID = strconv.FormatInt(m.Chat.ID, 10)
	}
	return out, nil
}

// Store is the durable queue.
type Store interface {
	// FetchPending lists up to limit pending items, oldest first.
	FetchPending(ctx context.Context, limit int) ([]Item, error)
	// Claim moves an item from pending to processing. It reports false when
	// the item is no longer pending.
	Claim(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	Enqueue(ctx context.Context, tenantID string, payload json.RawMessage) (string, error)
}

// maxErrorLen bounds the stored failure reason.
const maxErrorLen = 1000

// truncateReason cuts on a rune boundary; Postgres rejects invalid UTF-8 in
// TEXT columns.
func truncateReason(reason string) string {
	reason = strings.ToValidUTF8(reason, "\uFFFD")
	if len(reason) <= maxErrorLen {
		return reason
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
