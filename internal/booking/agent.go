// Package booking runs the tool-calling booking conversation: a bounded loop
// that alternates oracle calls with calendar tool execution and persists the
// conversation after every step.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-agent/internal/business"
	"github.com/wolfman30/booking-agent/internal/conversation"
	"github.com/wolfman30/booking-agent/internal/intent"
	"github.com/wolfman30/booking-agent/internal/llm"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

var tracer = otel.Tracer("booking-agent/booking")

const (
	// DefaultMaxIterations bounds oracle round-trips per customer message.
	DefaultMaxIterations = 5

	// ExhaustedReply is sent when the loop runs out of iterations.
	ExhaustedReply = "To complete your booking, please provide all details in one message: service, date, time, your name, and phone (10 digits)."
)

const firstContactPrompt = `You are a booking assistant for a Sri Lankan service business.

WORKFLOW:
1. Extract info from the customer's message (service, date, time, name, phone)
2. If you have a date, call get_available_slots to check availability
3. If the customer has picked a time and provided name and phone, call book_appointment
4. If info is missing, ask politely (phone must be 10 digits like 0771234567)

Current date: %s
Tomorrow: %s

Start by checking availability if you can determine the date.`

const continuationPrompt = `You are a booking assistant for a Sri Lankan service business.
Continue helping the customer complete the booking. Only call book_appointment
once you have date, time, service, name and a 10 digit phone number.
If the customer wants to cancel, call cancel_appointment with the event_id from the state.

Current date: %s
Tomorrow: %s
State: %s`

const finalTurnNote = `

Do not call any tools in this reply. Answer the customer in text, summarising
what has been done and what is still needed.`

// ToolExecutor runs one tool call.
type ToolExecutor interface {
	Execute(ctx context.Context, tenantID, customerID string, call llm.ToolCall) (map[string]any, error)
}

// AgentConfig bounds the loop.
type AgentConfig struct {
	MaxIterations   int
	OracleTimeout   time.Duration
	DefaultTimezone string
	MaxTokens       int32
}

// Input is one customer message routed to the agent.
type Input struct {
	TenantID   string
	CustomerID string
	Text       string
}

// Result is the outcome of one agent turn.
type Result struct {
	Reply          string
	ConversationID string
	Usage          llm.Usage
	Iterations     int
	Exhausted      bool
}

// Agent is the booking conversation loop.
type Agent struct {
	oracle        llm.Oracle
	tools         ToolExecutor
	conversations conversation.Store
	businesses    business.Store
	cfg           AgentConfig
	now           func() time.Time
	logger        *logging.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithAgentClock overrides the clock used for prompt dates and turn stamps.
func WithAgentClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithAgentLogger sets the logger.
func WithAgentLogger(l *logging.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithBusinesses resolves tenant timezones for prompt dates.
func WithBusinesses(s business.Store) AgentOption {
	return func(a *Agent) {
		a.businesses = s
	}
}

func NewAgent(oracle llm.Oracle, tools ToolExecutor, conversations conversation.Store, cfg AgentConfig, opts ...AgentOption) *Agent {
	if oracle == nil {
		panic("booking: oracle cannot be nil")
	}
	if tools == nil {
		panic("booking: tool executor cannot be nil")
	}
	if conversations == nil {
		panic("booking: conversation store cannot be nil")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	a := &Agent{
		oracle:        oracle,
		tools:         tools,
		conversations: conversations,
		cfg:           cfg,
		now:           time.Now,
		logger:        logging.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run handles one customer message. On error the returned Result still
// carries the usage consumed so far so callers can charge for it.
func (a *Agent) Run(ctx context.Context, in Input) (Result, error) {
	ctx, span := tracer.Start(ctx, "booking.agent")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", in.TenantID),
		attribute.String("booking.customer_id", in.CustomerID),
	)

	var res Result
	conv, err := a.conversations.GetOrCreate(ctx, in.TenantID, in.CustomerID, intent.Booking)
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("booking: load conversation: %w", err)
	}
	res.ConversationID = conv.ID
	log := a.logger.With("tenant_id", in.TenantID, "conversation_id", conv.ID)

	state := conv.State
	system, err := a.systemPrompt(ctx, in.TenantID, conv)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	history := make([]llm.Turn, 0, len(conv.History)+2*a.cfg.MaxIterations+1)
	history = append(history, conv.History...)
	history = append(history, llm.UserTurn(in.Text, a.now().UTC()))
	tools := Declarations()
	bookedBefore := state.EventID

	for res.Iterations < a.cfg.MaxIterations {
		res.Iterations++

		// Tool calls from the last call are never run: their outcome could
		// not be reported back to the customer. Declarations stay because
		// Bedrock requires them once the history holds tool blocks.
		final := res.Iterations == a.cfg.MaxIterations
		callSystem := system
		if final {
			callSystem = system + finalTurnNote
		}

		callCtx, cancel := context.WithTimeout(ctx, a.cfg.OracleTimeout)
		resp, err := a.oracle.Chat(callCtx, llm.Request{
			Tier:        intent.TierCapable,
			System:      callSystem,
			History:     history,
			Tools:       tools,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: 0.3,
		})
		cancel()
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("booking: oracle call %d: %w", res.Iterations, err)
		}
		res.Usage = res.Usage.Add(resp.Usage)
		if final && len(resp.ToolCalls) > 0 {
			log.Warn("tool calls on final turn dropped", "count", len(resp.ToolCalls))
			break
		}
		history = append(history, llm.Turn{
			Role:      llm.RoleModel,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
			At:        a.now().UTC(),
		})

		if len(resp.ToolCalls) == 0 {
			res.Reply = strings.TrimSpace(resp.Text)
			if res.Reply == "" {
				res.Reply = ExhaustedReply
			}
			if err := a.conversations.Update(ctx, conv.ID, state, history); err != nil {
				span.RecordError(err)
				return res, fmt.Errorf("booking: save conversation: %w", err)
			}
			span.SetAttributes(attribute.Int("booking.iterations", res.Iterations))
			return res, nil
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			out, err := a.tools.Execute(ctx, in.TenantID, in.CustomerID, call)
			if err != nil {
				span.RecordError(err)
				return res, fmt.Errorf("booking: tool %s: %w", call.Name, err)
			}
			log.Debug("tool executed", "tool", call.Name, "error", out["error"])
			applyToolResult(&state, call, out)
			results = append(results, llm.ToolResult{CallID: call.ID, Name: call.Name, Response: out})
		}
		history = append(history, llm.Turn{Role: llm.RoleTool, ToolResults: results, At: a.now().UTC()})
		if err := a.conversations.Update(ctx, conv.ID, state, history); err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("booking: save conversation: %w", err)
		}
	}

	log.Warn("booking loop exhausted", "iterations", res.Iterations)
	res.Exhausted = true
	res.Reply = ExhaustedReply
	if state.Booked && state.EventID != bookedBefore {
		res.Reply = confirmationText(state)
	}
	history = append(history, llm.Turn{Role: llm.RoleModel, Text: res.Reply, At: a.now().UTC()})
	if err := a.conversations.Update(ctx, conv.ID, state, history); err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("booking: save conversation: %w", err)
	}
	span.SetAttributes(attribute.Int("booking.iterations", res.Iterations), attribute.Bool("booking.exhausted", true))
	return res, nil
}

func (a *Agent) systemPrompt(ctx context.Context, tenantID string, conv *conversation.Conversation) (string, error) {
	loc, err := a.location(ctx, tenantID)
	if err != nil {
		return "", err
	}
	today := a.now().In(loc)
	tomorrow := today.AddDate(0, 0, 1)
	if len(conv.History) == 0 {
		return fmt.Sprintf(firstContactPrompt, today.Format("2006-01-02"), tomorrow.Format("2006-01-02")), nil
	}
	state, err := json.Marshal(conv.State)
	if err != nil {
		return "", fmt.Errorf("booking: encode state: %w", err)
	}
	return fmt.Sprintf(continuationPrompt, today.Format("2006-01-02"), tomorrow.Format("2006-01-02"), state), nil
}

func (a *Agent) location(ctx context.Context, tenantID string) (*time.Location, error) {
	if a.businesses == nil {
		return (&business.Business{}).Location(a.cfg.DefaultTimezone), nil
	}
	b, err := a.businesses.Get(ctx, tenantID)
	if errors.Is(err, business.ErrNotFound) {
		return (&business.Business{}).Location(a.cfg.DefaultTimezone), nil
	}
	if err != nil {
		return nil, fmt.Errorf("booking: load business: %w", err)
	}
	return b.Location(a.cfg.DefaultTimezone), nil
}

// confirmationText reports a booking made during a run that ran out of
// iterations before the model could confirm it.
func confirmationText(state conversation.BookingState) string {
	var b strings.Builder
	b.WriteString("Your appointment")
	if state.Service != "" {
		fmt.Fprintf(&b, " for %s", state.Service)
	}
	fmt.Fprintf(&b, " is booked for %s at %s.", state.AppointmentDate, state.AppointmentTime)
	if state.EventID != "" {
		fmt.Fprintf(&b, " Reference: %s", state.EventID)
	}
	return b.String()
}

// applyToolResult folds a tool outcome into the typed conversation state.
func applyToolResult(state *conversation.BookingState, call llm.ToolCall, out map[string]any) {
	if _, failed := out["error"]; failed {
		return
	}
	switch call.Name {
	case ToolGetAvailableSlots:
		state.LastDateChecked = stringArg(call.Args, "date")
	case ToolBookAppointment:
		state.Booked = true
		state.EventID = fmt.Sprint(out["event_id"])
		state.AppointmentDate = stringArg(call.Args, "date")
		state.AppointmentTime = stringArg(call.Args, "time")
		state.CustomerName = stringArg(call.Args, "customer_name")
		state.CustomerPhone = stringArg(call.Args, "customer_phone")
		state.Service = stringArg(call.Args, "service_type")
	case ToolCancelAppointment:
		if state.EventID == stringArg(call.Args, "event_id") {
			state.Booked = false
			state.EventID = ""
			state.AppointmentDate = ""
			state.AppointmentTime = ""
		}
	}
}
