package llm

import (
	"context"
	"time"

	"github.com/wolfman30/booking-agent/internal/intent"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ToolCall is a function invocation requested by the oracle.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	CallID   string         `json:"call_id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// IsError reports whether the result carries a tool error payload.
func (r ToolResult) IsError() bool {
	_, ok := r.Response["error"]
	return ok
}

// Turn is one entry of a conversation history.
type Turn struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	At          time.Time    `json:"at"`
}

// UserTurn builds a plain text user turn.
func UserTurn(text string, at time.Time) Turn {
	return Turn{Role: RoleUser, Text: text, At: at}
}

// ParamType is the JSON schema type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
)

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// ToolDeclaration is a function the oracle may call.
type ToolDeclaration struct {
	Name        string
	Description string
	Params      []Param
}

// JSONSchema renders the parameters as a JSON schema object.
func (d ToolDeclaration) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		props[p.Name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Usage is the token accounting of one or more oracle calls.
type Usage struct {
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Add accumulates o into u, keeping the first non-empty model id.
func (u Usage) Add(o Usage) Usage {
	if u.Model == "" {
		u.Model = o.Model
	}
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	return u
}

// Request is a single chat call. The last history turn must be a user or
// tool turn.
type Request struct {
	Tier        intent.Tier
	System      string
	History     []Turn
	Tools       []ToolDeclaration
	MaxTokens   int32
	Temperature float32 // negative omits the setting
}

// Response is the oracle's answer: free text, tool calls, or both.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      Usage
	StopReason string
}

// Oracle is a function-calling language model provider.
type Oracle interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

// Embedder turns text into a vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Models maps tiers to provider model ids.
type Models struct {
	Cheap     string
	Capable   string
	Embedding string
}

// For returns the model id serving tier.
func (m Models) For(tier intent.Tier) string {
	if tier == intent.TierCapable && m.Capable != "" {
		return m.Capable
	}
	if m.Cheap != "" {
		return m.Cheap
	}
	return m.Capable
}
