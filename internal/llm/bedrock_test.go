package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wolfman30/booking-agent/internal/intent"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestBedrockOracleToolUse(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: "Let me check."},
				&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String("tu-1"),
					Name:      aws.String("get_available_slots"),
					Input:     document.NewLazyDocument(map[string]any{"date": "2026-10-17"}),
				}},
			},
		}},
		StopReason: brtypes.StopReasonToolUse,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(120), OutputTokens: aws.Int32(30)},
	}}
	oracle := NewBedrockOracle(api, Models{Cheap: "cheap-model", Capable: "capable-model"})

	resp, err := oracle.Chat(context.Background(), Request{
		Tier:        intent.TierCapable,
		System:      "be helpful",
		History:     []Turn{{Role: RoleUser, Text: "book tomorrow"}},
		Tools:       []ToolDeclaration{{Name: "get_available_slots", Params: []Param{{Name: "date", Type: ParamString, Required: true}}}},
		Temperature: -1,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if aws.ToString(api.input.ModelId) != "capable-model" {
		t.Fatalf("expected capable model, got %s", aws.ToString(api.input.ModelId))
	}
	if api.input.ToolConfig == nil || len(api.input.ToolConfig.Tools) != 1 {
		t.Fatalf("expected tool config to be sent")
	}
	if api.input.InferenceConfig != nil {
		t.Fatalf("expected inference config to be omitted")
	}
	if resp.Text != "Let me check." {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "tu-1" || resp.ToolCalls[0].Args["date"] != "2026-10-17" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage.Model != "capable-model" || resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 30 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}

func TestBedrockMessagesToolRoundTrip(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Text: "book"},
		{Role: RoleModel, ToolCalls: []ToolCall{{ID: "c1", Name: "book_appointment", Args: map[string]any{"date": "2026-10-17"}}}},
		{Role: RoleTool, ToolResults: []ToolResult{{CallID: "c1", Name: "book_appointment", Response: map[string]any{"error": "Invalid phone number"}}}},
	}
	msgs, err := bedrockMessages(turns)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != brtypes.ConversationRoleAssistant {
		t.Fatalf("expected assistant role for model turn")
	}
	result, ok := msgs[2].Content[0].(*brtypes.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("expected tool result block, got %T", msgs[2].Content[0])
	}
	if result.Value.Status != brtypes.ToolResultStatusError {
		t.Fatalf("expected error status, got %s", result.Value.Status)
	}
	if aws.ToString(result.Value.ToolUseId) != "c1" {
		t.Fatalf("expected tool use id c1")
	}
}

func TestBedrockMessagesMergesConsecutiveUserTurns(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Text: "book"},
		{Role: RoleModel, ToolCalls: []ToolCall{{ID: "c1", Name: "get_available_slots", Args: map[string]any{"date": "2026-10-17"}}}},
		{Role: RoleTool, ToolResults: []ToolResult{{CallID: "c1", Name: "get_available_slots", Response: map[string]any{"count": 2}}}},
		{Role: RoleUser, Text: "10:00 please"},
	}
	msgs, err := bedrockMessages(turns)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 alternating messages, got %d", len(msgs))
	}
	if len(msgs[2].Content) != 2 {
		t.Fatalf("expected tool result and text in one user message, got %d blocks", len(msgs[2].Content))
	}
}

func TestBedrockMessagesRejectsTrailingModelTurn(t *testing.T) {
	_, err := bedrockMessages([]Turn{{Role: RoleUser, Text: "hi"}, {Role: RoleModel, Text: "hello"}})
	if err == nil {
		t.Fatal("expected error for trailing model turn")
	}
}

func TestBedrockOracleWrapsError(t *testing.T) {
	api := &fakeConverse{err: errors.New("throttled")}
	oracle := NewBedrockOracle(api, Models{Cheap: "m"})
	_, err := oracle.Chat(context.Background(), Request{History: []Turn{{Role: RoleUser, Text: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
}

type fakeInvoke struct {
	body []byte
	err  error
}

func (f *fakeInvoke) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrockEmbedder(t *testing.T) {
	e := NewBedrockEmbedder(&fakeInvoke{body: []byte(`{"embedding":[0.5,0.25]}`)}, "titan")
	vec, err := e.Embed(context.Background(), "hours?")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != 0.25 {
		t.Fatalf("unexpected vector %v", vec)
	}

	empty := NewBedrockEmbedder(&fakeInvoke{body: []byte(`{"embedding":[]}`)}, "titan")
	if _, err := empty.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}
