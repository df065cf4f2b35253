package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type bedrockInvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockOracle implements Oracle on the Bedrock Converse API.
type BedrockOracle struct {
	api    bedrockConverseAPI
	models Models
}

func NewBedrockOracle(api bedrockConverseAPI, models Models) *BedrockOracle {
	if api == nil {
		panic("llm: bedrock converse client cannot be nil")
	}
	return &BedrockOracle{api: api, models: models}
}

func (o *BedrockOracle) Chat(ctx context.Context, req Request) (Response, error) {
	modelID := o.models.For(req.Tier)
	if strings.TrimSpace(modelID) == "" {
		return Response{}, errors.New("llm: bedrock model id is required")
	}

	messages, err := bedrockMessages(req.History)
	if err != nil {
		return Response{}, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if strings.TrimSpace(req.System) != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = bedrockToolConfig(req.Tools)
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Allow callers to omit temperature by passing a negative value.
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if inference.MaxTokens != nil || inference.Temperature != nil {
		input.InferenceConfig = inference
	}

	out, err := o.api.Converse(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock converse failed: %w", err)
	}
	resp, err := bedrockResponse(out)
	if err != nil {
		return Response{}, err
	}
	resp.Usage.Model = modelID
	return resp, nil
}

func bedrockToolConfig(decls []ToolDeclaration) *brtypes.ToolConfiguration {
	tools := make([]brtypes.Tool, 0, len(decls))
	for _, d := range decls {
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(d.JSONSchema()),
				},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

func bedrockMessages(turns []Turn) ([]brtypes.Message, error) {
	messages := make([]brtypes.Message, 0, len(turns))
	for _, turn := range turns {
		var msg brtypes.Message
		switch turn.Role {
		case RoleUser:
			msg.Role = brtypes.ConversationRoleUser
			if text := strings.TrimSpace(turn.Text); text != "" {
				msg.Content = append(msg.Content, &brtypes.ContentBlockMemberText{Value: text})
			}
		case RoleModel:
			msg.Role = brtypes.ConversationRoleAssistant
			if text := strings.TrimSpace(turn.Text); text != "" {
				msg.Content = append(msg.Content, &brtypes.ContentBlockMemberText{Value: text})
			}
			for _, call := range turn.ToolCalls {
				args := call.Args
				if args == nil {
					args = map[string]any{}
				}
				msg.Content = append(msg.Content, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(call.ID),
						Name:      aws.String(call.Name),
						Input:     document.NewLazyDocument(args),
					},
				})
			}
		case RoleTool:
			msg.Role = brtypes.ConversationRoleUser
			for _, res := range turn.ToolResults {
				status := brtypes.ToolResultStatusSuccess
				if res.IsError() {
					status = brtypes.ToolResultStatusError
				}
				msg.Content = append(msg.Content, &brtypes.ContentBlockMemberToolResult{
					Value: brtypes.ToolResultBlock{
						ToolUseId: aws.String(res.CallID),
						Status:    status,
						Content: []brtypes.ToolResultContentBlock{
							&brtypes.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(res.Response)},
						},
					},
				})
			}
		default:
			return nil, fmt.Errorf("llm: unsupported role %q", turn.Role)
		}
		if len(msg.Content) == 0 {
			continue
		}
		// Converse requires alternating roles.
		if n := len(messages); n > 0 && messages[n-1].Role == msg.Role {
			messages[n-1].Content = append(messages[n-1].Content, msg.Content...)
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil, errors.New("llm: bedrock requires at least one message")
	}
	if messages[len(messages)-1].Role != brtypes.ConversationRoleUser {
		return nil, errors.New("llm: last turn must come from the user or a tool")
	}
	return messages, nil
}

func bedrockResponse(out *bedrockruntime.ConverseOutput) (Response, error) {
	if out == nil {
		return Response{}, errors.New("llm: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, errors.New("llm: bedrock response did not include a message output")
	}

	var resp Response
	var text strings.Builder
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			call := ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Name: aws.ToString(b.Value.Name),
				Args: map[string]any{},
			}
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&call.Args); err != nil {
					return Response{}, fmt.Errorf("llm: decode tool input for %s: %w", call.Name, err)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, call)
		}
	}
	resp.Text = strings.TrimSpace(text.String())
	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return Response{}, errors.New("llm: bedrock response contained no content")
	}
	resp.StopReason = string(out.StopReason)
	if out.Usage != nil {
		resp.Usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.Usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return resp, nil
}

// BedrockEmbedder produces Titan embeddings through InvokeModel.
type BedrockEmbedder struct {
	api     bedrockInvokeModelAPI
	modelID string
}

func NewBedrockEmbedder(api bedrockInvokeModelAPI, modelID string) *BedrockEmbedder {
	if api == nil {
		panic("llm: bedrock runtime client cannot be nil")
	}
	return &BedrockEmbedder{api: api, modelID: modelID}
}

func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(e.modelID) == "" {
		return nil, errors.New("llm: bedrock embedding model id is required")
	}
	payload, err := json.Marshal(map[string]any{"inputText": text})
	if err != nil {
		return nil, fmt.Errorf("llm: embedding request marshal: %w", err)
	}
	out, err := e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: bedrock embedding failed: %w", err)
	}

	var decoded struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return nil, fmt.Errorf("llm: embedding response parse: %w", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, errors.New("llm: embedding response was empty")
	}
	vec := make([]float32, len(decoded.Embedding))
	for i, f := range decoded.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
