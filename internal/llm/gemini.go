package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GeminiOracle implements Oracle using Google's Gemini API.
type GeminiOracle struct {
	client *genai.Client
	models Models
}

// NewGeminiOracle creates a Gemini-backed oracle.
func NewGeminiOracle(ctx context.Context, apiKey string, models Models) (*GeminiOracle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if models.Cheap == "" {
		models.Cheap = "gemini-2.5-flash"
	}
	if models.Capable == "" {
		models.Capable = models.Cheap
	}
	if models.Embedding == "" {
		models.Embedding = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}
	return &GeminiOracle{client: client, models: models}, nil
}

// Chat sends the history to Gemini and returns text and function calls.
func (o *GeminiOracle) Chat(ctx context.Context, req Request) (Response, error) {
	modelID := o.models.For(req.Tier)
	model := o.client.GenerativeModel(modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{geminiTool(req.Tools)}
	}

	history, last, err := geminiContents(req.History)
	if err != nil {
		return Response{}, err
	}
	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}
	out, err := geminiResponse(resp)
	if err != nil {
		return Response{}, err
	}
	out.Usage.Model = modelID
	return out, nil
}

// Embed returns the embedding vector for text.
func (o *GeminiOracle) Embed(ctx context.Context, text string) ([]float32, error) {
	em := o.client.EmbeddingModel(o.models.Embedding)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("llm: gemini embedding failed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("llm: gemini embedding was empty")
	}
	return res.Embedding.Values, nil
}

// Close releases resources held by the Gemini client.
func (o *GeminiOracle) Close() error {
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}

func geminiTool(decls []ToolDeclaration) *genai.Tool {
	fns := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		props := make(map[string]*genai.Schema, len(d.Params))
		var required []string
		for _, p := range d.Params {
			props[p.Name] = &genai.Schema{
				Type:        geminiType(p.Type),
				Description: p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		fns = append(fns, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		})
	}
	return &genai.Tool{FunctionDeclarations: fns}
}

func geminiType(t ParamType) genai.Type {
	switch t {
	case ParamNumber:
		return genai.TypeNumber
	case ParamInteger:
		return genai.TypeInteger
	default:
		return genai.TypeString
	}
}

// geminiContents splits history into chat history and the message to send.
func geminiContents(turns []Turn) ([]*genai.Content, *genai.Content, error) {
	if len(turns) == 0 {
		return nil, nil, errors.New("llm: gemini requires at least one turn")
	}
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		c := &genai.Content{}
		switch turn.Role {
		case RoleUser:
			c.Role = "user"
			if text := strings.TrimSpace(turn.Text); text != "" {
				c.Parts = append(c.Parts, genai.Text(text))
			}
		case RoleModel:
			c.Role = "model"
			if text := strings.TrimSpace(turn.Text); text != "" {
				c.Parts = append(c.Parts, genai.Text(text))
			}
			for _, call := range turn.ToolCalls {
				c.Parts = append(c.Parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
			}
		case RoleTool:
			c.Role = "user"
			for _, res := range turn.ToolResults {
				c.Parts = append(c.Parts, genai.FunctionResponse{Name: res.Name, Response: res.Response})
			}
		default:
			return nil, nil, fmt.Errorf("llm: unsupported role %q", turn.Role)
		}
		if len(c.Parts) == 0 {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == c.Role {
			contents[n-1].Parts = append(contents[n-1].Parts, c.Parts...)
			continue
		}
		contents = append(contents, c)
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("llm: gemini history has no content")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, nil, errors.New("llm: last turn must come from the user or a tool")
	}
	return contents[:len(contents)-1], last, nil
}

func geminiResponse(resp *genai.GenerateContentResponse) (Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Response{}, errors.New("llm: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	out := Response{StopReason: candidate.FinishReason.String()}

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:   uuid.NewString(),
					Name: p.Name,
					Args: p.Args,
				})
			case *genai.FunctionCall:
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:   uuid.NewString(),
					Name: p.Name,
					Args: p.Args,
				})
			}
		}
		out.Text = strings.TrimSpace(text.String())
	}
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return Response{}, errors.New("llm: gemini returned empty content")
	}

	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.Usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
