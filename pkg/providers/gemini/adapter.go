// Package gemini adapts Google's Gemini models to llm.LLMAdapter with function calling.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/harunnryd/cipher/pkg/errorsx"
	"github.com/harunnryd/cipher/pkg/llm"
	"github.com/harunnryd/cipher/pkg/resilience"
)

const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the subset of *genai.Models the adapter calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Adapter struct {
	models      contentGenerator
	model       string
	temperature *float32
	maxTokens   int32
}

type Options struct {
	APIKey      string
	Model       string
	Temperature *float32
	MaxTokens   int
}

func NewAdapter(ctx context.Context, opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newAdapter(client.Models, opts), nil
}

func newAdapter(models contentGenerator, opts Options) *Adapter {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Adapter{models: models, model: model, temperature: opts.Temperature, maxTokens: int32(opts.MaxTokens)}
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	contents := toContents(input.Messages)
	if len(contents) == 0 {
		return llm.Response{}, errors.New("gemini: no messages")
	}
	cfg := &genai.GenerateContentConfig{Temperature: a.temperature}
	if a.maxTokens > 0 {
		cfg.MaxOutputTokens = a.maxTokens
	}
	if input.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(input.System, genai.RoleUser)
	}
	if len(input.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(input.Tools)}}
	}
	resp, err := a.models.GenerateContent(ctx, a.model, contents, cfg)
	if err != nil {
		if isRateLimit(err) {
			return llm.Response{}, resilience.RateLimitError{Provider: a.Name(), Message: err.Error()}
		}
		return llm.Response{}, errorsx.Wrap(fmt.Errorf("gemini generate: %w", err), errorsx.ReasonLLMGenerate)
	}
	return fromResponse(resp)
}

func isRateLimit(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	return strings.Contains(err.Error(), "RESOURCE_EXHAUSTED")
}

// toContents maps history to Gemini turns. Consecutive tool results are
// grouped into one user turn so they line up with the model's calls.
func toContents(messages []llm.Message) []*genai.Content {
	var out []*genai.Content
	var pending []*genai.Part
	flush := func() {
		if len(pending) > 0 {
			out = append(out, genai.NewContentFromParts(pending, genai.RoleUser))
			pending = nil
		}
	}
	for _, m := range messages {
		switch m.Role {
		case llm.RoleTool:
			pending = append(pending, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}})
		case llm.RoleAssistant:
			flush()
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Arguments,
				}})
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case llm.RoleSystem:
			// system text travels in SystemInstruction
		default:
			flush()
			if m.Content != "" {
				out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
			}
		}
	}
	flush()
	return out
}

func toDeclarations(tools []llm.Tool) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if len(t.Schema) > 0 {
			decl.Parameters = toSchema(t.Schema)
		}
		out = append(out, decl)
	}
	return out
}

// toSchema converts a JSON schema map into genai's typed schema.
func toSchema(m map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if typ, _ := m["type"].(string); typ != "" {
		s.Type = schemaType(typ)
	}
	if desc, _ := m["description"].(string); desc != "" {
		s.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		names := make([]string, 0, len(props))
		for name, raw := range props {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			s.Properties[name] = toSchema(child)
			names = append(names, name)
		}
		sort.Strings(names)
		s.PropertyOrdering = names
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = append([]string(nil), req...)
	case []any:
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	if enum, ok := m["enum"].([]string); ok {
		s.Enum = append([]string(nil), enum...)
	}
	return s
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func fromResponse(resp *genai.GenerateContentResponse) (llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Response{}, errorsx.New(errorsx.ReasonLLMGenerate, "gemini: empty response")
	}
	cand := resp.Candidates[0]
	out := llm.Response{FinishReason: string(cand.FinishReason)}
	if cand.Content != nil {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					id = "call-" + uuid.NewString()[:8]
				}
				args := part.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args})
				continue
			}
			if part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
		out.Text = strings.TrimSpace(text.String())
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
