package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/abhinav155942/wobble/pkg/models"
)

const defaultGoogleModel = "gemini-2.5-flash"

// Google streams completions through a customer-supplied Gemini key.
type Google struct {
	client       *genai.Client
	defaultModel string
}

// NewGoogle builds a Google provider from an API key.
func NewGoogle(apiKey string) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &Google{client: client, defaultModel: defaultGoogleModel}, nil
}

func (p *Google) Name() string { return "google" }

func (p *Google) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents := p.convertMessages(req.Messages)
	config := p.buildConfig(req)

	events := make(chan StreamEvent)
	go func() {
		defer close(events)

		toolSeq := 0
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			select {
			case <-ctx.Done():
				events <- StreamEvent{Err: ctx.Err()}
				return
			default:
			}
			if err != nil {
				events <- StreamEvent{Err: NewProviderError("google", model, err)}
				return
			}
			if resp == nil {
				continue
			}

			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						events <- StreamEvent{Text: part.Text}
					}
					if part.FunctionCall != nil {
						args, jsonErr := json.Marshal(part.FunctionCall.Args)
						if jsonErr != nil {
							args = []byte("{}")
						}
						toolSeq++
						events <- StreamEvent{ToolCall: &models.ToolCall{
							ID:        fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, toolSeq),
							Name:      part.FunctionCall.Name,
							Arguments: args,
						}}
					}
				}
			}
		}

		events <- StreamEvent{Done: true}
	}()
	return events, nil
}

func (p *Google) convertMessages(messages []ChatMessage) []*genai.Content {
	// Tool result parts need the originating tool name, which Gemini keys
	// function responses on. Build the lookup up front.
	nameByCallID := make(map[string]string)
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			nameByCallID[tc.ID] = tc.Name
		}
	}

	var out []*genai.Content
	for _, msg := range messages {
		if msg.Role == "system" {
			// Carried via SystemInstruction on the config.
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case "assistant":
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "error": tr.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     nameByCallID[tr.ToolCallID],
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func (p *Google) buildConfig(req CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 && !req.DisableTools {
		config.Tools = p.convertTools(req.Tools)
	}
	return config
}

func (p *Google) convertTools(tools []ToolDef) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON Schema object into Gemini's typed schema.
// Only the keywords the tool catalog actually uses are carried over.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}
