package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/abhinav155942/wobble/pkg/models"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 4096

	// A stream that emits this many events without any usable content is
	// treated as broken rather than looped on forever.
	maxEmptyStreamEvents = 300
)

// Anthropic streams completions through a customer-supplied Anthropic key.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropic builds an Anthropic provider from an API key.
func NewAnthropic(apiKey string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	return &Anthropic{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultAnthropicModel,
	}, nil
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  p.convertMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 && !req.DisableTools {
		params.Tools = p.convertTools(req.Tools)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)

		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()
		p.processStream(ctx, stream, events, model)
	}()
	return events, nil
}

// processStream walks the typed event stream. Tool use input arrives as
// partial JSON fragments between content_block_start and
// content_block_stop; the block's accumulated input becomes one ToolCall.
func (p *Anthropic) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- StreamEvent, model string) {
	var (
		currentTool *models.ToolCall
		inputJSON   strings.Builder
		emptyEvents int
	)

	for stream.Next() {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			start := event.AsContentBlockStart()
			if start.ContentBlock.Type == "tool_use" {
				toolUse := start.ContentBlock.AsToolUse()
				currentTool = &models.ToolCall{
					ID:   toolUse.ID,
					Name: toolUse.Name,
				}
				inputJSON.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch delta.Delta.Type {
			case "text_delta":
				if delta.Delta.Text != "" {
					events <- StreamEvent{Text: delta.Delta.Text}
				}
			case "input_json_delta":
				inputJSON.WriteString(delta.Delta.PartialJSON)
			}

		case "content_block_stop":
			if currentTool != nil {
				input := inputJSON.String()
				if input == "" {
					input = "{}"
				}
				currentTool.Arguments = json.RawMessage(input)
				events <- StreamEvent{ToolCall: currentTool}
				currentTool = nil
			}

		case "message_stop":
			events <- StreamEvent{Done: true}
			return

		case "error":
			events <- StreamEvent{Err: NewProviderError("anthropic", model, errors.New(event.RawJSON()))}
			return

		default:
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				events <- StreamEvent{Err: NewProviderError("anthropic", model,
					errors.New("stream produced no usable events"))}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		events <- StreamEvent{Err: p.wrapError(err, model)}
		return
	}
	events <- StreamEvent{Done: true}
}

func (p *Anthropic) convertMessages(messages []ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			// Handled via the System field on the request.
			continue

		case "tool":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults))
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}

		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if err := json.Unmarshal(tc.Arguments, &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

func (p *Anthropic) convertTools(tools []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			schema = anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil && tool.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		out = append(out, param)
	}
	return out
}

func (p *Anthropic) wrapError(err error, model string) error {
	return NewProviderError("anthropic", model, err)
}
