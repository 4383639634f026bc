package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI streams completions through a customer-supplied OpenAI key.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAI builds an OpenAI provider from an API key.
func NewOpenAI(apiKey string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	return &OpenAI{
		client:       openai.NewClient(apiKey),
		defaultModel: defaultOpenAIModel,
	}, nil
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.convertMessages(req),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if len(req.Tools) > 0 && !req.DisableTools {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)

		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			events <- StreamEvent{Err: p.wrapError(err, model)}
			return
		}
		defer stream.Close()

		p.processStream(ctx, stream, events, model)
	}()
	return events, nil
}

// processStream consumes the SDK stream. Tool call fragments are keyed by
// the index the API assigns them, with argument text appended as it
// arrives; completed calls are flushed on the tool_calls finish reason or
// at end of stream.
func (p *OpenAI) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- StreamEvent, model string) {
	partials := make(map[int]*partialToolCall)

	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			flushToolCalls(partials, events)
			events <- StreamEvent{Done: true}
			return
		}
		if err != nil {
			events <- StreamEvent{Err: p.wrapError(err, model)}
			return
		}

		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				events <- StreamEvent{Text: choice.Delta.Content}
			}
			for i, tc := range choice.Delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				part, found := partials[idx]
				if !found {
					part = &partialToolCall{}
					partials[idx] = part
				}
				if tc.ID != "" {
					part.id = tc.ID
				}
				if tc.Function.Name != "" {
					part.name = tc.Function.Name
				}
				part.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason == openai.FinishReasonToolCalls {
				flushToolCalls(partials, events)
				partials = make(map[int]*partialToolCall)
			}
		}
	}
}

func (p *OpenAI) convertMessages(req CompletionRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		if msg.Role == "tool" {
			// The API wants one message per tool result.
			for _, tr := range msg.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		om := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func (p *OpenAI) convertTools(tools []ToolDef) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var params map[string]any
		if err := json.Unmarshal(tool.Schema, &params); err != nil || params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func (p *OpenAI) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError("openai", model, fmt.Errorf("%s", apiErr.Message)).WithStatus(apiErr.HTTPStatusCode)
	}
	return NewProviderError("openai", model, err)
}

// Embed requests embeddings for the given inputs. The memory layer uses
// this for both write-time and query-time vectors.
func (p *OpenAI) Embed(ctx context.Context, embModel string, inputs []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(embModel),
		Input: inputs,
	})
	if err != nil {
		return nil, p.wrapError(err, embModel)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
