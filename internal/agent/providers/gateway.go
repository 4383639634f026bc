package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/pkg/models"
)

// maxMalformedLines aborts a stream that keeps producing undecodable data
// lines, which usually means the gateway returned an HTML error page or a
// truncated body rather than SSE.
const maxMalformedLines = 50

// GatewayConfig configures the hosted model gateway client.
type GatewayConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	HTTPClient   *http.Client
}

// Gateway streams completions from the hosted OpenAI-compatible gateway.
// This is the provider behind the free tier: agents that have not brought
// their own key are routed here regardless of the model they selected.
type Gateway struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
	logger       *observability.Logger
}

// NewGateway builds a gateway provider. The HTTP client deliberately has no
// overall timeout since completions stream for an unbounded duration;
// cancellation comes from the request context.
func NewGateway(cfg GatewayConfig, logger *observability.Logger) *Gateway {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "google/gemini-2.5-flash"
	}
	return &Gateway{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		defaultModel: model,
		client:       client,
		logger:       logger.WithFields("provider", "gateway"),
	}
}

func (g *Gateway) Name() string { return "gateway" }

type gatewayMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []gatewayToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type gatewayToolCall struct {
	Index    *int            `json:"index,omitempty"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function gatewayFunction `json:"function"`
}

type gatewayFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type gatewayTool struct {
	Type     string          `json:"type"`
	Function gatewayFuncSpec `json:"function"`
}

type gatewayFuncSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type gatewayRequest struct {
	Model       string           `json:"model"`
	Messages    []gatewayMessage `json:"messages"`
	Tools       []gatewayTool    `json:"tools,omitempty"`
	Stream      bool             `json:"stream"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float32          `json:"temperature,omitempty"`
}

type gatewayChunk struct {
	Choices []struct {
		Delta struct {
			Content   string            `json:"content"`
			ToolCalls []gatewayToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stream posts a streaming chat completion and decodes the SSE response.
func (g *Gateway) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	body, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("gateway", req.Model, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		perr := NewProviderError("gateway", req.Model,
			fmt.Errorf("unexpected status: %s", bytes.TrimSpace(payload))).WithStatus(resp.StatusCode)
		return nil, perr
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		g.decodeStream(ctx, resp.Body, events, req.Model)
	}()
	return events, nil
}

func (g *Gateway) buildRequest(req CompletionRequest) gatewayRequest {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	out := gatewayRequest{
		Model:       model,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, gatewayMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			out.Messages = append(out.Messages, gatewayMessage{Role: "system", Content: msg.Content})
		case "tool":
			// One gateway message per tool result.
			for _, tr := range msg.ToolResults {
				out.Messages = append(out.Messages, gatewayMessage{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		default:
			gm := gatewayMessage{Role: msg.Role, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				gm.ToolCalls = append(gm.ToolCalls, gatewayToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: gatewayFunction{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out.Messages = append(out.Messages, gm)
		}
	}

	if !req.DisableTools {
		for _, tool := range req.Tools {
			params := tool.Schema
			if len(params) == 0 {
				params = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			out.Tools = append(out.Tools, gatewayTool{
				Type: "function",
				Function: gatewayFuncSpec{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  params,
				},
			})
		}
	}

	return out
}

// partialToolCall accumulates argument fragments that arrive across
// multiple SSE chunks for the same tool call index.
type partialToolCall struct {
	id   string
	name string
	args bytes.Buffer
}

// decodeStream reads SSE lines until the body ends or the payload signals
// completion. Tool call deltas are accumulated per index and flushed in
// index order, so parallel tool calls keep the order the model declared
// them in.
func (g *Gateway) decodeStream(ctx context.Context, body io.Reader, events chan<- StreamEvent, model string) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	partials := make(map[int]*partialToolCall)
	malformed := 0

scan:
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || bytes.HasPrefix(line, []byte(":")) {
			continue
		}
		data, ok := bytes.CutPrefix(line, []byte("data: "))
		if !ok {
			continue
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var chunk gatewayChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			malformed++
			g.logger.Debug(ctx, "skipping malformed stream line", "bytes", len(data))
			if malformed >= maxMalformedLines {
				events <- StreamEvent{Err: NewProviderError("gateway", model,
					fmt.Errorf("stream produced %d consecutive malformed lines", malformed))}
				return
			}
			continue
		}
		malformed = 0

		if chunk.Error != nil {
			events <- StreamEvent{Err: NewProviderError("gateway", model, fmt.Errorf("%s", chunk.Error.Message))}
			return
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				events <- StreamEvent{Text: choice.Delta.Content}
			}
			for i, tc := range choice.Delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				p, found := partials[idx]
				if !found {
					p = &partialToolCall{}
					partials[idx] = p
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason == "tool_calls" {
				flushToolCalls(partials, events)
				partials = make(map[int]*partialToolCall)
			}
			if choice.FinishReason == "stop" {
				break scan
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		events <- StreamEvent{Err: NewProviderError("gateway", model, err)}
		return
	}

	// Some upstream models close the body without a finish_reason; any
	// accumulated tool calls are still valid.
	flushToolCalls(partials, events)
	events <- StreamEvent{Done: true}
}

func flushToolCalls(partials map[int]*partialToolCall, events chan<- StreamEvent) {
	if len(partials) == 0 {
		return
	}
	indexes := make([]int, 0, len(partials))
	for idx := range partials {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		p := partials[idx]
		if p.name == "" {
			continue
		}
		args := p.args.Bytes()
		if len(args) == 0 {
			args = []byte("{}")
		}
		id := p.id
		if id == "" {
			id = fmt.Sprintf("call_%s_%d", p.name, time.Now().UnixNano())
		}
		events <- StreamEvent{ToolCall: &models.ToolCall{
			ID:        id,
			Name:      p.name,
			Arguments: json.RawMessage(args),
		}}
	}
}
