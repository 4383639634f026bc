// Package providers contains the model provider clients used by the
// orchestrator. Every provider exposes the same streaming interface so the
// agent loop never has to know which vendor is behind a conversation: the
// hosted gateway for the free tier, or OpenAI/Anthropic/Google when the
// agent owner brings their own key.
package providers

import (
	"context"
	"encoding/json"

	"github.com/abhinav155942/wobble/pkg/models"
)

// ChatMessage is the provider-neutral message shape handed to a Provider.
// Role is one of "system", "user", "assistant" or "tool".
type ChatMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// ToolDef describes a tool the model may call. Schema is a JSON Schema
// object for the tool's arguments.
type ToolDef struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// CompletionRequest is a single streaming completion call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []ToolDef
	MaxTokens   int
	Temperature float32

	// DisableTools suppresses the tool list even if Tools is populated.
	// Used for the forced final answer after the iteration cap.
	DisableTools bool
}

// StreamEvent is one unit of a streaming completion. Exactly one of the
// fields is meaningful per event: Text for a content delta, ToolCall for a
// fully accumulated tool invocation, Err for a terminal failure, Done for
// normal end of stream.
type StreamEvent struct {
	Text     string
	ToolCall *models.ToolCall
	Done     bool
	Err      error
}

// Provider streams completions from one model vendor.
//
// Stream returns immediately; events arrive on the channel, which is closed
// after a Done or Err event. Cancelling ctx terminates the stream.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}
