// Package trace records the orchestrator's execution steps for a message.
//
// Trace writes are best effort. A recorder method never returns an error:
// storage failures are logged and swallowed so a broken trace table cannot
// take down a live turn.
package trace

import (
	"context"
	"encoding/json"

	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

// Step number layout within one iteration. The reasoning step sits at
// iteration*100, tool calls at iteration*100+offset+1, and the final
// response at iteration*100+99, leaving room for up to 98 tool calls.
const (
	reasoningOffset = 0
	responseOffset  = 99
)

// Recorder writes execution traces for one message.
type Recorder struct {
	store          storage.TraceStore
	logger         *observability.Logger
	messageID      string
	conversationID string
}

// NewRecorder creates a recorder bound to the message being produced.
func NewRecorder(store storage.TraceStore, logger *observability.Logger, messageID, conversationID string) *Recorder {
	return &Recorder{
		store:          store,
		logger:         logger.WithFields("component", "trace"),
		messageID:      messageID,
		conversationID: conversationID,
	}
}

// Reasoning records the start of an iteration's model call. Returns the
// trace ID, or "" when the write failed.
func (r *Recorder) Reasoning(ctx context.Context, iteration int, title, detail string) string {
	return r.create(ctx, &models.ExecutionTrace{
		MessageID:      r.messageID,
		ConversationID: r.conversationID,
		StepNumber:     iteration*100 + reasoningOffset,
		StepType:       models.StepReasoning,
		Status:         models.StepRunning,
		Title:          title,
		Detail:         detail,
	})
}

// ToolStart records a tool call beginning at the given offset within the
// iteration. Returns the trace ID for the later status transition.
func (r *Recorder) ToolStart(ctx context.Context, iteration, offset int, name string, args json.RawMessage) string {
	payload := map[string]any{"tool": name}
	if len(args) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(args, &decoded); err == nil {
			payload["arguments"] = decoded
		}
	}
	return r.create(ctx, &models.ExecutionTrace{
		MessageID:      r.messageID,
		ConversationID: r.conversationID,
		StepNumber:     iteration*100 + offset + 1,
		StepType:       models.StepToolCall,
		Status:         models.StepRunning,
		Title:          name,
		Payload:        payload,
	})
}

// ToolDone marks a tool trace completed with its result payload.
func (r *Recorder) ToolDone(ctx context.Context, traceID string, payload map[string]any) {
	r.update(ctx, traceID, models.StepCompleted, payload)
}

// ToolError marks a tool trace failed. The turn continues regardless.
func (r *Recorder) ToolError(ctx context.Context, traceID, errText string) {
	r.update(ctx, traceID, models.StepError, map[string]any{"error": errText})
}

// ReasoningDone marks a reasoning trace completed.
func (r *Recorder) ReasoningDone(ctx context.Context, traceID string) {
	r.update(ctx, traceID, models.StepCompleted, nil)
}

// Response records the final response step of the iteration.
func (r *Recorder) Response(ctx context.Context, iteration int, detail string) {
	r.create(ctx, &models.ExecutionTrace{
		MessageID:      r.messageID,
		ConversationID: r.conversationID,
		StepNumber:     iteration*100 + responseOffset,
		StepType:       models.StepResponse,
		Status:         models.StepCompleted,
		Title:          "response",
		Detail:         detail,
	})
}

func (r *Recorder) create(ctx context.Context, tr *models.ExecutionTrace) string {
	if r == nil || r.store == nil {
		return ""
	}
	if err := r.store.Create(ctx, tr); err != nil {
		r.logger.Warn(ctx, "trace write failed",
			"message_id", r.messageID,
			"step_number", tr.StepNumber,
			"error", err)
		return ""
	}
	return tr.ID
}

func (r *Recorder) update(ctx context.Context, traceID string, status models.StepStatus, payload map[string]any) {
	if r == nil || r.store == nil || traceID == "" {
		return
	}
	if err := r.store.UpdateStatus(ctx, traceID, status, payload); err != nil {
		r.logger.Warn(ctx, "trace update failed",
			"trace_id", traceID,
			"status", string(status),
			"error", err)
	}
}
