package agent

import (
	"encoding/json"
)

// EventType identifies one kind of orchestrator stream event.
type EventType string

const (
	// EventThinking marks the start of a reasoning step.
	EventThinking EventType = "thinking"
	// EventToolStart announces a tool about to run.
	EventToolStart EventType = "tool_start"
	// EventToolComplete reports a tool outcome.
	EventToolComplete EventType = "tool_complete"
	// EventResponse carries one content delta of the reply.
	EventResponse EventType = "response"
	// EventMessageIDs carries the persisted message row IDs.
	EventMessageIDs EventType = "message_ids"
	// EventError reports a fatal turn failure.
	EventError EventType = "error"
	// EventDone terminates the stream.
	EventDone EventType = "done"
)

// Event is one unit of the orchestrator's output stream.
type Event struct {
	Type   EventType
	Title  string
	Detail string

	// Iteration and StepNumber locate the event in the turn's trace,
	// set for thinking, tool_start and tool_complete.
	Iteration  int
	StepNumber int

	// Tool fields, set for tool_start and tool_complete.
	Tool       string
	Status     string
	Args       json.RawMessage
	Result     any
	DurationMS int64
	Success    bool

	// Delta is the content fragment for response events.
	Delta string

	// Message IDs, set for message_ids.
	UserMessageID      string
	AssistantMessageID string

	// Message is the error text for error events.
	Message string
}

// SSE renders the event as a complete server-sent-events frame, trailing
// blank line included. Response deltas use the OpenAI wire shape so
// existing chat frontends can consume the stream unchanged, and the stream
// ends with the conventional [DONE] sentinel.
func (e Event) SSE() string {
	switch e.Type {
	case EventResponse:
		frame, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]string{"content": e.Delta}},
			},
		})
		return "data: " + string(frame) + "\n\n"

	case EventDone:
		return "data: [DONE]\n\n"

	default:
		payload := map[string]any{"type": string(e.Type)}
		if e.Title != "" {
			payload["title"] = e.Title
		}
		if e.Detail != "" {
			payload["detail"] = e.Detail
		}
		if e.Iteration > 0 {
			payload["iteration"] = e.Iteration
		}
		if e.StepNumber > 0 {
			payload["step_number"] = e.StepNumber
		}
		if e.Tool != "" {
			payload["tool"] = e.Tool
		}
		if e.Status != "" {
			payload["status"] = e.Status
		}
		if len(e.Args) > 0 && json.Valid(e.Args) {
			payload["args"] = e.Args
		}
		if e.Result != nil {
			payload["result"] = e.Result
		}
		if e.Type == EventToolComplete {
			payload["duration_ms"] = e.DurationMS
			payload["success"] = e.Success
		}
		if e.UserMessageID != "" {
			payload["user_message_id"] = e.UserMessageID
		}
		if e.AssistantMessageID != "" {
			payload["assistant_message_id"] = e.AssistantMessageID
		}
		if e.Message != "" {
			payload["message"] = e.Message
		}
		frame, _ := json.Marshal(payload)
		return "data: " + string(frame) + "\n\n"
	}
}
