package models

import (
	"time"
)

// StepType classifies an execution trace entry.
type StepType string

const (
	StepReasoning StepType = "reasoning"
	StepToolCall  StepType = "tool_call"
	StepResponse  StepType = "response"
)

// StepStatus is the lifecycle state of a trace entry.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// ExecutionTrace records one step of the orchestrator's work on a message.
//
// Step numbers encode the iteration: iteration*100 for the reasoning step,
// iteration*100+offset+1 for the offset-th tool call, and iteration*100+99
// for the final response. Sorting by StepNumber reconstructs the timeline.
type ExecutionTrace struct {
	ID             string         `json:"id"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	StepNumber     int            `json:"step_number"`
	StepType       StepType       `json:"step_type"`
	Status         StepStatus     `json:"status"`
	Title          string         `json:"title"`
	Detail         string         `json:"detail,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
