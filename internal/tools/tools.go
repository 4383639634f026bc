// Package tools holds the tool catalog offered to the model during a turn.
// Which tools an agent gets depends on the channel the conversation came in
// on, the connection's credentials, and the use-case flags the agent owner
// switched on.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is a single capability the model may invoke.
type Tool interface {
	// Name is the function name shown to the model.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema is a JSON Schema object describing the arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Failures the model should see are returned
	// as a Result with Status "error"; a non-nil error means the tool
	// itself broke.
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Result is a tool outcome. Actions that only enqueue platform work (a
// scheduled message, a campaign) report Status "pending".
type Result struct {
	Content string         `json:"result,omitempty"`
	Action  string         `json:"action,omitempty"`
	Status  string         `json:"status,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	IsError bool `json:"-"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPending = "pending"
)

// JSON renders the result as the tool message content sent back to the
// model.
func (r *Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","result":"unencodable tool result"}`
	}
	return string(b)
}

// Success builds a successful Result with free-text content.
func Success(action, content string) *Result {
	return &Result{Content: content, Action: action, Status: StatusSuccess}
}

// Pending builds a Result for work that was accepted but handed off.
func Pending(action, content string) *Result {
	return &Result{Content: content, Action: action, Status: StatusPending}
}

// Errorf builds an error Result the model can recover from.
func Errorf(action, content string) *Result {
	return &Result{Content: content, Action: action, Status: StatusError, IsError: true}
}
