package agent

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSSEResponseUsesCompletionChunkShape(t *testing.T) {
	frame := Event{Type: EventResponse, Delta: "Hello \"there\""}.SSE()
	if !strings.HasPrefix(frame, "data: ") || !strings.HasSuffix(frame, "\n\n") {
		t.Fatalf("frame = %q", frame)
	}

	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(chunk.Choices) != 1 || chunk.Choices[0].Delta.Content != `Hello "there"` {
		t.Errorf("chunk = %+v", chunk)
	}
}

func TestSSEDoneIsTerminator(t *testing.T) {
	if got := (Event{Type: EventDone}).SSE(); got != "data: [DONE]\n\n" {
		t.Errorf("done frame = %q", got)
	}
}

func TestSSEProgressFramesCarryTypedPayload(t *testing.T) {
	frame := Event{Type: EventThinking, Title: "Let me think about this...", Iteration: 1}.SSE()
	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "thinking" || decoded["iteration"] != float64(1) {
		t.Errorf("payload = %v", decoded)
	}
	if _, present := decoded["delta"]; present {
		t.Error("empty fields must be omitted")
	}
}

func TestSSEToolStartCarriesArgsAndStep(t *testing.T) {
	frame := Event{
		Type:       EventToolStart,
		Tool:       "web_search",
		Args:       json.RawMessage(`{"query":"rates"}`),
		Iteration:  1,
		StepNumber: 101,
	}.SSE()
	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["tool"] != "web_search" || decoded["step_number"] != float64(101) || decoded["iteration"] != float64(1) {
		t.Errorf("payload = %v", decoded)
	}
	args, ok := decoded["args"].(map[string]any)
	if !ok || args["query"] != "rates" {
		t.Errorf("args = %v", decoded["args"])
	}
}

func TestSSEToolCompleteCarriesResultFields(t *testing.T) {
	frame := Event{
		Type:       EventToolComplete,
		Tool:       "web_search",
		Status:     "success",
		Result:     map[string]any{"answer": "42"},
		DurationMS: 87,
		Success:    true,
		Iteration:  1,
		StepNumber: 101,
	}.SSE()
	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != "success" || decoded["duration_ms"] != float64(87) || decoded["success"] != true {
		t.Errorf("payload = %v", decoded)
	}
	result, ok := decoded["result"].(map[string]any)
	if !ok || result["answer"] != "42" {
		t.Errorf("result = %v", decoded["result"])
	}
	if decoded["step_number"] != float64(101) {
		t.Errorf("step_number = %v", decoded["step_number"])
	}
}

func TestSSEToolCompleteReportsFailure(t *testing.T) {
	frame := Event{Type: EventToolComplete, Tool: "web_search", Status: "error", Success: false}.SSE()
	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["success"] != false {
		t.Errorf("success = %v, want explicit false", decoded["success"])
	}
}

func TestSSEMessageIDs(t *testing.T) {
	frame := Event{Type: EventMessageIDs, UserMessageID: "u1", AssistantMessageID: "a1"}.SSE()
	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["user_message_id"] != "u1" || decoded["assistant_message_id"] != "a1" {
		t.Errorf("payload = %v", decoded)
	}
}
