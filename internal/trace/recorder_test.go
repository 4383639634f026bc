package trace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
}

func TestStepNumbering(t *testing.T) {
	set, _ := storage.NewInMemoryStoreSet()
	rec := NewRecorder(set.Traces, testLogger(), "msg-1", "conv-1")
	ctx := context.Background()

	reasoningID := rec.Reasoning(ctx, 2, "thinking", "analyzing request")
	toolID := rec.ToolStart(ctx, 2, 0, "web_search", json.RawMessage(`{"query":"hours"}`))
	rec.ToolStart(ctx, 2, 1, "send_message", nil)
	rec.ToolDone(ctx, toolID, map[string]any{"result": "9-5"})
	rec.ReasoningDone(ctx, reasoningID)
	rec.Response(ctx, 2, "We are open 9-5.")

	traces, err := set.Traces.ListByMessage(ctx, "msg-1")
	if err != nil {
		t.Fatalf("ListByMessage: %v", err)
	}
	if len(traces) != 4 {
		t.Fatalf("len = %d, want 4", len(traces))
	}

	wantSteps := []int{200, 201, 202, 299}
	for i, tr := range traces {
		if tr.StepNumber != wantSteps[i] {
			t.Errorf("trace %d step = %d, want %d", i, tr.StepNumber, wantSteps[i])
		}
	}
	if traces[1].Status != models.StepCompleted {
		t.Errorf("completed tool status = %q", traces[1].Status)
	}
	if traces[2].Status != models.StepRunning {
		t.Errorf("pending tool status = %q", traces[2].Status)
	}
	if traces[1].Payload["result"] != "9-5" {
		t.Errorf("tool payload = %v", traces[1].Payload)
	}
}

func TestToolErrorMarksStep(t *testing.T) {
	set, _ := storage.NewInMemoryStoreSet()
	rec := NewRecorder(set.Traces, testLogger(), "msg-1", "conv-1")
	ctx := context.Background()

	toolID := rec.ToolStart(ctx, 1, 0, "track_order", nil)
	rec.ToolError(ctx, toolID, "upstream timeout")

	traces, _ := set.Traces.ListByMessage(ctx, "msg-1")
	if len(traces) != 1 {
		t.Fatalf("len = %d, want 1", len(traces))
	}
	if traces[0].Status != models.StepError {
		t.Errorf("status = %q, want error", traces[0].Status)
	}
	if traces[0].Payload["error"] != "upstream timeout" {
		t.Errorf("payload = %v", traces[0].Payload)
	}
}

type failingTraceStore struct{}

func (failingTraceStore) Create(context.Context, *models.ExecutionTrace) error {
	return errors.New("disk full")
}

func (failingTraceStore) UpdateStatus(context.Context, string, models.StepStatus, map[string]any) error {
	return errors.New("disk full")
}

func (failingTraceStore) ListByMessage(context.Context, string) ([]*models.ExecutionTrace, error) {
	return nil, errors.New("disk full")
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	rec := NewRecorder(failingTraceStore{}, testLogger(), "msg-1", "conv-1")
	ctx := context.Background()

	// None of these may panic or propagate the error.
	id := rec.Reasoning(ctx, 1, "thinking", "")
	if id != "" {
		t.Errorf("Reasoning returned ID %q despite failing store", id)
	}
	rec.ToolDone(ctx, "trace-1", nil)
	rec.ToolError(ctx, "trace-1", "boom")
	rec.Response(ctx, 1, "answer")
}
