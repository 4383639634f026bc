package agent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/abhinav155942/wobble/internal/agent/providers"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/internal/tools"
	"github.com/abhinav155942/wobble/pkg/models"
)

// scriptedProvider replays one event script per Stream call and records
// the requests it saw.
type scriptedProvider struct {
	mu       sync.Mutex
	scripts  [][]providers.StreamEvent
	call     int
	requests []providers.CompletionRequest
	err      error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(_ context.Context, req providers.CompletionRequest) (<-chan providers.StreamEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, req)
	if p.call >= len(p.scripts) {
		return nil, errors.New("scripted provider exhausted")
	}
	script := p.scripts[p.call]
	p.call++

	events := make(chan providers.StreamEvent, len(script)+1)
	for _, ev := range script {
		events <- ev
	}
	events <- providers.StreamEvent{Done: true}
	close(events)
	return events, nil
}

type fixedSelector struct {
	provider providers.Provider
}

func (s fixedSelector) Select(models.AISettings) (*providers.Selection, error) {
	return &providers.Selection{Provider: s.provider, Model: "test-model"}, nil
}

// recordingMemory captures Store calls for the fire-and-forget assertion.
type recordingMemory struct {
	stored chan [2]string
}

func (m *recordingMemory) Search(context.Context, string, string, string, int) ([]models.MemoryHit, error) {
	return nil, nil
}

func (m *recordingMemory) Store(_ context.Context, _, _ string, userMsg, assistantMsg string) {
	m.stored <- [2]string{userMsg, assistantMsg}
}

// roundTripFunc lets the web_search tool hit a canned response without a
// listener.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func cannedHTTP(body string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}, nil
	})}
}

type harness struct {
	orch   *Orchestrator
	stores storage.StoreSet
	mem    *recordingMemory
}

func newHarness(t *testing.T, provider providers.Provider, httpClient *http.Client) *harness {
	t.Helper()
	stores, _ := storage.NewInMemoryStoreSet()
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: &strings.Builder{}})

	agent := &models.Agent{
		ID:   "agent-1",
		Name: "Support",
		Connections: []models.Connection{{
			Channel:  models.ChannelWebSearch,
			Enabled:  true,
			UseCases: map[string]bool{"instantAnswers": true},
		}},
	}
	if err := stores.Agents.Create(context.Background(), agent); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	conv := &models.Conversation{ID: "conv-1", AgentID: "agent-1", Channel: models.ChannelWeb, ExternalID: "web_test"}
	if err := stores.Conversations.Create(context.Background(), conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	mem := &recordingMemory{stored: make(chan [2]string, 1)}
	orch := NewOrchestrator(stores, fixedSelector{provider}, mem,
		tools.Deps{HTTPClient: httpClient, Logger: logger}, logger, nil)
	return &harness{orch: orch, stores: stores, mem: mem}
}

func webRequest() Request {
	return Request{
		AgentID:        "agent-1",
		ConversationID: "conv-1",
		Channel:        models.ChannelWeb,
		UserID:         "user-1",
		Content:        "what is the answer",
	}
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunDirectAnswer(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]providers.StreamEvent{
		{{Text: "Hello"}, {Text: " there"}},
	}}
	h := newHarness(t, provider, nil)

	events, err := h.orch.Run(context.Background(), webRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	all := drain(t, events)

	var reply strings.Builder
	for _, ev := range eventsOfType(all, EventResponse) {
		reply.WriteString(ev.Delta)
	}
	if reply.String() != "Hello there" {
		t.Errorf("reply = %q", reply.String())
	}

	ids := eventsOfType(all, EventMessageIDs)
	if len(ids) != 1 || ids[0].UserMessageID == "" || ids[0].AssistantMessageID == "" {
		t.Fatalf("message_ids events = %+v", ids)
	}
	if all[len(all)-1].Type != EventDone {
		t.Errorf("last event = %s", all[len(all)-1].Type)
	}

	msgs, err := h.stores.Messages.ListRecent(context.Background(), "conv-1", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(msgs))
	}
	assistant := msgs[1]
	if assistant.Role != models.RoleAssistant || assistant.Content != "Hello there" {
		t.Errorf("assistant = %+v", assistant)
	}
	if assistant.ID != ids[0].AssistantMessageID {
		t.Error("message_ids does not match persisted row")
	}

	// A no-tool turn still opens with a reasoning trace.
	traces, _ := h.stores.Traces.ListByMessage(context.Background(), assistant.ID)
	steps := map[int]models.StepStatus{}
	for _, tr := range traces {
		steps[tr.StepNumber] = tr.Status
	}
	if len(traces) != 2 || steps[100] != models.StepCompleted || steps[199] != models.StepCompleted {
		t.Errorf("traces = %+v", traces)
	}
	if n := len(eventsOfType(all, EventThinking)); n != 1 {
		t.Errorf("thinking events = %d, want 1", n)
	}
}

func TestRunToolRound(t *testing.T) {
	call := &models.ToolCall{ID: "c1", Name: "web_search", Arguments: []byte(`{"query":"answer"}`)}
	provider := &scriptedProvider{scripts: [][]providers.StreamEvent{
		{{Text: "Checking. "}, {ToolCall: call}, {Text: "suppressed"}},
		{{Text: "The answer is 42."}},
	}}
	h := newHarness(t, provider, cannedHTTP(`{"AbstractText":"42"}`))

	events, err := h.orch.Run(context.Background(), webRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	all := drain(t, events)

	var reply strings.Builder
	for _, ev := range eventsOfType(all, EventResponse) {
		reply.WriteString(ev.Delta)
	}
	if reply.String() != "Checking. The answer is 42." {
		t.Errorf("reply = %q (post-detection deltas must be suppressed)", reply.String())
	}

	// One thinking event per iteration, the tool round and the conclusion.
	thinking := eventsOfType(all, EventThinking)
	if len(thinking) != 2 {
		t.Fatalf("thinking events = %d, want 2", len(thinking))
	}
	if thinking[0].Iteration != 1 || thinking[1].Iteration != 2 {
		t.Errorf("thinking iterations = %d, %d", thinking[0].Iteration, thinking[1].Iteration)
	}
	starts := eventsOfType(all, EventToolStart)
	completes := eventsOfType(all, EventToolComplete)
	if len(starts) != 1 || starts[0].Tool != "web_search" {
		t.Errorf("tool_start = %+v", starts)
	}
	if starts[0].StepNumber != 101 || starts[0].Iteration != 1 || len(starts[0].Args) == 0 {
		t.Errorf("tool_start fields = %+v", starts[0])
	}
	if len(completes) != 1 || completes[0].Status != tools.StatusSuccess {
		t.Errorf("tool_complete = %+v", completes)
	}
	if completes[0].StepNumber != 101 || !completes[0].Success || completes[0].Result == nil {
		t.Errorf("tool_complete fields = %+v", completes[0])
	}

	// Second completion must carry the assistant tool turn and results.
	if len(provider.requests) != 2 {
		t.Fatalf("provider calls = %d", len(provider.requests))
	}
	second := provider.requests[1]
	var sawToolResult, sawReflection bool
	for _, msg := range second.Messages {
		if msg.Role == "tool" && len(msg.ToolResults) == 1 && msg.ToolResults[0].ToolCallID == "c1" {
			sawToolResult = true
		}
		if msg.Role == "user" && strings.Contains(msg.Content, "tool results") {
			sawReflection = true
		}
	}
	if !sawToolResult || !sawReflection {
		t.Errorf("second transcript missing tool result (%v) or reflection (%v)", sawToolResult, sawReflection)
	}

	ids := eventsOfType(all, EventMessageIDs)
	traces, _ := h.stores.Traces.ListByMessage(context.Background(), ids[0].AssistantMessageID)
	steps := map[int]models.StepStatus{}
	for _, tr := range traces {
		steps[tr.StepNumber] = tr.Status
	}
	if steps[100] != models.StepCompleted {
		t.Errorf("reasoning step = %v", steps[100])
	}
	if steps[101] != models.StepCompleted {
		t.Errorf("tool step = %v", steps[101])
	}
	if steps[200] != models.StepCompleted {
		t.Errorf("second reasoning step = %v", steps[200])
	}
	if steps[299] != models.StepCompleted {
		t.Errorf("response step = %v", steps[299])
	}

	msgs, _ := h.stores.Messages.ListRecent(context.Background(), "conv-1", 10)
	assistant := msgs[len(msgs)-1]
	used, _ := assistant.Metadata["tools_used"].([]string)
	if len(used) != 1 || used[0] != "web_search" {
		t.Errorf("tools_used = %v", assistant.Metadata)
	}
}

func TestRunForcesAnswerAtIterationCap(t *testing.T) {
	call := &models.ToolCall{ID: "c1", Name: "web_search", Arguments: []byte(`{"query":"x"}`)}
	scripts := make([][]providers.StreamEvent, 0, MaxIterations+1)
	for i := 0; i < MaxIterations; i++ {
		scripts = append(scripts, []providers.StreamEvent{{ToolCall: call}})
	}
	scripts = append(scripts, []providers.StreamEvent{{Text: "Final summary."}})
	provider := &scriptedProvider{scripts: scripts}
	h := newHarness(t, provider, cannedHTTP(`{"AbstractText":"x"}`))

	events, err := h.orch.Run(context.Background(), webRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	all := drain(t, events)

	if len(provider.requests) != MaxIterations+1 {
		t.Fatalf("provider calls = %d, want %d", len(provider.requests), MaxIterations+1)
	}
	last := provider.requests[MaxIterations]
	if !last.DisableTools {
		t.Error("forced final completion must withhold tools")
	}
	final := last.Messages[len(last.Messages)-1]
	if final.Role != "user" || !strings.Contains(final.Content, "best answer") {
		t.Errorf("forced final completion must end with the answer instruction, got %+v", final)
	}
	for i := 0; i < MaxIterations; i++ {
		if provider.requests[i].DisableTools {
			t.Errorf("iteration %d had tools withheld", i+1)
		}
	}

	ids := eventsOfType(all, EventMessageIDs)
	traces, _ := h.stores.Traces.ListByMessage(context.Background(), ids[0].AssistantMessageID)
	sawFinal := false
	for _, tr := range traces {
		if tr.StepNumber == MaxIterations*100+99 {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("missing response trace for the forced final answer")
	}
}

func TestRunProviderFailurePersistsApology(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("gateway down")}
	h := newHarness(t, provider, nil)

	events, err := h.orch.Run(context.Background(), webRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	all := drain(t, events)

	if len(eventsOfType(all, EventError)) != 1 {
		t.Fatal("expected one error event")
	}
	ids := eventsOfType(all, EventMessageIDs)
	if len(ids) != 1 {
		t.Fatal("message_ids must still be emitted on failure")
	}
	if all[len(all)-1].Type != EventDone {
		t.Error("stream must end with done")
	}

	msgs, _ := h.stores.Messages.ListRecent(context.Background(), "conv-1", 10)
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want user + apology", len(msgs))
	}
	if msgs[1].Role != models.RoleAssistant || !strings.Contains(msgs[1].Content, "apologize") {
		t.Errorf("apology = %+v", msgs[1])
	}
}

func TestRunSyncReturnsReplyAndMessageIDs(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]providers.StreamEvent{
		{{Text: "Quick "}, {Text: "answer."}},
	}}
	h := newHarness(t, provider, nil)

	res, err := h.orch.RunSync(context.Background(), webRequest())
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if res.Reply != "Quick answer." {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.UserMessageID == "" || res.AssistantMessageID == "" {
		t.Errorf("message IDs missing: %+v", res)
	}

	msg, err := h.stores.Messages.Get(context.Background(), res.AssistantMessageID)
	if err != nil {
		t.Fatalf("assistant row: %v", err)
	}
	if msg.Content != "Quick answer." {
		t.Errorf("persisted content = %q", msg.Content)
	}
}

func TestRunStoresMemoryAfterTurn(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]providers.StreamEvent{
		{{Text: "Noted."}},
	}}
	h := newHarness(t, provider, nil)

	if _, err := h.orch.RunSync(context.Background(), webRequest()); err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	select {
	case pair := <-h.mem.stored:
		if pair[0] != "what is the answer" || pair[1] != "Noted." {
			t.Errorf("memory stored %v", pair)
		}
	case <-time.After(time.Second):
		t.Fatal("memory store was never called")
	}
}

func TestSnippetCutsOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("€", 150)
	got := snippet(long)
	if len(got) > 200 {
		t.Errorf("snippet length = %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("snippet split a rune: %q", got)
	}
	if short := snippet("hello"); short != "hello" {
		t.Errorf("short text = %q", short)
	}
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	h := newHarness(t, &scriptedProvider{}, nil)
	if _, err := h.orch.Run(context.Background(), Request{}); err == nil {
		t.Error("expected validation error")
	}
}
