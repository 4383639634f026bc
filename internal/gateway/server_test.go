package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abhinav155942/wobble/internal/agent"
	"github.com/abhinav155942/wobble/internal/agent/providers"
	"github.com/abhinav155942/wobble/internal/channels"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

// scriptedOrchestrator replays canned events without a model behind it.
type scriptedOrchestrator struct {
	events   []agent.Event
	err      error
	requests []agent.Request
}

func (o *scriptedOrchestrator) Run(_ context.Context, req agent.Request) (<-chan agent.Event, error) {
	o.requests = append(o.requests, req)
	if o.err != nil {
		return nil, o.err
	}
	ch := make(chan agent.Event, len(o.events))
	for _, ev := range o.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (o *scriptedOrchestrator) RunSync(ctx context.Context, req agent.Request) (*agent.SyncResult, error) {
	events, err := o.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	var (
		out strings.Builder
		res agent.SyncResult
	)
	for ev := range events {
		switch ev.Type {
		case agent.EventResponse:
			out.WriteString(ev.Delta)
		case agent.EventMessageIDs:
			res.UserMessageID = ev.UserMessageID
			res.AssistantMessageID = ev.AssistantMessageID
		}
	}
	res.Reply = out.String()
	return &res, nil
}

type scriptedEnhanceProvider struct {
	text string
	err  error
}

func (p *scriptedEnhanceProvider) Name() string { return "scripted" }

func (p *scriptedEnhanceProvider) Stream(context.Context, providers.CompletionRequest) (<-chan providers.StreamEvent, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan providers.StreamEvent, 2)
	ch <- providers.StreamEvent{Text: p.text}
	ch <- providers.StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T, orch Orchestrator, enhancer *PromptEnhancer) (*Server, storage.StoreSet) {
	t.Helper()
	stores, _ := storage.NewInMemoryStoreSet()
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: &strings.Builder{}})

	ag := &models.Agent{ID: "agent-1", Name: "Support"}
	if err := stores.Agents.Create(context.Background(), ag); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	hub := channels.NewHub(stores, orchestratorRunner{orch}, channels.Deps{Logger: logger}, logger, nil)
	srv := NewServer(Config{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second},
		orch, enhancer, hub, stores, logger, nil)
	return srv, stores
}

type orchestratorRunner struct{ orch Orchestrator }

func (r orchestratorRunner) RunSync(ctx context.Context, req agent.Request) (*agent.SyncResult, error) {
	return r.orch.RunSync(ctx, req)
}

func chatBody(stream bool) string {
	b, _ := json.Marshal(map[string]any{
		"agentId":        "agent-1",
		"conversationId": "conv-1",
		"userId":         "u1",
		"streamResponse": stream,
		"messages": []map[string]string{
			{"role": "assistant", "content": "earlier answer"},
			{"role": "user", "content": "hello"},
		},
	})
	return string(b)
}

func TestChatStreamsSSE(t *testing.T) {
	orch := &scriptedOrchestrator{events: []agent.Event{
		{Type: agent.EventResponse, Delta: "Hi"},
		{Type: agent.EventResponse, Delta: " there"},
		{Type: agent.EventDone},
	}}
	srv, _ := newTestServer(t, orch, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(true)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"content":"Hi"`) || !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("body = %q", body)
	}

	if len(orch.requests) != 1 {
		t.Fatalf("turns = %d", len(orch.requests))
	}
	turn := orch.requests[0]
	if turn.Content != "hello" || turn.Channel != models.ChannelWeb || turn.UserID != "u1" {
		t.Errorf("turn = %+v", turn)
	}
}

func TestChatCreatesWebConversation(t *testing.T) {
	orch := &scriptedOrchestrator{events: []agent.Event{{Type: agent.EventDone}}}
	srv, stores := newTestServer(t, orch, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(false)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	conv, err := stores.Conversations.GetByExternalID(context.Background(), "agent-1", "web_conv-1")
	if err != nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.Channel != models.ChannelWeb {
		t.Errorf("channel = %s", conv.Channel)
	}
}

func TestChatNonStreamingReturnsJSON(t *testing.T) {
	orch := &scriptedOrchestrator{events: []agent.Event{
		{Type: agent.EventResponse, Delta: "Answer."},
		{Type: agent.EventMessageIDs, UserMessageID: "u-row", AssistantMessageID: "a-row"},
		{Type: agent.EventDone},
	}}
	srv, _ := newTestServer(t, orch, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody(false)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp struct {
		Response   string `json:"response"`
		MessageIDs struct {
			UserMessageID      string `json:"userMessageId"`
			AssistantMessageID string `json:"assistantMessageId"`
		} `json:"messageIds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Response != "Answer." {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.MessageIDs.UserMessageID != "u-row" || resp.MessageIDs.AssistantMessageID != "a-row" {
		t.Errorf("messageIds = %+v", resp.MessageIDs)
	}
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedOrchestrator{}, nil)

	for name, body := range map[string]string{
		"bad json":        "{",
		"no agent":        `{"conversationId":"c","messages":[{"role":"user","content":"x"}]}`,
		"no user message": `{"agentId":"a","conversationId":"c","messages":[{"role":"assistant","content":"x"}]}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", name, rec.Code)
		}
	}
}

func TestListMessagesAndTraces(t *testing.T) {
	srv, stores := newTestServer(t, &scriptedOrchestrator{}, nil)
	ctx := context.Background()

	conv := &models.Conversation{ID: "conv-1", AgentID: "agent-1", Channel: models.ChannelWeb, ExternalID: "web_conv-1"}
	if err := stores.Conversations.Create(ctx, conv); err != nil {
		t.Fatal(err)
	}
	msg := &models.Message{ID: "msg-1", ConversationID: "conv-1", AgentID: "agent-1", Role: models.RoleUser, Content: "hi"}
	if err := stores.Messages.Create(ctx, msg); err != nil {
		t.Fatal(err)
	}
	tr := &models.ExecutionTrace{ID: "tr-1", MessageID: "msg-1", ConversationID: "conv-1", StepNumber: 199, StepType: models.StepResponse, Status: models.StepCompleted}
	if err := stores.Traces.Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations/conv-1/messages", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"content":"hi"`) {
		t.Errorf("messages: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages/msg-1/traces", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"step_number":199`) {
		t.Errorf("traces: %d %s", rec.Code, rec.Body.String())
	}
}

func TestEnhancePrompt(t *testing.T) {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: &strings.Builder{}})
	enhancer := NewPromptEnhancer(&scriptedEnhanceProvider{text: "You are Nora, Acme's support agent."}, logger)
	srv, _ := newTestServer(t, &scriptedOrchestrator{}, enhancer)

	req := httptest.NewRequest(http.MethodPost, "/v1/agents/agent-1/enhance-prompt",
		strings.NewReader(`{"persona":"nice support bot"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.HasPrefix(resp["persona"], "You are Nora") {
		t.Errorf("persona = %q", resp["persona"])
	}
}

func TestEnhancePromptFailure(t *testing.T) {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: &strings.Builder{}})
	enhancer := NewPromptEnhancer(&scriptedEnhanceProvider{err: errors.New("gateway down")}, logger)
	srv, _ := newTestServer(t, &scriptedOrchestrator{}, enhancer)

	req := httptest.NewRequest(http.MethodPost, "/v1/agents/agent-1/enhance-prompt",
		strings.NewReader(`{"persona":"nice support bot"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedOrchestrator{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("healthz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookRoutesRegistered(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedOrchestrator{}, nil)
	handler := srv.Handler()

	for _, ch := range []string{"telegram", "whatsapp", "instagram", "email", "youtube"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/"+ch+"/agent-1", strings.NewReader("{}"))
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s webhook status = %d", ch, rec.Code)
		}
	}

	// Meta GET verification exists for whatsapp and instagram only.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp/agent-1?hub.mode=subscribe", nil))
	if rec.Code == http.StatusMethodNotAllowed || rec.Code == http.StatusNotFound {
		t.Errorf("whatsapp verify route missing: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/telegram/agent-1", nil))
	if rec.Code == http.StatusOK {
		t.Error("telegram must not expose a GET route")
	}
}
