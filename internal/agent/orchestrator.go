// Package agent runs the tool-orchestration loop that turns an incoming
// user message into a reply. Each turn streams a completion, executes any
// tool calls the model makes, feeds the results back, and repeats up to
// MaxIterations before forcing a final answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/abhinav155942/wobble/internal/agent/providers"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/internal/tools"
	"github.com/abhinav155942/wobble/internal/trace"
	"github.com/abhinav155942/wobble/pkg/models"
)

// MaxIterations caps how many completion/tool rounds a single turn may
// take before the model is forced to answer.
const MaxIterations = 5

const (
	historyWindow = 50
	knowledgeMax  = 5

	apologyText = "I apologize, but I ran into a problem while processing your message. Please try again."

	reflectionPrompt = "Use the tool results above to answer the user's question. Only call another tool if you are still missing information."

	finalAnswerPrompt = "Please provide your best answer based on all the information gathered."
)

// Memory is the slice of the memory manager the orchestrator needs. A nil
// Memory disables recall entirely.
type Memory interface {
	Search(ctx context.Context, agentID, userID, query string, limit int) ([]models.MemoryHit, error)
	Store(ctx context.Context, agentID, userID, userMsg, assistantMsg string)
}

// ProviderSelector resolves which model provider answers for an agent.
type ProviderSelector interface {
	Select(settings models.AISettings) (*providers.Selection, error)
}

// Request is one incoming user message to answer.
type Request struct {
	AgentID        string
	ConversationID string
	Channel        models.ChannelType
	UserID         string
	Content        string
	// SelectedModel overrides the agent's configured model for this turn
	// when non-empty.
	SelectedModel string
}

// Orchestrator drives turns for all agents.
type Orchestrator struct {
	stores   storage.StoreSet
	selector ProviderSelector
	memory   Memory
	toolDeps tools.Deps
	logger   *observability.Logger
	metrics  *observability.Metrics
}

func NewOrchestrator(stores storage.StoreSet, selector ProviderSelector, memory Memory, toolDeps tools.Deps, logger *observability.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		stores:   stores,
		selector: selector,
		memory:   memory,
		toolDeps: toolDeps,
		logger:   logger.WithFields("component", "orchestrator"),
		metrics:  metrics,
	}
}

// Run answers one user message, streaming progress events. The channel is
// closed after a done event; every stream ends with done, including error
// streams.
func (o *Orchestrator) Run(ctx context.Context, req Request) (<-chan Event, error) {
	if req.AgentID == "" || req.ConversationID == "" || strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("agent ID, conversation ID and content are required")
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events, nil
}

// SyncResult is the non-streaming outcome of one turn: the reply text
// plus the IDs of the persisted message rows.
type SyncResult struct {
	Reply              string
	UserMessageID      string
	AssistantMessageID string
}

// RunSync drains the event stream and returns the reply, which in the
// failure path is the persisted apology. Webhook handlers and the
// non-streaming chat mode use this since they take whole messages, not
// streams.
func (o *Orchestrator) RunSync(ctx context.Context, req Request) (*SyncResult, error) {
	events, err := o.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	var (
		reply strings.Builder
		res   SyncResult
	)
	for ev := range events {
		switch ev.Type {
		case EventResponse:
			reply.WriteString(ev.Delta)
		case EventMessageIDs:
			res.UserMessageID = ev.UserMessageID
			res.AssistantMessageID = ev.AssistantMessageID
		case EventError:
			if reply.Len() == 0 {
				reply.WriteString(apologyText)
			}
		}
	}
	res.Reply = strings.TrimSpace(reply.String())
	return &res, nil
}

// turnState carries everything the loop accumulates for one turn.
type turnState struct {
	agent       *models.Agent
	recorder    *trace.Recorder
	dispatcher  *tools.Dispatcher
	provider    providers.Provider
	model       string
	system      string
	transcript  []providers.ChatMessage
	toolDefs    []providers.ToolDef
	full        strings.Builder
	toolsCalled []string
	userMsgID   string
	assistantID string
	started     time.Time
}

func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- Event) {
	ctx = observability.AddConversationID(observability.AddAgentID(ctx, req.AgentID), req.ConversationID)
	state := &turnState{started: time.Now(), assistantID: uuid.NewString()}

	agent, err := o.stores.Agents.Get(ctx, req.AgentID)
	if err != nil {
		o.fail(ctx, req, state, events, fmt.Errorf("load agent: %w", err))
		return
	}
	state.agent = agent

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		AgentID:        req.AgentID,
		UserID:         req.UserID,
		Channel:        req.Channel,
		Role:           models.RoleUser,
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.stores.Messages.Create(ctx, userMsg); err != nil {
		o.fail(ctx, req, state, events, fmt.Errorf("persist user message: %w", err))
		return
	}
	state.userMsgID = userMsg.ID
	if o.metrics != nil {
		o.metrics.MessageReceived(string(req.Channel), "inbound")
	}

	settings := agent.AISettings
	if req.SelectedModel != "" {
		settings.SelectedModel = req.SelectedModel
	}
	sel, err := o.selector.Select(settings)
	if err != nil {
		o.fail(ctx, req, state, events, fmt.Errorf("select provider: %w", err))
		return
	}
	state.provider, state.model = sel.Provider, sel.Model

	state.recorder = trace.NewRecorder(o.stores.Traces, o.logger, state.assistantID, req.ConversationID)
	state.transcript = o.buildTranscript(ctx, req)
	state.system = BuildSystemPrompt(agent, o.memories(ctx, req), o.knowledge(ctx, req.AgentID))

	catalog := tools.ForAgent(agent, o.toolDeps)
	state.dispatcher = tools.NewDispatcher(catalog, tools.DispatcherConfig{}, o.logger, o.metrics)
	for _, tool := range catalog {
		state.toolDefs = append(state.toolDefs, providers.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}

	iterations, err := o.loop(ctx, req, state, events)
	if err != nil {
		o.fail(ctx, req, state, events, err)
		return
	}

	finalText := state.full.String()
	if err := o.persistAssistant(ctx, req, state, finalText); err != nil {
		o.fail(ctx, req, state, events, err)
		return
	}

	if o.metrics != nil {
		o.metrics.RecordTurn(req.AgentID, iterations)
		o.metrics.MessageSent(string(req.Channel))
	}
	emit(ctx, events, Event{
		Type:               EventMessageIDs,
		UserMessageID:      state.userMsgID,
		AssistantMessageID: state.assistantID,
	})
	emit(ctx, events, Event{Type: EventDone})

	if o.memory != nil {
		// Recall capture must not hold up the turn or die with it.
		bg := context.WithoutCancel(ctx)
		go o.memory.Store(bg, req.AgentID, req.UserID, req.Content, finalText)
	}
}

// loop runs the completion/tool rounds. Every pass, including the
// concluding one, opens with a running reasoning trace and a thinking
// event before the model is called. It returns the number of iterations
// consumed; state.full holds the forwarded reply text.
func (o *Orchestrator) loop(ctx context.Context, req Request, state *turnState, events chan<- Event) (int, error) {
	for iteration := 1; iteration <= MaxIterations; iteration++ {
		title := "Analyzing next step..."
		if iteration == 1 {
			title = "Let me think about this..."
		}
		reasoningID := state.recorder.Reasoning(ctx, iteration,
			fmt.Sprintf("Iteration %d", iteration), title)
		emit(ctx, events, Event{Type: EventThinking, Title: title, Iteration: iteration})

		text, toolCalls, err := o.streamOnce(ctx, state, events, false)
		if err != nil {
			return iteration, err
		}

		if len(toolCalls) == 0 {
			state.recorder.ReasoningDone(ctx, reasoningID)
			state.recorder.Response(ctx, iteration, snippet(text))
			return iteration, nil
		}

		o.runTools(ctx, state, events, iteration, text, toolCalls)
		state.recorder.ReasoningDone(ctx, reasoningID)

		if iteration < MaxIterations {
			state.transcript = append(state.transcript, providers.ChatMessage{
				Role:    "user",
				Content: reflectionPrompt,
			})
		}
	}

	// The model was still calling tools at the cap. Instruct it to answer
	// from what it has and force a final completion with the tool list
	// withheld, on the same provider the agent selected.
	state.transcript = append(state.transcript, providers.ChatMessage{
		Role:    "user",
		Content: finalAnswerPrompt,
	})
	text, _, err := o.streamOnce(ctx, state, events, true)
	if err != nil {
		return MaxIterations, err
	}
	state.recorder.Response(ctx, MaxIterations, snippet(text))
	return MaxIterations, nil
}

// streamOnce runs one completion over the current transcript. Content
// deltas are forwarded as response events only until the first tool call
// arrives; after that the text is still collected for the transcript but
// the user no longer sees it.
func (o *Orchestrator) streamOnce(ctx context.Context, state *turnState, events chan<- Event, disableTools bool) (string, []models.ToolCall, error) {
	req := providers.CompletionRequest{
		Model:        state.model,
		System:       state.system,
		Messages:     state.transcript,
		Tools:        state.toolDefs,
		MaxTokens:    state.agent.AISettings.MaxTokens,
		Temperature:  state.agent.AISettings.Temperature,
		DisableTools: disableTools,
	}

	stream, err := state.provider.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var (
		text      strings.Builder
		toolCalls []models.ToolCall
	)
	for ev := range stream {
		switch {
		case ev.Err != nil:
			return text.String(), toolCalls, ev.Err
		case ev.ToolCall != nil:
			toolCalls = append(toolCalls, *ev.ToolCall)
		case ev.Text != "":
			text.WriteString(ev.Text)
			if len(toolCalls) == 0 {
				state.full.WriteString(ev.Text)
				emit(ctx, events, Event{Type: EventResponse, Delta: ev.Text})
			}
		}
	}
	return text.String(), toolCalls, nil
}

// runTools records, executes and folds back one batch of tool calls.
func (o *Orchestrator) runTools(ctx context.Context, state *turnState, events chan<- Event, iteration int, text string, toolCalls []models.ToolCall) {
	names := make([]string, len(toolCalls))
	for i, tc := range toolCalls {
		names[i] = tc.Name
	}
	state.toolsCalled = append(state.toolsCalled, names...)

	state.transcript = append(state.transcript, providers.ChatMessage{
		Role:      "assistant",
		Content:   text,
		ToolCalls: toolCalls,
	})

	traceIDs := make([]string, len(toolCalls))
	for i, tc := range toolCalls {
		traceIDs[i] = state.recorder.ToolStart(ctx, iteration, i, tc.Name, tc.Arguments)
		emit(ctx, events, Event{
			Type:       EventToolStart,
			Tool:       tc.Name,
			Args:       tc.Arguments,
			Iteration:  iteration,
			StepNumber: iteration*100 + i + 1,
		})
	}

	results := state.dispatcher.ExecuteAll(ctx, toolCalls)

	for i, res := range results {
		status := tools.StatusSuccess
		if res.IsError {
			status = tools.StatusError
			state.recorder.ToolError(ctx, traceIDs[i], res.Content)
		} else {
			state.recorder.ToolDone(ctx, traceIDs[i], map[string]any{"result": decodeResult(res.Content)})
		}
		emit(ctx, events, Event{
			Type:       EventToolComplete,
			Tool:       toolCalls[i].Name,
			Status:     status,
			Result:     decodeResult(res.Content),
			DurationMS: res.DurationMS,
			Success:    !res.IsError,
			Iteration:  iteration,
			StepNumber: iteration*100 + i + 1,
		})
	}

	state.transcript = append(state.transcript, providers.ChatMessage{
		Role:        "tool",
		ToolResults: results,
	})
}

func (o *Orchestrator) persistAssistant(ctx context.Context, req Request, state *turnState, finalText string) error {
	msg := &models.Message{
		ID:             state.assistantID,
		ConversationID: req.ConversationID,
		AgentID:        req.AgentID,
		UserID:         req.UserID,
		Channel:        req.Channel,
		Role:           models.RoleAssistant,
		Content:        finalText,
		ResponseTimeMS: time.Since(state.started).Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if len(state.toolsCalled) > 0 {
		msg.Metadata = map[string]any{"tools_used": state.toolsCalled}
	}
	if err := o.stores.Messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	if err := o.stores.Conversations.Touch(ctx, req.ConversationID); err != nil {
		o.logger.Warn(ctx, "touch conversation failed", "error", err)
	}
	return nil
}

// fail persists the apology reply so the user still gets an answer row,
// then reports the failure on the stream.
func (o *Orchestrator) fail(ctx context.Context, req Request, state *turnState, events chan<- Event, cause error) {
	o.logger.Error(ctx, "turn failed", "error", cause)
	if o.metrics != nil {
		o.metrics.RecordError("orchestrator", errorType(cause))
	}

	if state.userMsgID != "" {
		msg := &models.Message{
			ID:             state.assistantID,
			ConversationID: req.ConversationID,
			AgentID:        req.AgentID,
			UserID:         req.UserID,
			Channel:        req.Channel,
			Role:           models.RoleAssistant,
			Content:        apologyText,
			ResponseTimeMS: time.Since(state.started).Milliseconds(),
			CreatedAt:      time.Now().UTC(),
		}
		if err := o.stores.Messages.Create(ctx, msg); err != nil {
			o.logger.Error(ctx, "persist apology failed", "error", err)
		} else {
			emit(ctx, events, Event{
				Type:               EventMessageIDs,
				UserMessageID:      state.userMsgID,
				AssistantMessageID: state.assistantID,
			})
		}
	}

	emit(ctx, events, Event{Type: EventError, Message: cause.Error()})
	emit(ctx, events, Event{Type: EventDone})
}

// buildTranscript loads the recent history, which already includes the
// just-persisted user message.
func (o *Orchestrator) buildTranscript(ctx context.Context, req Request) []providers.ChatMessage {
	history, err := o.stores.Messages.ListRecent(ctx, req.ConversationID, historyWindow)
	if err != nil {
		o.logger.Warn(ctx, "history load failed", "error", err)
		return []providers.ChatMessage{{Role: "user", Content: req.Content}}
	}
	transcript := make([]providers.ChatMessage, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			transcript = append(transcript, providers.ChatMessage{Role: "user", Content: msg.Content})
		case models.RoleAssistant:
			transcript = append(transcript, providers.ChatMessage{Role: "assistant", Content: msg.Content})
		}
	}
	return transcript
}

func (o *Orchestrator) memories(ctx context.Context, req Request) []models.MemoryHit {
	if o.memory == nil {
		return nil
	}
	hits, err := o.memory.Search(ctx, req.AgentID, req.UserID, req.Content, 0)
	if err != nil {
		o.logger.Warn(ctx, "memory search failed", "error", err)
		return nil
	}
	return hits
}

func (o *Orchestrator) knowledge(ctx context.Context, agentID string) []*models.KnowledgeChunk {
	chunks, err := o.stores.Knowledge.ListByAgent(ctx, agentID, knowledgeMax)
	if err != nil {
		o.logger.Warn(ctx, "knowledge load failed", "error", err)
		return nil
	}
	return chunks
}

func emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// snippet bounds trace detail text, cutting on a rune boundary so a
// multi-byte character is never split.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 200 {
		return text
	}
	cut := 200
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func decodeResult(content string) any {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return content
	}
	return decoded
}

func errorType(err error) string {
	if pe, ok := providers.AsProviderError(err); ok {
		return string(pe.Reason)
	}
	return "internal"
}
