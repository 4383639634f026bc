package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhinav155942/wobble/pkg/models"
)

// InMemory implements all store interfaces with maps. Used in tests and for
// ephemeral deployments.
type InMemory struct {
	mu            sync.RWMutex
	agents        map[string]*models.Agent
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	traces        map[string]*models.ExecutionTrace
	memories      map[string]*models.Memory
	knowledge     map[string]*models.KnowledgeChunk
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		agents:        make(map[string]*models.Agent),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		traces:        make(map[string]*models.ExecutionTrace),
		memories:      make(map[string]*models.Memory),
		knowledge:     make(map[string]*models.KnowledgeChunk),
	}
}

// NewInMemoryStoreSet wires every store interface to one in-memory store.
func NewInMemoryStoreSet() (StoreSet, *InMemory) {
	m := NewInMemory()
	return StoreSet{
		Agents:        memAgents{m},
		Conversations: memConversations{m},
		Messages:      memMessages{m},
		Traces:        memTraces{m},
		Memories:      memMemories{m},
		Knowledge:     memKnowledge{m},
	}, m
}

func copyAgent(a *models.Agent) *models.Agent {
	cp := *a
	return &cp
}

// --- agents ---

type memAgents struct{ m *InMemory }

func (v memAgents) Create(_ context.Context, agent *models.Agent) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if _, ok := v.m.agents[agent.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	v.m.agents[agent.ID] = copyAgent(agent)
	return nil
}

func (v memAgents) Get(_ context.Context, id string) (*models.Agent, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	agent, ok := v.m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgent(agent), nil
}

func (v memAgents) List(_ context.Context, ownerID string, limit, offset int) ([]*models.Agent, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	var agents []*models.Agent
	for _, a := range v.m.agents {
		if a.OwnerID == ownerID {
			agents = append(agents, copyAgent(a))
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.After(agents[j].CreatedAt) })
	if offset >= len(agents) {
		return nil, nil
	}
	agents = agents[offset:]
	if limit > 0 && len(agents) > limit {
		agents = agents[:limit]
	}
	return agents, nil
}

func (v memAgents) Update(_ context.Context, agent *models.Agent) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.agents[agent.ID]; !ok {
		return ErrNotFound
	}
	agent.UpdatedAt = time.Now().UTC()
	v.m.agents[agent.ID] = copyAgent(agent)
	return nil
}

func (v memAgents) Delete(_ context.Context, id string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.agents[id]; !ok {
		return ErrNotFound
	}
	delete(v.m.agents, id)
	return nil
}

// --- conversations ---

type memConversations struct{ m *InMemory }

func (v memConversations) Create(_ context.Context, conv *models.Conversation) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	cp := *conv
	v.m.conversations[conv.ID] = &cp
	return nil
}

func (v memConversations) Get(_ context.Context, id string) (*models.Conversation, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	conv, ok := v.m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (v memConversations) GetByExternalID(_ context.Context, agentID, externalID string) (*models.Conversation, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	for _, conv := range v.m.conversations {
		if conv.AgentID == agentID && conv.ExternalID == externalID {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (v memConversations) GetOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	if existing, err := v.GetByExternalID(ctx, conv.AgentID, conv.ExternalID); err == nil {
		return existing, nil
	}
	if err := v.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (v memConversations) Touch(_ context.Context, id string) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if conv, ok := v.m.conversations[id]; ok {
		conv.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// --- messages ---

type memMessages struct{ m *InMemory }

func (v memMessages) Create(_ context.Context, msg *models.Message) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	v.m.messages[msg.ID] = &cp
	return nil
}

func (v memMessages) Get(_ context.Context, id string) (*models.Message, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	msg, ok := v.m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (v memMessages) ListRecent(_ context.Context, conversationID string, limit int) ([]*models.Message, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var msgs []*models.Message
	for _, msg := range v.m.messages {
		if msg.ConversationID == conversationID {
			cp := *msg
			msgs = append(msgs, &cp)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// --- traces ---

type memTraces struct{ m *InMemory }

func (v memTraces) Create(_ context.Context, trace *models.ExecutionTrace) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if trace.ID == "" {
		trace.ID = uuid.NewString()
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}
	cp := *trace
	v.m.traces[trace.ID] = &cp
	return nil
}

func (v memTraces) UpdateStatus(_ context.Context, id string, status models.StepStatus, payload map[string]any) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	trace, ok := v.m.traces[id]
	if !ok {
		return ErrNotFound
	}
	trace.Status = status
	if payload != nil {
		if trace.Payload == nil {
			trace.Payload = map[string]any{}
		}
		for k, val := range payload {
			trace.Payload[k] = val
		}
	}
	return nil
}

func (v memTraces) ListByMessage(_ context.Context, messageID string) ([]*models.ExecutionTrace, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	var traces []*models.ExecutionTrace
	for _, tr := range v.m.traces {
		if tr.MessageID == messageID {
			cp := *tr
			traces = append(traces, &cp)
		}
	}
	sort.Slice(traces, func(i, j int) bool { return traces[i].StepNumber < traces[j].StepNumber })
	return traces, nil
}

// --- memories ---

type memMemories struct{ m *InMemory }

func (v memMemories) Create(_ context.Context, mem *models.Memory) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	cp := *mem
	v.m.memories[mem.ID] = &cp
	return nil
}

func (v memMemories) ListByUser(_ context.Context, agentID, userID string) ([]*models.Memory, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	var mems []*models.Memory
	for _, mem := range v.m.memories {
		if mem.AgentID == agentID && mem.UserID == userID {
			cp := *mem
			mems = append(mems, &cp)
		}
	}
	sort.Slice(mems, func(i, j int) bool { return mems[i].CreatedAt.After(mems[j].CreatedAt) })
	return mems, nil
}

// --- knowledge ---

type memKnowledge struct{ m *InMemory }

func (v memKnowledge) Add(_ context.Context, chunk *models.KnowledgeChunk) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	cp := *chunk
	v.m.knowledge[chunk.ID] = &cp
	return nil
}

func (v memKnowledge) ListByAgent(_ context.Context, agentID string, limit int) ([]*models.KnowledgeChunk, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	var chunks []*models.KnowledgeChunk
	for _, c := range v.m.knowledge {
		if c.AgentID == agentID {
			cp := *c
			chunks = append(chunks, &cp)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].CreatedAt.Before(chunks[j].CreatedAt) })
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}
