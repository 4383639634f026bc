// Package storage defines the persistence interfaces and their SQLite and
// in-memory implementations.
package storage

import (
	"context"
	"errors"

	"github.com/abhinav155942/wobble/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// AgentStore persists agent configurations.
type AgentStore interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	Delete(ctx context.Context, id string) error
}

// ConversationStore persists conversation threads.
type ConversationStore interface {
	Create(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// GetByExternalID looks a conversation up by its platform-scoped key.
	GetByExternalID(ctx context.Context, agentID, externalID string) (*models.Conversation, error)
	// GetOrCreate returns the conversation keyed by (agent, external ID),
	// creating it when absent.
	GetOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	Touch(ctx context.Context, id string) error
}

// MessageStore persists conversation messages.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	// ListRecent returns up to limit most recent messages in chronological order.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
}

// TraceStore persists execution traces.
type TraceStore interface {
	Create(ctx context.Context, trace *models.ExecutionTrace) error
	// UpdateStatus transitions a trace step and merges payload fields.
	UpdateStatus(ctx context.Context, id string, status models.StepStatus, payload map[string]any) error
	ListByMessage(ctx context.Context, messageID string) ([]*models.ExecutionTrace, error)
}

// MemoryStore persists long-term user memories with embeddings.
type MemoryStore interface {
	Create(ctx context.Context, mem *models.Memory) error
	// ListByUser returns all memories for one agent/user pair, newest first.
	ListByUser(ctx context.Context, agentID, userID string) ([]*models.Memory, error)
}

// KnowledgeStore persists agent knowledge base chunks.
type KnowledgeStore interface {
	Add(ctx context.Context, chunk *models.KnowledgeChunk) error
	// ListByAgent returns up to limit chunks for the agent.
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*models.KnowledgeChunk, error)
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Agents        AgentStore
	Conversations ConversationStore
	Messages      MessageStore
	Traces        TraceStore
	Memories      MemoryStore
	Knowledge     KnowledgeStore
	closer        func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
