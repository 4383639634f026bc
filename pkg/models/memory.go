package models

import (
	"time"
)

// Memory is a long-term fact about a user, distilled from past conversations.
type Memory struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary,omitempty"`
	Importance float32   `json:"importance"`
	Embedding  []float32 `json:"-"` // Not serialized to JSON
	CreatedAt  time.Time `json:"created_at"`
}

// MemoryHit is a memory with its similarity score against a query.
type MemoryHit struct {
	Memory *Memory `json:"memory"`
	Score  float32 `json:"score"` // Cosine similarity (0-1)
}

// KnowledgeChunk is a piece of the agent's uploaded knowledge base.
type KnowledgeChunk struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
