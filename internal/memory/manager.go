// Package memory gives agents long-term recall across conversations. Each
// stored memory is a short summary of one user/assistant exchange plus an
// embedding vector; retrieval is cosine similarity over the user's rows.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhinav155942/wobble/internal/agent/providers"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

const (
	// DefaultImportance is assigned to automatically captured exchanges.
	DefaultImportance = 0.6

	// SimilarityThreshold filters out weak matches at retrieval time.
	SimilarityThreshold = 0.7

	// DefaultTopK bounds how many memories flow into the system prompt.
	DefaultTopK = 3

	summarizeTimeout = 20 * time.Second
)

// Embedder turns texts into vectors. The OpenAI provider satisfies this
// with text-embedding-3-small.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Manager stores and retrieves memories.
type Manager struct {
	store      storage.MemoryStore
	embedder   Embedder
	summarizer providers.Provider
	model      string
	logger     *observability.Logger
}

// NewManager wires the memory pipeline. summarizer condenses exchanges to
// one or two sentences before embedding; embeddingModel names the
// embedding model.
func NewManager(store storage.MemoryStore, embedder Embedder, summarizer providers.Provider, embeddingModel string, logger *observability.Logger) *Manager {
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-small"
	}
	return &Manager{
		store:      store,
		embedder:   embedder,
		summarizer: summarizer,
		model:      embeddingModel,
		logger:     logger.WithFields("component", "memory"),
	}
}

// Store captures one exchange. It never returns an error: memory is a
// best-effort enrichment and a failure here must not surface to the user
// whose turn already succeeded.
func (m *Manager) Store(ctx context.Context, agentID, userID, userMsg, assistantMsg string) {
	summary := m.summarize(ctx, userMsg, assistantMsg)
	if summary == "" {
		return
	}

	vectors, err := m.embedder.Embed(ctx, m.model, []string{summary})
	if err != nil || len(vectors) == 0 {
		m.logger.Warn(ctx, "memory embedding failed", "error", err)
		return
	}

	mem := &models.Memory{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		UserID:     userID,
		Content:    summary,
		Importance: DefaultImportance,
		Embedding:  vectors[0],
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.Create(ctx, mem); err != nil {
		m.logger.Warn(ctx, "memory persist failed", "error", err)
		return
	}
	m.logger.Debug(ctx, "memory stored", "agent_id", agentID, "user_id", userID)
}

// Search returns up to limit memories above the similarity threshold,
// best match first. limit <= 0 means DefaultTopK.
func (m *Manager) Search(ctx context.Context, agentID, userID, query string, limit int) ([]models.MemoryHit, error) {
	if limit <= 0 {
		limit = DefaultTopK
	}

	vectors, err := m.embedder.Embed(ctx, m.model, []string{query})
	if err != nil || len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := vectors[0]

	memories, err := m.store.ListByUser(ctx, agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	var hits []models.MemoryHit
	for _, mem := range memories {
		score := CosineSimilarity(queryVec, mem.Embedding)
		if score >= SimilarityThreshold {
			hits = append(hits, models.MemoryHit{Memory: mem, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// summarize condenses the exchange via the model, falling back to a
// truncated verbatim record when the model is unavailable.
func (m *Manager) summarize(ctx context.Context, userMsg, assistantMsg string) string {
	prompt := fmt.Sprintf("Summarize this exchange in 1-2 sentences, keeping any facts about the user worth remembering:\n\nUser: %s\n\nAssistant: %s", userMsg, assistantMsg)

	sumCtx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	events, err := m.summarizer.Stream(sumCtx, providers.CompletionRequest{
		Messages:     []providers.ChatMessage{{Role: "user", Content: prompt}},
		DisableTools: true,
		MaxTokens:    200,
	})
	if err != nil {
		m.logger.Warn(ctx, "memory summarize failed", "error", err)
		return fallbackSummary(userMsg, assistantMsg)
	}

	var sb strings.Builder
	for ev := range events {
		if ev.Err != nil {
			m.logger.Warn(ctx, "memory summarize stream failed", "error", ev.Err)
			return fallbackSummary(userMsg, assistantMsg)
		}
		sb.WriteString(ev.Text)
	}
	if summary := strings.TrimSpace(sb.String()); summary != "" {
		return summary
	}
	return fallbackSummary(userMsg, assistantMsg)
}

func fallbackSummary(userMsg, assistantMsg string) string {
	exchange := "User said: " + userMsg + " Assistant replied: " + assistantMsg
	if len(exchange) > 500 {
		exchange = exchange[:500]
	}
	return exchange
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
