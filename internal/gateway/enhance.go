package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/abhinav155942/wobble/internal/agent/providers"
	"github.com/abhinav155942/wobble/internal/observability"
)

const enhanceSystemPrompt = `You rewrite draft personas for AI support agents. Given a rough persona description, produce a clear, specific system persona: who the agent is, what it helps with, its tone, and its boundaries. Reply with the rewritten persona only, no preamble.`

const enhanceMaxTokens = 1024

// PromptEnhancer rewrites a draft agent persona into a polished one using
// the hosted gateway model.
type PromptEnhancer struct {
	provider providers.Provider
	logger   *observability.Logger
}

func NewPromptEnhancer(provider providers.Provider, logger *observability.Logger) *PromptEnhancer {
	return &PromptEnhancer{
		provider: provider,
		logger:   logger.WithFields("component", "enhancer"),
	}
}

// Enhance returns the rewritten persona.
func (e *PromptEnhancer) Enhance(ctx context.Context, draft string) (string, error) {
	events, err := e.provider.Stream(ctx, providers.CompletionRequest{
		System:       enhanceSystemPrompt,
		Messages:     []providers.ChatMessage{{Role: "user", Content: draft}},
		MaxTokens:    enhanceMaxTokens,
		DisableTools: true,
	})
	if err != nil {
		return "", fmt.Errorf("enhance persona: %w", err)
	}

	var out strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return "", fmt.Errorf("enhance persona: %w", ev.Err)
		}
		out.WriteString(ev.Text)
	}
	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", fmt.Errorf("enhance persona: empty completion")
	}
	return result, nil
}

func (s *Server) handleEnhancePrompt(w http.ResponseWriter, r *http.Request) {
	if s.enhancer == nil {
		writeError(w, http.StatusServiceUnavailable, "prompt enhancement not configured")
		return
	}

	var req struct {
		Persona string `json:"persona"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Persona) == "" {
		writeError(w, http.StatusBadRequest, "persona is required")
		return
	}

	persona, err := s.enhancer.Enhance(r.Context(), req.Persona)
	if err != nil {
		s.logger.Error(r.Context(), "persona enhancement failed", "agent_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusBadGateway, "enhancement failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"persona": persona})
}
