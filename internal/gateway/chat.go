package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/abhinav155942/wobble/internal/agent"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

// chatRequest is the turn request from the chat frontend.
type chatRequest struct {
	AgentID        string        `json:"agentId"`
	ConversationID string        `json:"conversationId"`
	UserID         string        `json:"userId"`
	Messages       []chatMessage `json:"messages"`
	StreamResponse bool          `json:"streamResponse"`
	SelectedModel  string        `json:"selectedModel,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// lastUserContent returns the newest user message, the one this turn
// answers. Earlier history lives in the store, not the request.
func (r chatRequest) lastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return strings.TrimSpace(r.Messages[i].Content)
		}
	}
	return ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	content := req.lastUserContent()
	if req.AgentID == "" || req.ConversationID == "" || content == "" {
		writeError(w, http.StatusBadRequest, "agentId, conversationId and a user message are required")
		return
	}

	ctx := r.Context()
	userID := req.UserID
	if userID == "" {
		userID = "web_visitor"
	}

	// Web chats name their own conversation IDs; create the row on first
	// contact.
	conv, err := s.stores.Conversations.GetOrCreate(ctx, &models.Conversation{
		ID:         req.ConversationID,
		AgentID:    req.AgentID,
		UserID:     userID,
		Channel:    models.ChannelWeb,
		ExternalID: "web_" + req.ConversationID,
	})
	if err != nil {
		s.logger.Error(ctx, "conversation lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "conversation lookup failed")
		return
	}

	turn := agent.Request{
		AgentID:        req.AgentID,
		ConversationID: conv.ID,
		Channel:        models.ChannelWeb,
		UserID:         userID,
		Content:        content,
		SelectedModel:  req.SelectedModel,
	}

	if !req.StreamResponse {
		res, err := s.orchestrator.RunSync(ctx, turn)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"response": res.Reply,
			"messageIds": map[string]string{
				"userMessageId":      res.UserMessageID,
				"assistantMessageId": res.AssistantMessageID,
			},
		})
		return
	}

	events, err := s.orchestrator.Run(ctx, turn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if s.metrics != nil {
		s.metrics.ActiveStreams.Inc()
		defer s.metrics.ActiveStreams.Dec()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if _, err := w.Write([]byte(ev.SSE())); err != nil {
			// Client went away; the orchestrator notices via ctx.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	msgs, err := s.stores.Messages.ListRecent(r.Context(), conversationID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "message lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")
	traces, err := s.stores.Traces.ListByMessage(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "trace lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": traces})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
