// Package models defines the core data types for wobble.
package models

import (
	"encoding/json"
	"time"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram  ChannelType = "telegram"
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelInstagram ChannelType = "instagram"
	ChannelEmail     ChannelType = "email"
	ChannelYouTube   ChannelType = "youtube"
	ChannelWeb       ChannelType = "web"

	// ChannelWebSearch is a connection kind only. It gates the research
	// tool and never carries messages.
	ChannelWebSearch ChannelType = "web_search"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single turn in a conversation, as persisted.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	AgentID        string         `json:"agent_id"`
	UserID         string         `json:"user_id,omitempty"`
	Channel        ChannelType    `json:"channel"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	ToolCalls      []ToolCall     `json:"tool_calls,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ResponseTimeMS int64          `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Conversation represents a message thread with one end user on one channel.
type Conversation struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id"`
	UserID     string         `json:"user_id,omitempty"`
	Channel    ChannelType    `json:"channel"`
	ExternalID string         `json:"external_id"` // Platform-scoped key, e.g. "telegram_12345"
	Title      string         `json:"title,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
