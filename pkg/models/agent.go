package models

import (
	"time"
)

// Agent represents a configured AI support agent.
type Agent struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Name         string        `json:"name"`
	Persona      string        `json:"persona,omitempty"`
	Instructions string        `json:"instructions,omitempty"`
	AISettings   AISettings    `json:"ai_settings"`
	Style        StyleSettings `json:"style"`
	Connections  []Connection  `json:"connections,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// DefaultModel is the selected-model value that routes to the hosted gateway.
const DefaultModel = "wobble-free"

// AISettings controls which model answers for the agent.
type AISettings struct {
	// SelectedModel is either DefaultModel or "provider-model",
	// e.g. "openai-gpt-4o" or "anthropic-claude-sonnet-4".
	SelectedModel  string  `json:"selected_model"`
	CustomProvider string  `json:"custom_provider,omitempty"`
	CustomAPIKey   string  `json:"custom_api_key,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
}

// StyleSettings shapes the agent's voice and output format.
type StyleSettings struct {
	Tone           string `json:"tone,omitempty"`            // friendly, professional, casual
	ResponseLength string `json:"response_length,omitempty"` // concise, balanced, detailed
	Formality      string `json:"formality,omitempty"`
	EmojiUsage     string `json:"emoji_usage,omitempty"` // none, minimal, frequent
	Formatting     string `json:"formatting,omitempty"`  // plain, markdown
	Reasoning      string `json:"reasoning,omitempty"`   // quick, thorough
}

// Connection binds an agent to one channel with its credentials and enabled use cases.
type Connection struct {
	Channel     ChannelType       `json:"channel"`
	Enabled     bool              `json:"enabled"`
	Credentials map[string]string `json:"credentials,omitempty"`
	UseCases    map[string]bool   `json:"use_cases,omitempty"`
}

// Credential returns the named credential, or "" when absent.
func (c Connection) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// UseCase reports whether the named use case is switched on.
func (c Connection) UseCase(name string) bool {
	if c.UseCases == nil {
		return false
	}
	return c.UseCases[name]
}

// ConnectionFor returns the agent's connection for the channel, or nil.
func (a *Agent) ConnectionFor(ch ChannelType) *Connection {
	for i := range a.Connections {
		if a.Connections[i].Channel == ch {
			return &a.Connections[i]
		}
	}
	return nil
}
