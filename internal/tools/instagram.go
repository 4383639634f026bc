package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhinav155942/wobble/pkg/models"
)

// instagramReplyDM answers a direct message through the Instagram
// messaging API.
type instagramReplyDM struct {
	graph *graphClient
}

func newInstagramReplyDM(conn *models.Connection, deps Deps) Tool {
	return &instagramReplyDM{graph: newGraphClient(conn.Credential("access_token"), deps)}
}

func (t *instagramReplyDM) Name() string { return "reply_dm" }

func (t *instagramReplyDM) Description() string {
	return "Reply to an Instagram direct message."
}

func (t *instagramReplyDM) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"recipient_id": {"type": "string", "description": "Instagram user ID to reply to"},
			"text": {"type": "string", "description": "Reply text"}
		},
		"required": ["recipient_id", "text"]
	}`)
}

func (t *instagramReplyDM) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		RecipientID string `json:"recipient_id"`
		Text        string `json:"text"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.RecipientID == "" || input.Text == "" {
		return Errorf("reply_dm", "recipient_id and text are required"), nil
	}

	payload := map[string]any{
		"recipient": map[string]string{"id": input.RecipientID},
		"message":   map[string]string{"text": input.Text},
	}
	if err := t.graph.post(ctx, "/me/messages", payload, nil); err != nil {
		return Errorf("reply_dm", fmt.Sprintf("instagram reply failed: %v", err)), nil
	}
	return Success("reply_dm", "Reply sent"), nil
}

// instagramReplyComment posts a reply under a comment.
type instagramReplyComment struct {
	graph *graphClient
}

func newInstagramReplyComment(conn *models.Connection, deps Deps) Tool {
	return &instagramReplyComment{graph: newGraphClient(conn.Credential("access_token"), deps)}
}

func (t *instagramReplyComment) Name() string { return "reply_comment" }

func (t *instagramReplyComment) Description() string {
	return "Reply publicly to a comment on an Instagram post."
}

func (t *instagramReplyComment) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"comment_id": {"type": "string", "description": "ID of the comment to reply to"},
			"text": {"type": "string", "description": "Reply text"}
		},
		"required": ["comment_id", "text"]
	}`)
}

func (t *instagramReplyComment) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		CommentID string `json:"comment_id"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.CommentID == "" || input.Text == "" {
		return Errorf("reply_comment", "comment_id and text are required"), nil
	}

	payload := map[string]any{"message": input.Text}
	if err := t.graph.post(ctx, "/"+input.CommentID+"/replies", payload, nil); err != nil {
		return Errorf("reply_comment", fmt.Sprintf("instagram comment reply failed: %v", err)), nil
	}
	return Success("reply_comment", "Comment reply posted"), nil
}

// instagramSuggestContent records content ideas for the owner's review.
type instagramSuggestContent struct{}

func newInstagramSuggestContent(_ *models.Connection, _ Deps) Tool {
	return &instagramSuggestContent{}
}

func (t *instagramSuggestContent) Name() string { return "suggest_content" }

func (t *instagramSuggestContent) Description() string {
	return "Suggest post or reel ideas for the account based on a topic."
}

func (t *instagramSuggestContent) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"topic": {"type": "string", "description": "Topic or theme"},
			"ideas": {"type": "array", "items": {"type": "string"}, "description": "Concrete content ideas"}
		},
		"required": ["topic", "ideas"]
	}`)
}

func (t *instagramSuggestContent) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Topic string   `json:"topic"`
		Ideas []string `json:"ideas"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Topic == "" || len(input.Ideas) == 0 {
		return Errorf("suggest_content", "topic and at least one idea are required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("%d content ideas recorded for %q", len(input.Ideas), input.Topic),
		Action:  "suggest_content",
		Status:  StatusSuccess,
		Data:    map[string]any{"topic": input.Topic, "ideas": input.Ideas},
	}, nil
}

// instagramQualifyLead scores a conversation as a sales lead.
type instagramQualifyLead struct{}

func newInstagramQualifyLead(_ *models.Connection, _ Deps) Tool {
	return &instagramQualifyLead{}
}

func (t *instagramQualifyLead) Name() string { return "qualify_lead" }

func (t *instagramQualifyLead) Description() string {
	return "Record whether this conversation is a qualified sales lead and why."
}

func (t *instagramQualifyLead) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"qualified": {"type": "boolean"},
			"interest": {"type": "string", "description": "What the user is interested in"},
			"notes": {"type": "string"}
		},
		"required": ["qualified"]
	}`)
}

func (t *instagramQualifyLead) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Qualified bool   `json:"qualified"`
		Interest  string `json:"interest"`
		Notes     string `json:"notes"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return Errorf("qualify_lead", "could not parse lead details"), nil
	}
	verdict := "not qualified"
	if input.Qualified {
		verdict = "qualified"
	}
	return &Result{
		Content: "Lead marked " + verdict,
		Action:  "qualify_lead",
		Status:  StatusSuccess,
		Data:    map[string]any{"qualified": input.Qualified, "interest": input.Interest, "notes": input.Notes},
	}, nil
}

// instagramKeywordTrigger reports which configured keyword fired.
type instagramKeywordTrigger struct{}

func newInstagramKeywordTrigger(_ *models.Connection, _ Deps) Tool {
	return &instagramKeywordTrigger{}
}

func (t *instagramKeywordTrigger) Name() string { return "keyword_trigger" }

func (t *instagramKeywordTrigger) Description() string {
	return "Record that a configured keyword trigger matched the incoming message."
}

func (t *instagramKeywordTrigger) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"keyword": {"type": "string", "description": "The keyword that matched"},
			"response": {"type": "string", "description": "The configured response"}
		},
		"required": ["keyword"]
	}`)
}

func (t *instagramKeywordTrigger) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Keyword  string `json:"keyword"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Keyword == "" {
		return Errorf("keyword_trigger", "keyword is required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("Keyword %q triggered", input.Keyword),
		Action:  "keyword_trigger",
		Status:  StatusSuccess,
		Data:    map[string]any{"keyword": input.Keyword, "response": input.Response},
	}, nil
}
