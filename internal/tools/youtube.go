package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/abhinav155942/wobble/pkg/models"
)

const youtubeAPIBase = "https://www.googleapis.com/youtube/v3"

// youtubeClient calls the YouTube Data API with an API key.
type youtubeClient struct {
	base   string
	apiKey string
	http   *http.Client
}

func newYouTubeClient(conn *models.Connection, deps Deps) *youtubeClient {
	return &youtubeClient{
		base:   youtubeAPIBase,
		apiKey: conn.Credential("api_key"),
		http:   deps.httpClient(),
	}
}

func (c *youtubeClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path+"&key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("youtube API status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// youtubeAnalyzePerformance summarizes channel or video performance from
// the stats the model was given.
type youtubeAnalyzePerformance struct{}

func newYouTubeAnalyzePerformance(_ *models.Connection, _ Deps) Tool {
	return &youtubeAnalyzePerformance{}
}

func (t *youtubeAnalyzePerformance) Name() string { return "analyze_performance" }

func (t *youtubeAnalyzePerformance) Description() string {
	return "Record a performance analysis of a video or the channel, with findings and suggestions."
}

func (t *youtubeAnalyzePerformance) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"video_id": {"type": "string", "description": "Video analyzed, empty for channel-level"},
			"findings": {"type": "string", "description": "What the numbers show"},
			"suggestions": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["findings"]
	}`)
}

func (t *youtubeAnalyzePerformance) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		VideoID     string   `json:"video_id"`
		Findings    string   `json:"findings"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Findings == "" {
		return Errorf("analyze_performance", "findings are required"), nil
	}
	return &Result{
		Content: input.Findings,
		Action:  "analyze_performance",
		Status:  StatusSuccess,
		Data:    map[string]any{"video_id": input.VideoID, "suggestions": input.Suggestions},
	}, nil
}

// youtubeModerateComment flags or holds a comment.
type youtubeModerateComment struct{}

func newYouTubeModerateComment(_ *models.Connection, _ Deps) Tool {
	return &youtubeModerateComment{}
}

func (t *youtubeModerateComment) Name() string { return "moderate_comment" }

func (t *youtubeModerateComment) Description() string {
	return "Moderate a comment: hold it for review or reject it."
}

func (t *youtubeModerateComment) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"comment_id": {"type": "string"},
			"action": {"type": "string", "enum": ["hold", "reject"]},
			"reason": {"type": "string"}
		},
		"required": ["comment_id", "action"]
	}`)
}

func (t *youtubeModerateComment) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		CommentID string `json:"comment_id"`
		Action    string `json:"action"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.CommentID == "" || input.Action == "" {
		return Errorf("moderate_comment", "comment_id and action are required"), nil
	}
	if input.Action != "hold" && input.Action != "reject" {
		return Errorf("moderate_comment", fmt.Sprintf("unsupported action %q", input.Action)), nil
	}
	// Moderation status changes need channel-owner OAuth, which the agent
	// does not hold, so the decision is queued for the owner's dashboard.
	return &Result{
		Content: fmt.Sprintf("Comment %s queued for %s", input.CommentID, input.Action),
		Action:  "moderate_comment",
		Status:  StatusPending,
		Data:    map[string]any{"comment_id": input.CommentID, "action": input.Action, "reason": input.Reason},
	}, nil
}

// youtubeGenerateMetadata proposes title, description and tags for a video.
type youtubeGenerateMetadata struct{}

func newYouTubeGenerateMetadata(_ *models.Connection, _ Deps) Tool {
	return &youtubeGenerateMetadata{}
}

func (t *youtubeGenerateMetadata) Name() string { return "generate_metadata" }

func (t *youtubeGenerateMetadata) Description() string {
	return "Generate title, description and tags for a video based on its topic."
}

func (t *youtubeGenerateMetadata) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"description": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["title", "description"]
	}`)
}

func (t *youtubeGenerateMetadata) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Title == "" || input.Description == "" {
		return Errorf("generate_metadata", "title and description are required"), nil
	}
	return &Result{
		Content: "Metadata generated",
		Action:  "generate_metadata",
		Status:  StatusSuccess,
		Data:    map[string]any{"title": input.Title, "description": input.Description, "tags": input.Tags},
	}, nil
}

// youtubeReplyComment posts a threaded reply via the Data API.
type youtubeReplyComment struct {
	client *youtubeClient
}

func newYouTubeReplyComment(conn *models.Connection, deps Deps) Tool {
	return &youtubeReplyComment{client: newYouTubeClient(conn, deps)}
}

func (t *youtubeReplyComment) Name() string { return "reply_comment" }

func (t *youtubeReplyComment) Description() string {
	return "Reply to a comment on one of the channel's videos."
}

func (t *youtubeReplyComment) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"comment_id": {"type": "string", "description": "Parent comment ID"},
			"text": {"type": "string", "description": "Reply text"}
		},
		"required": ["comment_id", "text"]
	}`)
}

func (t *youtubeReplyComment) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		CommentID string `json:"comment_id"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.CommentID == "" || input.Text == "" {
		return Errorf("reply_comment", "comment_id and text are required"), nil
	}

	payload := map[string]any{
		"snippet": map[string]any{
			"parentId":     input.CommentID,
			"textOriginal": input.Text,
		},
	}
	if err := t.client.post(ctx, "/comments?part=snippet", payload); err != nil {
		return Errorf("reply_comment", fmt.Sprintf("youtube reply failed: %v", err)), nil
	}
	return Success("reply_comment", "Reply posted"), nil
}

// youtubeDetectSpam classifies a comment as spam or legitimate.
type youtubeDetectSpam struct{}

func newYouTubeDetectSpam(_ *models.Connection, _ Deps) Tool { return &youtubeDetectSpam{} }

func (t *youtubeDetectSpam) Name() string { return "detect_spam" }

func (t *youtubeDetectSpam) Description() string {
	return "Record whether a comment is spam and how confident you are."
}

func (t *youtubeDetectSpam) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"comment_id": {"type": "string"},
			"is_spam": {"type": "boolean"},
			"confidence": {"type": "number", "description": "0 to 1"},
			"signals": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["comment_id", "is_spam"]
	}`)
}

func (t *youtubeDetectSpam) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		CommentID  string   `json:"comment_id"`
		IsSpam     bool     `json:"is_spam"`
		Confidence float64  `json:"confidence"`
		Signals    []string `json:"signals"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.CommentID == "" {
		return Errorf("detect_spam", "comment_id is required"), nil
	}
	verdict := "legitimate"
	if input.IsSpam {
		verdict = "spam"
	}
	return &Result{
		Content: fmt.Sprintf("Comment %s classified as %s", input.CommentID, verdict),
		Action:  "detect_spam",
		Status:  StatusSuccess,
		Data:    map[string]any{"comment_id": input.CommentID, "is_spam": input.IsSpam, "confidence": input.Confidence, "signals": input.Signals},
	}, nil
}
