package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/abhinav155942/wobble/pkg/models"
)

// smtpSender sends a single message. Split out so tests can avoid a real
// SMTP dialog.
type smtpSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type realSMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func newSMTPSender(conn *models.Connection) *realSMTPSender {
	port := conn.Credential("smtp_port")
	if port == "" {
		port = "587"
	}
	from := conn.Credential("from_address")
	if from == "" {
		from = conn.Credential("smtp_username")
	}
	return &realSMTPSender{
		host:     conn.Credential("smtp_host"),
		port:     port,
		username: conn.Credential("smtp_username"),
		password: conn.Credential("smtp_password"),
		from:     from,
	}
}

func (s *realSMTPSender) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	return smtp.SendMail(s.host+":"+s.port, auth, s.from, []string{to}, []byte(msg))
}

// emailSendReply sends the reply over SMTP.
type emailSendReply struct {
	sender smtpSender
}

func newEmailSendReply(conn *models.Connection, _ Deps) Tool {
	return &emailSendReply{sender: newSMTPSender(conn)}
}

func (t *emailSendReply) Name() string { return "send_reply" }

func (t *emailSendReply) Description() string {
	return "Send an email reply to the customer."
}

func (t *emailSendReply) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to": {"type": "string", "description": "Recipient address"},
			"subject": {"type": "string"},
			"body": {"type": "string"}
		},
		"required": ["to", "subject", "body"]
	}`)
}

func (t *emailSendReply) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.To == "" || input.Body == "" {
		return Errorf("send_reply", "to, subject and body are required"), nil
	}
	if err := t.sender.Send(ctx, input.To, input.Subject, input.Body); err != nil {
		return Errorf("send_reply", fmt.Sprintf("smtp send failed: %v", err)), nil
	}
	return Success("send_reply", "Reply sent to "+input.To), nil
}

// emailCategorize labels the incoming email.
type emailCategorize struct{}

func newEmailCategorize(_ *models.Connection, _ Deps) Tool { return &emailCategorize{} }

func (t *emailCategorize) Name() string { return "categorize_email" }

func (t *emailCategorize) Description() string {
	return "Assign a category and priority to the incoming email."
}

func (t *emailCategorize) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string", "enum": ["support", "sales", "billing", "complaint", "spam", "other"]},
			"priority": {"type": "string", "enum": ["low", "normal", "high", "urgent"]}
		},
		"required": ["category"]
	}`)
}

func (t *emailCategorize) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Category string `json:"category"`
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Category == "" {
		return Errorf("categorize_email", "category is required"), nil
	}
	if input.Priority == "" {
		input.Priority = "normal"
	}
	return &Result{
		Content: fmt.Sprintf("Email filed under %s with %s priority", input.Category, input.Priority),
		Action:  "categorize_email",
		Status:  StatusSuccess,
		Data:    map[string]any{"category": input.Category, "priority": input.Priority},
	}, nil
}

// emailDraftResponse stores a draft for human review instead of sending.
type emailDraftResponse struct{}

func newEmailDraftResponse(_ *models.Connection, _ Deps) Tool { return &emailDraftResponse{} }

func (t *emailDraftResponse) Name() string { return "draft_response" }

func (t *emailDraftResponse) Description() string {
	return "Draft an email response for human review instead of sending it directly."
}

func (t *emailDraftResponse) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"subject": {"type": "string"},
			"body": {"type": "string"}
		},
		"required": ["subject", "body"]
	}`)
}

func (t *emailDraftResponse) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Body == "" {
		return Errorf("draft_response", "subject and body are required"), nil
	}
	return &Result{
		Content: "Draft saved for review",
		Action:  "draft_response",
		Status:  StatusPending,
		Data:    map[string]any{"subject": input.Subject, "body": input.Body},
	}, nil
}

// emailSendCampaign queues an outbound campaign.
type emailSendCampaign struct{}

func newEmailSendCampaign(_ *models.Connection, _ Deps) Tool { return &emailSendCampaign{} }

func (t *emailSendCampaign) Name() string { return "send_campaign" }

func (t *emailSendCampaign) Description() string {
	return "Queue an outbound email campaign to a named audience segment."
}

func (t *emailSendCampaign) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"segment": {"type": "string", "description": "Audience segment name"},
			"subject": {"type": "string"},
			"body": {"type": "string"}
		},
		"required": ["segment", "subject", "body"]
	}`)
}

func (t *emailSendCampaign) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Segment string `json:"segment"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Segment == "" || input.Body == "" {
		return Errorf("send_campaign", "segment, subject and body are required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("Campaign queued for segment %q", input.Segment),
		Action:  "send_campaign",
		Status:  StatusPending,
		Data:    map[string]any{"segment": input.Segment, "subject": input.Subject},
	}, nil
}

// emailExtractData pulls structured fields out of the email body.
type emailExtractData struct{}

func newEmailExtractData(_ *models.Connection, _ Deps) Tool { return &emailExtractData{} }

func (t *emailExtractData) Name() string { return "extract_data" }

func (t *emailExtractData) Description() string {
	return "Extract structured data fields (names, order numbers, dates, amounts) from the email."
}

func (t *emailExtractData) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"fields": {
				"type": "object",
				"description": "Field name to extracted value",
				"additionalProperties": {"type": "string"}
			}
		},
		"required": ["fields"]
	}`)
}

func (t *emailExtractData) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(args, &input); err != nil || len(input.Fields) == 0 {
		return Errorf("extract_data", "at least one extracted field is required"), nil
	}
	data := make(map[string]any, len(input.Fields))
	for k, v := range input.Fields {
		data[k] = v
	}
	return &Result{
		Content: fmt.Sprintf("Extracted %d fields", len(input.Fields)),
		Action:  "extract_data",
		Status:  StatusSuccess,
		Data:    data,
	}, nil
}
