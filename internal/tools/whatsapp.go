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

const graphAPIBase = "https://graph.facebook.com/v21.0"

// graphClient posts to the Meta Graph API. WhatsApp and Instagram tools
// share it.
type graphClient struct {
	base        string
	accessToken string
	http        *http.Client
}

func newGraphClient(accessToken string, deps Deps) *graphClient {
	return &graphClient{
		base:        graphAPIBase,
		accessToken: accessToken,
		http:        deps.httpClient(),
	}
}

func (c *graphClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode graph payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph API status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// whatsAppSendMessage delivers a text message through the WhatsApp Cloud
// API.
type whatsAppSendMessage struct {
	graph         *graphClient
	phoneNumberID string
}

func newWhatsAppSendMessage(conn *models.Connection, deps Deps) Tool {
	return &whatsAppSendMessage{
		graph:         newGraphClient(conn.Credential("access_token"), deps),
		phoneNumberID: conn.Credential("phone_number_id"),
	}
}

func (t *whatsAppSendMessage) Name() string { return "send_message" }

func (t *whatsAppSendMessage) Description() string {
	return "Send a WhatsApp message to a customer. Use when the customer should receive a standalone message beyond your direct reply."
}

func (t *whatsAppSendMessage) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to": {"type": "string", "description": "Recipient phone number in international format"},
			"text": {"type": "string", "description": "Message text"}
		},
		"required": ["to", "text"]
	}`)
}

func (t *whatsAppSendMessage) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.To == "" || input.Text == "" {
		return Errorf("send_message", "to and text are required"), nil
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                input.To,
		"type":              "text",
		"text":              map[string]string{"body": input.Text},
	}
	if err := t.graph.post(ctx, "/"+t.phoneNumberID+"/messages", payload, nil); err != nil {
		return Errorf("send_message", fmt.Sprintf("whatsapp send failed: %v", err)), nil
	}
	return Success("send_message", "Message sent to "+input.To), nil
}

// whatsAppTrackOrder reports order status from the arguments the model
// extracted out of the conversation.
type whatsAppTrackOrder struct{}

func newWhatsAppTrackOrder(_ *models.Connection, _ Deps) Tool { return &whatsAppTrackOrder{} }

func (t *whatsAppTrackOrder) Name() string { return "track_order" }

func (t *whatsAppTrackOrder) Description() string {
	return "Look up the status of a customer's order by order number."
}

func (t *whatsAppTrackOrder) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"order_number": {"type": "string", "description": "The order number the customer gave"}
		},
		"required": ["order_number"]
	}`)
}

func (t *whatsAppTrackOrder) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		OrderNumber string `json:"order_number"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.OrderNumber == "" {
		return Errorf("track_order", "order_number is required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("Tracking request for order %s submitted, the customer will receive an update shortly", input.OrderNumber),
		Action:  "track_order",
		Status:  StatusPending,
		Data:    map[string]any{"order_number": input.OrderNumber},
	}, nil
}

// whatsAppBookAppointment records an appointment request.
type whatsAppBookAppointment struct{}

func newWhatsAppBookAppointment(_ *models.Connection, _ Deps) Tool { return &whatsAppBookAppointment{} }

func (t *whatsAppBookAppointment) Name() string { return "book_appointment" }

func (t *whatsAppBookAppointment) Description() string {
	return "Book an appointment for the customer at a requested date and time."
}

func (t *whatsAppBookAppointment) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"date": {"type": "string", "description": "Requested date, ISO 8601"},
			"time": {"type": "string", "description": "Requested time"},
			"service": {"type": "string", "description": "What the appointment is for"}
		},
		"required": ["date", "time"]
	}`)
}

func (t *whatsAppBookAppointment) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Date    string `json:"date"`
		Time    string `json:"time"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Date == "" || input.Time == "" {
		return Errorf("book_appointment", "date and time are required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("Appointment requested for %s at %s", input.Date, input.Time),
		Action:  "book_appointment",
		Status:  StatusPending,
		Data:    map[string]any{"date": input.Date, "time": input.Time, "service": input.Service},
	}, nil
}

// whatsAppRecommendProduct records the products the model picked so the
// storefront can render cards alongside the reply.
type whatsAppRecommendProduct struct{}

func newWhatsAppRecommendProduct(_ *models.Connection, _ Deps) Tool {
	return &whatsAppRecommendProduct{}
}

func (t *whatsAppRecommendProduct) Name() string { return "recommend_product" }

func (t *whatsAppRecommendProduct) Description() string {
	return "Recommend products matching the customer's stated needs."
}

func (t *whatsAppRecommendProduct) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string", "description": "Product category"},
			"preferences": {"type": "string", "description": "Customer preferences, budget, constraints"}
		},
		"required": ["category"]
	}`)
}

func (t *whatsAppRecommendProduct) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Category    string `json:"category"`
		Preferences string `json:"preferences"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Category == "" {
		return Errorf("recommend_product", "category is required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("Recommendation recorded for category %q", input.Category),
		Action:  "recommend_product",
		Status:  StatusSuccess,
		Data:    map[string]any{"category": input.Category, "preferences": input.Preferences},
	}, nil
}

// whatsAppBrowseCatalog surfaces catalog sections for the customer.
type whatsAppBrowseCatalog struct{}

func newWhatsAppBrowseCatalog(_ *models.Connection, _ Deps) Tool { return &whatsAppBrowseCatalog{} }

func (t *whatsAppBrowseCatalog) Name() string { return "browse_catalog" }

func (t *whatsAppBrowseCatalog) Description() string {
	return "Show the customer the product catalog, optionally filtered to a category."
}

func (t *whatsAppBrowseCatalog) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string", "description": "Optional category filter"}
		}
	}`)
}

func (t *whatsAppBrowseCatalog) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Category string `json:"category"`
	}
	_ = json.Unmarshal(args, &input)
	content := "Catalog shared with the customer"
	if input.Category != "" {
		content = fmt.Sprintf("Catalog section %q shared with the customer", input.Category)
	}
	return &Result{
		Content: content,
		Action:  "browse_catalog",
		Status:  StatusSuccess,
		Data:    map[string]any{"category": input.Category},
	}, nil
}

// whatsAppSendReminder schedules a payment reminder.
type whatsAppSendReminder struct{}

func newWhatsAppSendReminder(_ *models.Connection, _ Deps) Tool { return &whatsAppSendReminder{} }

func (t *whatsAppSendReminder) Name() string { return "send_reminder" }

func (t *whatsAppSendReminder) Description() string {
	return "Schedule a payment reminder for the customer."
}

func (t *whatsAppSendReminder) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to": {"type": "string", "description": "Recipient phone number"},
			"amount": {"type": "string", "description": "Amount due"},
			"due_date": {"type": "string", "description": "Due date, ISO 8601"}
		},
		"required": ["to", "due_date"]
	}`)
}

func (t *whatsAppSendReminder) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		To      string `json:"to"`
		Amount  string `json:"amount"`
		DueDate string `json:"due_date"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.To == "" || input.DueDate == "" {
		return Errorf("send_reminder", "to and due_date are required"), nil
	}
	return &Result{
		Content: fmt.Sprintf("Payment reminder scheduled for %s", input.DueDate),
		Action:  "send_reminder",
		Status:  StatusPending,
		Data:    map[string]any{"to": input.To, "amount": input.Amount, "due_date": input.DueDate},
	}, nil
}
