package channels

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

// whatsAppAdapter handles WhatsApp Business Cloud API webhooks. Inbound
// payloads can batch several messages per entry; each text message becomes
// its own turn.
func whatsAppAdapter() *Adapter {
	return &Adapter{
		Channel:   models.ChannelWhatsApp,
		Verify:    verifyMetaSignature,
		Parse:     parseWhatsAppPayload,
		NewSender: newWhatsAppSender,
	}
}

func parseWhatsAppPayload(body []byte) ([]Inbound, error) {
	var payload struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Metadata struct {
						PhoneNumberID string `json:"phone_number_id"`
					} `json:"metadata"`
					Messages []struct {
						From string `json:"from"`
						Type string `json:"type"`
						Text struct {
							Body string `json:"body"`
						} `json:"text"`
					} `json:"messages"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var out []Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			pnid := change.Value.Metadata.PhoneNumberID
			for _, msg := range change.Value.Messages {
				// Status updates and media messages have no text body.
				if msg.Type != "text" || msg.Text.Body == "" {
					continue
				}
				out = append(out, Inbound{
					ExternalID: fmt.Sprintf("whatsapp_%s_%s", pnid, msg.From),
					UserID:     msg.From,
					Text:       msg.Text.Body,
					ReplyTo:    msg.From,
				})
			}
		}
	}
	return out, nil
}

type whatsAppSender struct {
	accessToken   string
	phoneNumberID string
	base          string
	http          *http.Client
}

func newWhatsAppSender(conn *models.Connection, deps Deps) Sender {
	return &whatsAppSender{
		accessToken:   conn.Credential("access_token"),
		phoneNumberID: conn.Credential("phone_number_id"),
		base:          graphAPIBase,
		http:          deps.httpClient(),
	}
}

func (s *whatsAppSender) Send(ctx context.Context, in Inbound, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                in.ReplyTo,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	return postGraph(ctx, s.http, s.base+"/"+s.phoneNumberID+"/messages", s.accessToken, payload)
}

// postGraph sends one JSON POST to the Meta Graph API with bearer auth.
func postGraph(ctx context.Context, client *http.Client, url, token string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("graph api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph api status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
