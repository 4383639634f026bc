package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/abhinav155942/wobble/pkg/models"
)

// instagramAdapter handles Instagram Messaging webhooks, which share Meta's
// envelope and signature scheme with WhatsApp.
func instagramAdapter() *Adapter {
	return &Adapter{
		Channel:   models.ChannelInstagram,
		Verify:    verifyMetaSignature,
		Parse:     parseInstagramPayload,
		NewSender: newInstagramSender,
	}
}

func parseInstagramPayload(body []byte) ([]Inbound, error) {
	var payload struct {
		Entry []struct {
			Messaging []struct {
				Sender struct {
					ID string `json:"id"`
				} `json:"sender"`
				Message struct {
					Text   string `json:"text"`
					IsEcho bool   `json:"is_echo"`
				} `json:"message"`
			} `json:"messaging"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var out []Inbound
	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			// Echoes are our own outbound messages reflected back.
			if event.Message.IsEcho || event.Message.Text == "" || event.Sender.ID == "" {
				continue
			}
			out = append(out, Inbound{
				ExternalID: "instagram_" + event.Sender.ID,
				UserID:     event.Sender.ID,
				Text:       event.Message.Text,
				ReplyTo:    event.Sender.ID,
			})
		}
	}
	return out, nil
}

type instagramSender struct {
	accessToken string
	base        string
	http        *http.Client
}

func newInstagramSender(conn *models.Connection, deps Deps) Sender {
	return &instagramSender{
		accessToken: conn.Credential("access_token"),
		base:        graphAPIBase,
		http:        deps.httpClient(),
	}
}

func (s *instagramSender) Send(ctx context.Context, in Inbound, text string) error {
	payload := map[string]any{
		"recipient": map[string]string{"id": in.ReplyTo},
		"message":   map[string]string{"text": text},
	}
	return postGraph(ctx, s.http, s.base+"/me/messages", s.accessToken, payload)
}
