package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/abhinav155942/wobble/pkg/models"
)

const youtubeAPIBase = "https://www.googleapis.com/youtube/v3"

// youTubeAdapter handles new-comment notifications relayed as JSON. The
// answer is posted as a threaded reply under the triggering comment.
func youTubeAdapter() *Adapter {
	return &Adapter{
		Channel:   models.ChannelYouTube,
		Parse:     parseYouTubePayload,
		NewSender: newYouTubeSender,
	}
}

func parseYouTubePayload(body []byte) ([]Inbound, error) {
	var payload struct {
		ChannelID       string `json:"channelId"`
		CommentID       string `json:"commentId"`
		AuthorChannelID string `json:"authorChannelId"`
		Text            string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.ChannelID == "" || payload.CommentID == "" || payload.Text == "" {
		return nil, nil
	}
	return []Inbound{{
		ExternalID: "youtube_" + payload.ChannelID,
		UserID:     payload.AuthorChannelID,
		Text:       payload.Text,
		ReplyTo:    payload.CommentID,
	}}, nil
}

type youTubeSender struct {
	apiKey string
	base   string
	http   *http.Client
}

func newYouTubeSender(conn *models.Connection, deps Deps) Sender {
	return &youTubeSender{
		apiKey: conn.Credential("api_key"),
		base:   youtubeAPIBase,
		http:   deps.httpClient(),
	}
}

func (s *youTubeSender) Send(ctx context.Context, in Inbound, text string) error {
	payload := map[string]any{
		"snippet": map[string]string{
			"parentId":     in.ReplyTo,
			"textOriginal": text,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	url := s.base + "/comments?part=snippet&key=" + s.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("youtube api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("youtube api status %d", resp.StatusCode)
	}
	return nil
}
