package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/abhinav155942/wobble/pkg/models"
)

// emailAdapter handles inbound-parse webhooks of the kind transactional
// mail providers post when a message arrives: a JSON body with sender,
// subject and text. Replies go back out over SMTP.
func emailAdapter() *Adapter {
	return &Adapter{
		Channel:   models.ChannelEmail,
		Parse:     parseEmailPayload,
		NewSender: newEmailSender,
	}
}

func parseEmailPayload(body []byte) ([]Inbound, error) {
	var payload struct {
		From    string `json:"from"`
		Subject string `json:"subject"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.From == "" || strings.TrimSpace(payload.Text) == "" {
		return nil, nil
	}
	subject := payload.Subject
	if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	return []Inbound{{
		ExternalID: "email_" + strings.ToLower(payload.From),
		UserID:     strings.ToLower(payload.From),
		Text:       payload.Text,
		ReplyTo:    payload.From,
		Subject:    subject,
	}}, nil
}

type emailSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newEmailSender(conn *models.Connection, _ Deps) Sender {
	port := conn.Credential("smtp_port")
	if port == "" {
		port = "587"
	}
	from := conn.Credential("from_address")
	if from == "" {
		from = conn.Credential("smtp_username")
	}
	return &emailSender{
		host:     conn.Credential("smtp_host"),
		port:     port,
		username: conn.Credential("smtp_username"),
		password: conn.Credential("smtp_password"),
		from:     from,
		sendMail: smtp.SendMail,
	}
}

func (s *emailSender) Send(_ context.Context, in Inbound, text string) error {
	subject := in.Subject
	if subject == "" {
		subject = "Re: your message"
	}
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + in.ReplyTo,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		text,
	}, "\r\n")

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := s.sendMail(s.host+":"+s.port, auth, s.from, []string{in.ReplyTo}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
