package channels

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/abhinav155942/wobble/pkg/models"
)

func TestParseWhatsAppPayload(t *testing.T) {
	payload := `{"entry":[{"changes":[{"value":{
		"metadata":{"phone_number_id":"555"},
		"messages":[
			{"from":"15550001","type":"text","text":{"body":"where is my order"}},
			{"from":"15550002","type":"image"}
		]}}]}]}`

	got, err := parseWhatsAppPayload([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("inbounds = %d, image message must be skipped", len(got))
	}
	in := got[0]
	if in.ExternalID != "whatsapp_555_15550001" || in.UserID != "15550001" || in.ReplyTo != "15550001" {
		t.Errorf("inbound = %+v", in)
	}
	if in.Text != "where is my order" {
		t.Errorf("text = %q", in.Text)
	}
}

func TestParseWhatsAppStatusCallback(t *testing.T) {
	payload := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"x","status":"delivered"}]}}]}]}`
	got, err := parseWhatsAppPayload([]byte(payload))
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestParseInstagramPayload(t *testing.T) {
	payload := `{"entry":[{"messaging":[
		{"sender":{"id":"ig9"},"message":{"text":"is this in stock"}},
		{"sender":{"id":"page"},"message":{"text":"yes","is_echo":true}}
	]}]}`

	got, err := parseInstagramPayload([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("inbounds = %d, echo must be skipped", len(got))
	}
	if got[0].ExternalID != "instagram_ig9" || got[0].Text != "is this in stock" {
		t.Errorf("inbound = %+v", got[0])
	}
}

func TestParseEmailPayload(t *testing.T) {
	got, err := parseEmailPayload([]byte(`{"from":"Ana@Example.com","subject":"Refund","text":"Please refund order 7."}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 {
		t.Fatal("expected one inbound")
	}
	in := got[0]
	if in.ExternalID != "email_ana@example.com" {
		t.Errorf("external ID = %q, address must be lowercased", in.ExternalID)
	}
	if in.Subject != "Re: Refund" {
		t.Errorf("subject = %q", in.Subject)
	}
	if in.ReplyTo != "Ana@Example.com" {
		t.Errorf("reply address = %q", in.ReplyTo)
	}
}

func TestParseEmailKeepsExistingReplyPrefix(t *testing.T) {
	got, _ := parseEmailPayload([]byte(`{"from":"a@b.c","subject":"RE: Refund","text":"hi"}`))
	if got[0].Subject != "RE: Refund" {
		t.Errorf("subject = %q", got[0].Subject)
	}
}

func TestParseYouTubePayload(t *testing.T) {
	got, err := parseYouTubePayload([]byte(`{"channelId":"UC1","commentId":"cm7","authorChannelId":"UC2","text":"great video, how do I export?"}`))
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, %v", got, err)
	}
	in := got[0]
	if in.ExternalID != "youtube_UC1" || in.ReplyTo != "cm7" || in.UserID != "UC2" {
		t.Errorf("inbound = %+v", in)
	}
}

func TestEmailSenderBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	conn := &models.Connection{Credentials: map[string]string{
		"smtp_host":     "mail.example.com",
		"smtp_username": "agent@example.com",
		"smtp_password": "pw",
	}}
	sender := newEmailSender(conn, Deps{}).(*emailSender)
	sender.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	in := Inbound{ReplyTo: "ana@example.com", Subject: "Re: Refund"}
	if err := sender.Send(context.Background(), in, "Refund issued."); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAddr != "mail.example.com:587" {
		t.Errorf("addr = %q, default port must apply", gotAddr)
	}
	if gotFrom != "agent@example.com" {
		t.Errorf("from = %q, must fall back to the SMTP username", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ana@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{"Subject: Re: Refund", "To: ana@example.com", "\r\n\r\nRefund issued."} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestHubRegistersAllChannels(t *testing.T) {
	hub, _ := newTestHub(t, &fakeRunner{}, telegramConn())
	got := map[models.ChannelType]bool{}
	for _, ch := range hub.Channels() {
		got[ch] = true
	}
	for _, want := range []models.ChannelType{
		models.ChannelTelegram, models.ChannelWhatsApp, models.ChannelInstagram,
		models.ChannelEmail, models.ChannelYouTube,
	} {
		if !got[want] {
			t.Errorf("channel %s not registered", want)
		}
	}
}
