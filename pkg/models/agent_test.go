package models

import (
	"testing"
)

func TestConnectionCredential(t *testing.T) {
	c := Connection{Credentials: map[string]string{"bot_token": "tok"}}
	if got := c.Credential("bot_token"); got != "tok" {
		t.Errorf("Credential(bot_token) = %q, want %q", got, "tok")
	}
	if got := c.Credential("missing"); got != "" {
		t.Errorf("Credential(missing) = %q, want empty", got)
	}

	var empty Connection
	if got := empty.Credential("bot_token"); got != "" {
		t.Errorf("Credential on nil map = %q, want empty", got)
	}
}

func TestConnectionUseCase(t *testing.T) {
	c := Connection{UseCases: map[string]bool{"orderTracking": true, "faqSupport": false}}
	if !c.UseCase("orderTracking") {
		t.Error("UseCase(orderTracking) = false, want true")
	}
	if c.UseCase("faqSupport") {
		t.Error("UseCase(faqSupport) = true, want false")
	}
	if c.UseCase("unknown") {
		t.Error("UseCase(unknown) = true, want false")
	}
}

func TestAgentConnectionFor(t *testing.T) {
	a := &Agent{Connections: []Connection{
		{Channel: ChannelTelegram, Enabled: true},
		{Channel: ChannelWhatsApp, Enabled: false},
	}}

	conn := a.ConnectionFor(ChannelWhatsApp)
	if conn == nil {
		t.Fatal("ConnectionFor(whatsapp) = nil")
	}
	if conn.Enabled {
		t.Error("whatsapp connection should be disabled")
	}
	if a.ConnectionFor(ChannelEmail) != nil {
		t.Error("ConnectionFor(email) should be nil")
	}
}
