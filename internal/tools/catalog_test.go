package tools

import (
	"sort"
	"testing"

	"github.com/abhinav155942/wobble/pkg/models"
)

func telegramAgent(enabled bool, creds map[string]string, flags map[string]bool) *models.Agent {
	return &models.Agent{
		ID: "agent-1",
		Connections: []models.Connection{{
			Channel:     models.ChannelTelegram,
			Enabled:     enabled,
			Credentials: creds,
			UseCases:    flags,
		}},
	}
}

func toolNames(catalog []Tool) []string {
	names := make([]string, len(catalog))
	for i, tool := range catalog {
		names[i] = tool.Name()
	}
	sort.Strings(names)
	return names
}

func TestForAgentGatesOnUseCaseFlags(t *testing.T) {
	agent := telegramAgent(true,
		map[string]string{"bot_token": "123456789:AAFakeTokenForCatalogTestingPurposes"},
		map[string]bool{"autoReply": true, "faqSupport": true, "groupModeration": false},
	)

	names := toolNames(ForAgent(agent, Deps{}))
	want := []string{"answer_faq", "send_message"}
	if len(names) != len(want) {
		t.Fatalf("catalog = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("catalog = %v, want %v", names, want)
		}
	}
}

func TestForAgentRequiresEnabledConnection(t *testing.T) {
	agent := telegramAgent(false,
		map[string]string{"bot_token": "t"},
		map[string]bool{"autoReply": true},
	)
	if catalog := ForAgent(agent, Deps{}); len(catalog) != 0 {
		t.Errorf("disabled connection produced %v", toolNames(catalog))
	}
}

func TestForAgentRequiresCredentials(t *testing.T) {
	agent := telegramAgent(true, nil, map[string]bool{"autoReply": true})
	if catalog := ForAgent(agent, Deps{}); len(catalog) != 0 {
		t.Errorf("missing credentials produced %v", toolNames(catalog))
	}
}

func TestForAgentWebSearchConnection(t *testing.T) {
	agent := &models.Agent{
		ID: "agent-1",
		Connections: []models.Connection{{
			Channel:  models.ChannelWebSearch,
			Enabled:  true,
			UseCases: map[string]bool{"instantAnswers": true},
		}},
	}

	names := toolNames(ForAgent(agent, Deps{}))
	if len(names) != 1 || names[0] != "web_search" {
		t.Errorf("catalog = %v, want only web_search", names)
	}
}

func TestForAgentWebSearchNeedsItsOwnGate(t *testing.T) {
	// No web_search connection at all, and one whose instantAnswers flag
	// is off. Neither yields the research tool.
	for _, agent := range []*models.Agent{
		{ID: "agent-1"},
		{ID: "agent-1", Connections: []models.Connection{{
			Channel: models.ChannelWebSearch,
			Enabled: true,
		}}},
		{ID: "agent-1", Connections: []models.Connection{{
			Channel:  models.ChannelWebSearch,
			UseCases: map[string]bool{"instantAnswers": true},
		}}},
	} {
		if catalog := ForAgent(agent, Deps{}); len(catalog) != 0 {
			t.Errorf("catalog = %v, want empty", toolNames(catalog))
		}
	}
}

func TestForAgentIgnoresInboundChannel(t *testing.T) {
	// The catalog is a function of the connections alone, so a whatsapp
	// connection contributes its tools to turns arriving from any channel.
	agent := &models.Agent{
		ID: "agent-1",
		Connections: []models.Connection{{
			Channel: models.ChannelWhatsApp,
			Enabled: true,
			Credentials: map[string]string{
				"access_token":    "tok",
				"phone_number_id": "555",
			},
			UseCases: map[string]bool{"orderTracking": true},
		}},
	}

	names := toolNames(ForAgent(agent, Deps{}))
	if len(names) != 1 || names[0] != "track_order" {
		t.Errorf("catalog = %v, want [track_order]", names)
	}
}

func TestForAgentMergesConnections(t *testing.T) {
	agent := &models.Agent{
		ID: "agent-1",
		Connections: []models.Connection{
			{
				Channel: models.ChannelWhatsApp,
				Enabled: true,
				Credentials: map[string]string{
					"access_token":    "tok",
					"phone_number_id": "555",
				},
				UseCases: map[string]bool{
					"supportAgent":  true,
					"orderTracking": true,
				},
			},
			{
				Channel:  models.ChannelWebSearch,
				Enabled:  true,
				UseCases: map[string]bool{"instantAnswers": true},
			},
			{
				Channel:     models.ChannelTelegram,
				Enabled:     false,
				Credentials: map[string]string{"bot_token": "t"},
				UseCases:    map[string]bool{"autoReply": true},
			},
		},
	}

	names := toolNames(ForAgent(agent, Deps{}))
	want := []string{"send_message", "track_order", "web_search"}
	if len(names) != len(want) {
		t.Fatalf("catalog = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("catalog = %v, want %v", names, want)
		}
	}
}
