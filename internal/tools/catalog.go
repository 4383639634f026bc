package tools

import (
	"net/http"

	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/pkg/models"
)

// Deps carries what tool constructors need beyond the connection itself.
type Deps struct {
	HTTPClient *http.Client
	Logger     *observability.Logger
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

// toolSpec maps one use-case flag to a tool constructor.
type toolSpec struct {
	flag  string
	build func(conn *models.Connection, deps Deps) Tool
}

// requiredCredentials lists the credential keys a channel's tools cannot
// work without.
var requiredCredentials = map[models.ChannelType][]string{
	models.ChannelTelegram:  {"bot_token"},
	models.ChannelWhatsApp:  {"access_token", "phone_number_id"},
	models.ChannelInstagram: {"access_token"},
	models.ChannelEmail:     {"smtp_host", "smtp_username", "smtp_password"},
	models.ChannelYouTube:   {"api_key"},
}

var catalogByChannel = map[models.ChannelType][]toolSpec{
	models.ChannelTelegram: {
		{"autoReply", newTelegramSendMessage},
		{"groupModeration", newTelegramModerateGroup},
		{"customCommands", newTelegramExecuteCommand},
		{"scheduledMessages", newTelegramScheduleMessage},
		{"faqSupport", newTelegramAnswerFAQ},
	},
	models.ChannelWhatsApp: {
		{"supportAgent", newWhatsAppSendMessage},
		{"orderTracking", newWhatsAppTrackOrder},
		{"appointmentBooking", newWhatsAppBookAppointment},
		{"productRecommendations", newWhatsAppRecommendProduct},
		{"catalogBrowsing", newWhatsAppBrowseCatalog},
		{"paymentReminders", newWhatsAppSendReminder},
	},
	models.ChannelInstagram: {
		{"autoReplyDMs", newInstagramReplyDM},
		{"autoReplyComments", newInstagramReplyComment},
		{"contentSuggestions", newInstagramSuggestContent},
		{"leadQualification", newInstagramQualifyLead},
		{"keywordTriggers", newInstagramKeywordTrigger},
	},
	models.ChannelEmail: {
		{"autoReply", newEmailSendReply},
		{"categorize", newEmailCategorize},
		{"draftResponses", newEmailDraftResponse},
		{"outboundCampaigns", newEmailSendCampaign},
		{"extractData", newEmailExtractData},
	},
	models.ChannelYouTube: {
		{"analyzePerformance", newYouTubeAnalyzePerformance},
		{"autoModerate", newYouTubeModerateComment},
		{"generateMetadata", newYouTubeGenerateMetadata},
		{"autoReply", newYouTubeReplyComment},
		{"detectSpam", newYouTubeDetectSpam},
	},
}

// ForAgent assembles the tool catalog for one turn from the agent's
// connections alone; the inbound channel plays no part. A tool is offered
// only when its connection is enabled, the required credentials are
// present, and the owning use-case flag is on. The research tool hangs
// off its own web_search connection gated by instantAnswers.
func ForAgent(agent *models.Agent, deps Deps) []Tool {
	var catalog []Tool
	for i := range agent.Connections {
		conn := &agent.Connections[i]
		if !conn.Enabled {
			continue
		}

		if conn.Channel == models.ChannelWebSearch {
			if conn.UseCase("instantAnswers") {
				catalog = append(catalog, newWebSearch(deps))
			}
			continue
		}

		if !hasCredentials(conn, requiredCredentials[conn.Channel]) {
			continue
		}
		for _, spec := range catalogByChannel[conn.Channel] {
			if conn.UseCase(spec.flag) {
				catalog = append(catalog, spec.build(conn, deps))
			}
		}
	}
	return catalog
}

func hasCredentials(conn *models.Connection, keys []string) bool {
	for _, key := range keys {
		if conn.Credential(key) == "" {
			return false
		}
	}
	return true
}
