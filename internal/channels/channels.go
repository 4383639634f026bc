// Package channels bridges platform webhooks to the orchestrator. Every
// channel follows the same shape: parse the platform payload, get or create
// the conversation keyed by platform identity, run a non-streaming turn, and
// relay the answer back out in size-limited chunks with retries. The per
// channel pieces plug into one generic adapter.
package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/abhinav155942/wobble/internal/agent"
	"github.com/abhinav155942/wobble/internal/channels/chunk"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/retry"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

const maxWebhookBody = 1 << 20

// Inbound is one normalized user message extracted from a webhook payload.
type Inbound struct {
	// ExternalID is the platform-scoped conversation key,
	// e.g. "telegram_12345".
	ExternalID string
	// UserID identifies the sender for memory scoping.
	UserID string
	// Text is the message content.
	Text string
	// ReplyTo is the platform address the answer goes back to (chat ID,
	// phone number, comment ID, email address).
	ReplyTo string
	// Subject carries the email subject line, empty elsewhere.
	Subject string
}

// Sender delivers one outbound chunk to the platform.
type Sender interface {
	Send(ctx context.Context, in Inbound, text string) error
}

// Runner produces one final answer for an inbound message.
type Runner interface {
	RunSync(ctx context.Context, req agent.Request) (*agent.SyncResult, error)
}

// Deps carries shared collaborators into channel senders.
type Deps struct {
	HTTPClient *http.Client
	Logger     *observability.Logger
	// Secrets are deployment-wide webhook credentials, used when an
	// agent's connection does not carry its own.
	Secrets Secrets
}

// Secrets holds fallback webhook verification credentials.
type Secrets struct {
	TelegramSecretToken string
	MetaAppSecret       string
	MetaVerifyToken     string
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Adapter is the per-channel plug-in: payload parsing, optional request
// verification, and the outbound client constructor.
type Adapter struct {
	Channel models.ChannelType

	// Verify authenticates the request before parsing. Nil skips
	// verification.
	Verify func(conn *models.Connection, r *http.Request, body []byte) error

	// Parse extracts zero or more inbound messages. Payloads with nothing
	// actionable (status callbacks, echoes, non-text updates) return an
	// empty slice, not an error.
	Parse func(body []byte) ([]Inbound, error)

	// NewSender builds the outbound client from the connection credentials.
	NewSender func(conn *models.Connection, deps Deps) Sender
}

// Hub routes webhook requests to channel adapters and drives the shared
// inbound flow.
type Hub struct {
	stores   storage.StoreSet
	runner   Runner
	deps     Deps
	adapters map[models.ChannelType]*Adapter
	logger   *observability.Logger
	metrics  *observability.Metrics
	retry    retry.Config
}

func NewHub(stores storage.StoreSet, runner Runner, deps Deps, logger *observability.Logger, metrics *observability.Metrics) *Hub {
	h := &Hub{
		stores:   stores,
		runner:   runner,
		deps:     deps,
		adapters: make(map[models.ChannelType]*Adapter),
		logger:   logger.WithFields("component", "channels"),
		metrics:  metrics,
		retry:    retry.DefaultConfig(),
	}
	for _, a := range []*Adapter{
		telegramAdapter(),
		whatsAppAdapter(),
		instagramAdapter(),
		emailAdapter(),
		youTubeAdapter(),
	} {
		h.adapters[a.Channel] = a
	}
	return h
}

// Channels lists the registered channel types.
func (h *Hub) Channels() []models.ChannelType {
	out := make([]models.ChannelType, 0, len(h.adapters))
	for ch := range h.adapters {
		out = append(out, ch)
	}
	return out
}

// Handle processes one inbound webhook POST. Platforms retry aggressively on
// non-2xx, so every outcome answers 200; failures are logged instead.
func (h *Hub) Handle(channel models.ChannelType, agentID string, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer w.WriteHeader(http.StatusOK)

	adapter, ok := h.adapters[channel]
	if !ok {
		h.logger.Warn(ctx, "webhook for unknown channel", "channel", string(channel))
		return
	}

	ag, err := h.stores.Agents.Get(ctx, agentID)
	if err != nil {
		h.logger.Warn(ctx, "webhook for unknown agent", "agent_id", agentID, "channel", string(channel))
		return
	}
	conn := ag.ConnectionFor(channel)
	if conn == nil || !conn.Enabled {
		h.logger.Warn(ctx, "webhook for disabled channel", "agent_id", agentID, "channel", string(channel))
		return
	}
	conn = h.withFallbackSecrets(conn)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn(ctx, "webhook body read failed", "channel", string(channel), "error", err)
		return
	}

	if adapter.Verify != nil {
		if err := adapter.Verify(conn, r, body); err != nil {
			h.logger.Warn(ctx, "webhook verification failed", "channel", string(channel), "error", err)
			if h.metrics != nil {
				h.metrics.RecordError("channels", "verification")
			}
			return
		}
	}

	inbounds, err := adapter.Parse(body)
	if err != nil {
		h.logger.Warn(ctx, "webhook payload unparseable", "channel", string(channel), "error", err)
		return
	}

	for _, in := range inbounds {
		if in.Text == "" {
			continue
		}
		h.process(ctx, adapter, ag, conn, in)
	}
}

// HandleVerify answers Meta's webhook subscription handshake: echo
// hub.challenge when hub.verify_token matches the connection's token.
func (h *Hub) HandleVerify(channel models.ChannelType, agentID string, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	ag, err := h.stores.Agents.Get(ctx, agentID)
	if err != nil {
		http.Error(w, "unknown agent", http.StatusForbidden)
		return
	}
	conn := ag.ConnectionFor(channel)
	if conn == nil {
		http.Error(w, "channel not configured", http.StatusForbidden)
		return
	}
	conn = h.withFallbackSecrets(conn)

	token := conn.Credential("verify_token")
	if q.Get("hub.mode") != "subscribe" || token == "" ||
		subtle.ConstantTimeCompare([]byte(q.Get("hub.verify_token")), []byte(token)) != 1 {
		h.logger.Warn(ctx, "webhook verification handshake rejected", "channel", string(channel))
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	fmt.Fprint(w, q.Get("hub.challenge"))
}

func (h *Hub) process(ctx context.Context, adapter *Adapter, ag *models.Agent, conn *models.Connection, in Inbound) {
	if h.metrics != nil {
		h.metrics.MessageReceived(string(adapter.Channel), "inbound")
	}

	conv, err := h.stores.Conversations.GetOrCreate(ctx, &models.Conversation{
		ID:         uuid.NewString(),
		AgentID:    ag.ID,
		UserID:     in.UserID,
		Channel:    adapter.Channel,
		ExternalID: in.ExternalID,
	})
	if err != nil {
		h.logger.Error(ctx, "conversation lookup failed", "external_id", in.ExternalID, "error", err)
		return
	}

	res, err := h.runner.RunSync(ctx, agent.Request{
		AgentID:        ag.ID,
		ConversationID: conv.ID,
		Channel:        adapter.Channel,
		UserID:         in.UserID,
		Content:        in.Text,
	})
	if err != nil {
		h.logger.Error(ctx, "turn failed", "conversation_id", conv.ID, "error", err)
		return
	}
	if res.Reply == "" {
		return
	}

	sender := adapter.NewSender(conn, h.deps)
	if err := h.SendChunked(ctx, adapter.Channel, sender, in, res.Reply); err != nil {
		h.logger.Error(ctx, "outbound send failed", "conversation_id", conv.ID, "error", err)
	}
}

// SendChunked splits text to the channel's size limit and delivers the
// chunks in order, retrying each send up to three times with doubling
// backoff. A chunk that exhausts its retries aborts the remainder so the
// peer never sees a gap in the middle of a message.
func (h *Hub) SendChunked(ctx context.Context, channel models.ChannelType, sender Sender, in Inbound, text string) error {
	for _, piece := range chunk.ForChannel(text, channel) {
		piece := piece
		result := retry.Do(ctx, h.retry, func() error {
			return sender.Send(ctx, in, piece)
		})
		status := "ok"
		if result.Err != nil {
			status = "error"
		}
		if h.metrics != nil {
			h.metrics.RecordWebhookDelivery(string(channel), status)
		}
		if result.Err != nil {
			return fmt.Errorf("send chunk after %d attempts: %w", result.Attempts, result.Err)
		}
		if h.metrics != nil {
			h.metrics.MessageSent(string(channel))
		}
	}
	return nil
}

// withFallbackSecrets copies the connection, filling verification
// credentials from the deployment-wide secrets where the agent has none.
func (h *Hub) withFallbackSecrets(conn *models.Connection) *models.Connection {
	fallbacks := map[string]string{
		"webhook_secret": h.deps.Secrets.TelegramSecretToken,
		"app_secret":     h.deps.Secrets.MetaAppSecret,
		"verify_token":   h.deps.Secrets.MetaVerifyToken,
	}
	out := *conn
	out.Credentials = make(map[string]string, len(conn.Credentials)+len(fallbacks))
	for k, v := range conn.Credentials {
		out.Credentials[k] = v
	}
	for k, v := range fallbacks {
		if v != "" && out.Credentials[k] == "" {
			out.Credentials[k] = v
		}
	}
	return &out
}

// verifyMetaSignature checks Meta's X-Hub-Signature-256 header, an HMAC
// SHA-256 of the raw body keyed by the app secret. Connections without an
// app_secret credential skip the check.
func verifyMetaSignature(conn *models.Connection, r *http.Request, body []byte) error {
	secret := conn.Credential("app_secret")
	if secret == "" {
		return nil
	}
	header := r.Header.Get("X-Hub-Signature-256")
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return fmt.Errorf("missing or malformed signature header")
	}
	want, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
