package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"

	"github.com/abhinav155942/wobble/pkg/models"
)

// telegramAdapter handles Telegram Bot API webhook updates. Verification
// uses the secret token Telegram echoes back in a header when the webhook
// was registered with one.
func telegramAdapter() *Adapter {
	return &Adapter{
		Channel: models.ChannelTelegram,
		Verify: func(conn *models.Connection, r *http.Request, _ []byte) error {
			secret := conn.Credential("webhook_secret")
			if secret == "" {
				return nil
			}
			got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return fmt.Errorf("secret token mismatch")
			}
			return nil
		},
		Parse:     parseTelegramUpdate,
		NewSender: newTelegramSender,
	}
}

func parseTelegramUpdate(body []byte) ([]Inbound, error) {
	var update struct {
		Message struct {
			Text string `json:"text"`
			From struct {
				ID int64 `json:"id"`
			} `json:"from"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	// Edits, joins, stickers and other non-text updates carry no text.
	if update.Message.Text == "" || update.Message.Chat.ID == 0 {
		return nil, nil
	}
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	return []Inbound{{
		ExternalID: "telegram_" + chatID,
		UserID:     strconv.FormatInt(update.Message.From.ID, 10),
		Text:       update.Message.Text,
		ReplyTo:    chatID,
	}}, nil
}

type telegramSender struct {
	token string

	once sync.Once
	bot  *bot.Bot
	err  error
}

func newTelegramSender(conn *models.Connection, _ Deps) Sender {
	return &telegramSender{token: conn.Credential("bot_token")}
}

func (s *telegramSender) Send(ctx context.Context, in Inbound, text string) error {
	s.once.Do(func() {
		s.bot, s.err = bot.New(s.token, bot.WithSkipGetMe())
	})
	if s.err != nil {
		return fmt.Errorf("telegram client: %w", s.err)
	}
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: in.ReplyTo,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
