// Package alert notifies the bot owner about persistent failures.
package alert

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Alerter sends a short text to the bot owner.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers alerts as Telegram messages to one chat.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    zerolog.Logger
}

// NewTelegram creates a Telegram alerter for the owner chat.
func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// Alert sends text to the owner chat.
func (t *Telegram) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, "Toonbot: "+text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	t.log.Info().Int64("chat_id", t.chatID).Msg("owner alerted")
	return nil
}

// Nop discards alerts.
type Nop struct{}

// Alert implements Alerter.
func (Nop) Alert(context.Context, string) error { return nil }
