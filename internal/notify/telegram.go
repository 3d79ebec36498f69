package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/observability"
)

// TelegramOptions configures a Telegram sink.
type TelegramOptions struct {
	Token  string
	ChatID string // numeric id or @channel
	// AdminChatID receives trade, error and system alerts. Default ChatID.
	AdminChatID string
	// APIEndpoint overrides the Bot API URL format, e.g. for a local server.
	APIEndpoint string
}

// Telegram sends alerts through the Bot API as HTML messages.
type Telegram struct {
	bot   *tgbotapi.BotAPI
	chat  string
	admin string
}

// NewTelegram creates a Telegram sink. It verifies the token with getMe.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if opts.Token == "" || opts.ChatID == "" {
		return nil, fmt.Errorf("telegram: token and chat id are required")
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.AdminChatID == "" {
		opts.AdminChatID = opts.ChatID
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(opts.Token, opts.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: bot, chat: opts.ChatID, admin: opts.AdminChatID}, nil
}

// Publish sends one alert. Coin alerts go to the main chat, the rest to the
// admin chat.
func (t *Telegram) Publish(ctx context.Context, a domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chat := t.admin
	if a.Kind == domain.AlertCoin {
		chat = t.chat
	}

	msg := newMessage(chat, Format(a))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := t.bot.Send(msg)
	observability.RecordAlert(string(a.Kind), err)
	if err != nil {
		return fmt.Errorf("telegram send %s: %w", a.Kind, err)
	}
	return nil
}

func newMessage(chat, text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(chat, text)
}
