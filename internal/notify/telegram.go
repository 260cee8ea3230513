package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "alarmkit/pkg/logx"
)

// TelegramConfig configures the telegram delivery channel. ThreadID is
// the optional forum topic inside the target chat.
type TelegramConfig struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
}

// Telegram delivers notifications to a fixed chat. It only sends; it
// never polls for updates.
type Telegram struct {
	bot      *tele.Bot
	chatID   int64
	threadID int
	log      logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, chatID: cfg.ChatID, threadID: cfg.ThreadID, log: log}, nil
}

const telegramTextLimit = 4000

func (t *Telegram) Send(ctx context.Context, text string, _ Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if len([]rune(text)) > telegramTextLimit {
		text = string([]rune(text)[:telegramTextLimit])
	}
	chat := &tele.Chat{ID: t.chatID}
	_, err := t.bot.Send(chat, text, &tele.SendOptions{ThreadID: t.threadID})
	return err
}
