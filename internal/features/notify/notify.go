// Package notify отправляет участникам сообщения о новых уровнях,
// наградах и достижениях. Доставка не гарантируется: ошибки
// возвращаются вызывающему, который их только логирует.
package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Notifier — получатель уведомлений. userID — это Telegram user ID,
// поэтому сообщение уходит в личный чат с ботом.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Noop — уведомления выключены.
type Noop struct{}

func (Noop) Notify(context.Context, int64, string) error { return nil }

// Sender — часть telego.Bot, которой пользуется TelegramNotifier.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramNotifier отправляет уведомления через Telegram-бота.
type TelegramNotifier struct {
	bot Sender
}

// NewTelegramNotifier создаёт бота по токену.
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &TelegramNotifier{bot: bot}, nil
}

// NewTelegramNotifierWithSender создаёт уведомитель поверх готового отправителя.
func NewTelegramNotifierWithSender(bot Sender) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// Notify отправляет текст в личный чат пользователя.
func (n *TelegramNotifier) Notify(ctx context.Context, userID int64, text string) error {
	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(userID), text)); err != nil {
		return fmt.Errorf("ошибка отправки уведомления (user_id=%d): %w", userID, err)
	}
	log.WithField("user_id", userID).Debug("Уведомление отправлено")
	return nil
}
