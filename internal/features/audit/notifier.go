package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"serotonyl.ru/engagement-engine/internal/common"
)

// maxAlertLines — сколько расхождений перечислять в одном сообщении.
const maxAlertLines = 10

// messageSender — часть telego.Bot, которая нужна оповещению.
type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramNotifier отправляет отчёт о расхождениях в чат операторов.
type TelegramNotifier struct {
	bot    messageSender
	chatID int64
}

// NewTelegramNotifier создаёт бота по токену.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// NotifyDrift реализует Notifier.
func (n *TelegramNotifier) NotifyDrift(ctx context.Context, report *Report) error {
	_, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), FormatReport(report)))
	if err != nil {
		return fmt.Errorf("ошибка отправки оповещения: %w", err)
	}
	return nil
}

// FormatReport — текст оповещения.
//
// Пример:
//
//	⚠️ Сверка счётчиков: 2 расхождения (просмотрено 1 024)
//	• c1 likes: 5 → 3
//	• c7 views: 0 → 1
func FormatReport(r *Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ Сверка счётчиков: %d %s (просмотрено %s)\n",
		len(r.Drifts), common.PluralizeDrifts(len(r.Drifts)), common.FormatNumber(int64(r.Scanned)))

	for i, d := range r.Drifts {
		if i == maxAlertLines {
			rest := len(r.Drifts) - maxAlertLines
			fmt.Fprintf(&sb, "… и ещё %d %s\n", rest, common.PluralizeDrifts(rest))
			break
		}
		fmt.Fprintf(&sb, "• %s %s: %d → %d\n", d.ContentID, d.Kind.Column(), d.StoredValue, d.ActualValue)
	}
	return strings.TrimRight(sb.String(), "\n")
}
