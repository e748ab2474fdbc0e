package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mpolivanov/lavagate/internal/pkg/lifecycle"
	"github.com/mpolivanov/lavagate/internal/pkg/period"
)

// Reply-keyboard button labels. Incoming text messages matching a label are
// routed the same way as the corresponding command.
const (
	btnSubscribe = "💳 Оформить подписку"
	btnStatus    = "ℹ️ Моя подписка"
	btnCancel    = "❌ Отменить подписку"
)

const (
	msgWelcome = "Привет! Это бот закрытого канала.\n\n" +
		"Здесь можно оформить подписку, проверить её статус или отключить автопродление. Выберите действие на клавиатуре ниже."
	msgAlreadyActive = "У вас уже есть активная подписка до %s. Продление произойдёт автоматически."
	msgChoosePlan    = "Выберите срок подписки:"
	msgPaymentLink   = "Ссылка для оплаты (действует ограниченное время):"
	msgNoOfferings   = "Не удалось загрузить тарифы. Попробуйте позже."
	msgTryLater      = "Что-то пошло не так. Попробуйте позже."
	msgNothingCancel = "У вас нет активной подписки, отменять нечего."
	msgCancelled     = "Автопродление отключено. Доступ к каналу сохранится до %s."
	msgUnknown       = "Не понимаю. Воспользуйтесь клавиатурой или командами /subscribe, /status, /cancel."
	msgRejoin        = "\n\nВы сейчас не состоите в канале. Ссылка для входа: %s"
)

// mainKeyboard is the persistent reply keyboard shown after /start.
func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSubscribe)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStatus),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// periodTitles maps a periodicity code to its button caption.
var periodTitles = map[string]string{
	period.Monthly:    "1 месяц",
	period.Quarterly:  "3 месяца",
	period.Semiannual: "6 месяцев",
	period.Annual:     "1 год",
}

// planLabel renders one price option as a button caption.
func planLabel(periodicity string, amount float64, currency string) string {
	title, ok := periodTitles[periodicity]
	if !ok {
		title = periodicity
	}
	return fmt.Sprintf("%s — %.0f %s", title, amount, currencySign(currency))
}

func currencySign(currency string) string {
	if currency == "RUB" {
		return "₽"
	}
	return currency
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "неизвестно"
	}
	return t.Format("02.01.2006")
}

// renderStatus builds the /status answer for an evaluation.
func renderStatus(ev lifecycle.Evaluation) string {
	switch ev.Status {
	case lifecycle.StatusActive:
		text := fmt.Sprintf("✅ Подписка активна до %s.", formatDate(ev.ExpiresAt))
		if ev.ProductTitle != "" {
			text += fmt.Sprintf("\nТариф: %s", ev.ProductTitle)
		}
		text += "\nАвтопродление включено."
		return text
	case lifecycle.StatusCancelled:
		return fmt.Sprintf("⏳ Автопродление отключено. Доступ сохранится до %s.", formatDate(ev.ExpiresAt))
	case lifecycle.StatusInactive:
		return "Подписка закончилась. Оформить новую: /subscribe"
	case lifecycle.StatusNoSubscription:
		return "У вас пока нет подписки. Оформить: /subscribe"
	default:
		return msgTryLater
	}
}
