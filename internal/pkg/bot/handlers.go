package bot

import (
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/internal/pkg/lava"
	"github.com/mpolivanov/lavagate/internal/pkg/lifecycle"
	"github.com/mpolivanov/lavagate/internal/pkg/period"
)

func (b *Bot) handleMessage(m *tgbotapi.Message) {
	if m.From == nil {
		return
	}
	userID := m.From.ID

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			b.handleStart(userID)
		case "subscribe":
			b.handleSubscribe(userID)
		case "status":
			b.handleStatus(userID)
		case "cancel":
			b.handleCancel(userID)
		default:
			b.send(userID, msgUnknown)
		}
		return
	}

	switch m.Text {
	case btnSubscribe:
		b.handleSubscribe(userID)
	case btnStatus:
		b.handleStatus(userID)
	case btnCancel:
		b.handleCancel(userID)
	default:
		b.send(userID, msgUnknown)
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	userID := cb.From.ID

	// Acknowledge first so the client stops showing the spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Warnf("[Bot] failed to answer callback %s: %v", cb.ID, err)
	}

	action, err := ParseAction(cb.Data)
	if err != nil {
		log.Warnf("[Bot] rejected callback from user %d: %v", userID, err)
		return
	}

	switch action.Kind {
	case KindChoosePlan:
		b.handleChoosePlan(userID, action.Payload)
	case KindCancel:
		b.handleCancel(userID)
	case KindShowStatus:
		b.handleStatus(userID)
	}
}

func (b *Bot) handleStart(userID int64) {
	if err := b.chat.SendMessageWithMarkup(userID, msgWelcome, mainKeyboard()); err != nil {
		log.Errorf("[Bot] failed to greet user %d: %v", userID, err)
	}
}

// handleSubscribe starts the purchase flow: an already active subscriber is
// told so, everyone else gets the plan picker.
func (b *Bot) handleSubscribe(userID int64) {
	ev := b.evaluator.Evaluate(userID)
	if ev.Status == lifecycle.StatusError {
		log.Errorf("[Bot] subscription evaluation failed for user %d: %v", userID, ev.Err)
		b.send(userID, msgTryLater)
		return
	}
	if ev.Status == lifecycle.StatusActive {
		b.send(userID, fmt.Sprintf(msgAlreadyActive, formatDate(ev.ExpiresAt)))
		return
	}

	ctx, cancel := b.gatewayContext()
	defer cancel()

	offerings, err := b.gateway.ListOfferings(ctx)
	if err != nil {
		log.Errorf("[Bot] failed to list offerings for user %d: %v", userID, err)
		b.send(userID, msgNoOfferings)
		return
	}

	offering := b.selectOffering(offerings)
	if offering == nil || len(offering.Prices) == 0 {
		log.Errorf("[Bot] no sellable offering found (offer_id=%q, %d offerings)", b.cfg.OfferID, len(offerings))
		b.send(userID, msgNoOfferings)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, price := range offering.Prices {
		if price.Currency != "RUB" || !period.Known(price.Periodicity) {
			continue
		}
		action := Action{Kind: KindChoosePlan, Payload: price.Periodicity}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				planLabel(price.Periodicity, price.Amount, price.Currency),
				action.Encode(),
			),
		))
	}
	if len(rows) == 0 {
		b.send(userID, msgNoOfferings)
		return
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	if err := b.chat.SendMessageWithMarkup(userID, msgChoosePlan, markup); err != nil {
		log.Errorf("[Bot] failed to send plan picker to user %d: %v", userID, err)
	}
}

// selectOffering picks the configured offer from the gateway's catalog, or
// the first one when no offer id is configured.
func (b *Bot) selectOffering(offerings []lava.Offering) *lava.Offering {
	for i := range offerings {
		if offerings[i].ID == b.cfg.OfferID {
			return &offerings[i]
		}
	}
	if b.cfg.OfferID == "" && len(offerings) > 0 {
		return &offerings[0]
	}
	return nil
}

// handleChoosePlan creates an invoice for the chosen periodicity and hands
// the user a short payment link.
func (b *Bot) handleChoosePlan(userID int64, periodicity string) {
	if !period.Known(periodicity) {
		log.Warnf("[Bot] user %d picked unknown periodicity %q", userID, periodicity)
		b.send(userID, msgTryLater)
		return
	}

	ctx, cancel := b.gatewayContext()
	defer cancel()

	invoice, err := b.gateway.CreateInvoice(ctx, models.BuyerEmail(userID), b.cfg.OfferID, periodicity, "RUB")
	if err != nil {
		log.Errorf("[Bot] failed to create invoice for user %d: %v", userID, err)
		b.send(userID, msgTryLater)
		return
	}

	payURL := invoice.PaymentURL
	if short, err := b.links.Shorten(payURL); err == nil {
		payURL = short
	} else {
		log.Warnf("[Bot] failed to shorten payment URL for user %d, sending full URL: %v", userID, err)
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Оплатить", payURL),
		),
	)
	if err := b.chat.SendMessageWithMarkup(userID, msgPaymentLink, markup); err != nil {
		log.Errorf("[Bot] failed to send payment link to user %d: %v", userID, err)
	}
}

func (b *Bot) handleStatus(userID int64) {
	ev := b.evaluator.Evaluate(userID)
	if ev.Status == lifecycle.StatusError {
		log.Errorf("[Bot] status evaluation failed for user %d: %v", userID, ev.Err)
		b.send(userID, msgTryLater)
		return
	}

	text := renderStatus(ev)
	if ev.Status != lifecycle.StatusActive {
		b.send(userID, text)
		return
	}

	if link := b.reissueInviteIfLeft(userID); link != "" {
		text += fmt.Sprintf(msgRejoin, link)
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, Action{Kind: KindCancel}.Encode()),
		),
	)
	if err := b.chat.SendMessageWithMarkup(userID, text, markup); err != nil {
		log.Errorf("[Bot] failed to send status to user %d: %v", userID, err)
	}
}

// reissueInviteIfLeft returns a fresh invite link for a paying subscriber who
// is no longer in the channel, empty otherwise. Check failures are logged and
// treated as still-a-member.
func (b *Bot) reissueInviteIfLeft(userID int64) string {
	if b.cfg.ChannelID == 0 {
		return ""
	}
	status, err := b.chat.GetChatMemberStatus(b.cfg.ChannelID, userID)
	if err != nil {
		log.Warnf("[Bot] failed to check channel membership for user %d: %v", userID, err)
		return ""
	}
	if status != "left" && status != "kicked" {
		return ""
	}
	link, err := b.chat.CreateInviteLink(b.cfg.ChannelID, 1, b.now().Add(24*time.Hour))
	if err != nil {
		log.Errorf("[Bot] failed to reissue invite link for user %d: %v", userID, err)
		return ""
	}
	return link
}

// handleCancel turns auto-renewal off at the gateway and marks the membership
// cancelled. Access stays until the paid period ends; the sweeper handles the
// actual removal.
func (b *Bot) handleCancel(userID int64) {
	ev := b.evaluator.Evaluate(userID)
	if ev.Status == lifecycle.StatusError {
		log.Errorf("[Bot] cancel evaluation failed for user %d: %v", userID, ev.Err)
		b.send(userID, msgTryLater)
		return
	}
	if ev.Status != lifecycle.StatusActive {
		b.send(userID, msgNothingCancel)
		return
	}
	if ev.ContractID == "" {
		log.Errorf("[Bot] user %d has active access but no contract to cancel", userID)
		b.send(userID, msgTryLater)
		return
	}

	ctx, cancel := b.gatewayContext()
	defer cancel()

	ok, err := b.gateway.CancelSubscription(ctx, models.BuyerEmail(userID), ev.ContractID)
	if err != nil || !ok {
		log.Errorf("[Bot] gateway cancel failed for user %d contract %s: %v", userID, ev.ContractID, err)
		b.send(userID, msgTryLater)
		return
	}

	if err := b.markCancelled(userID, ev.ExpiresAt); err != nil {
		// The gateway side is already off; the incoming subscription.cancelled
		// event will fix the stored status on the next ingest pass.
		log.Errorf("[Bot] failed to store cancellation for user %d: %v", userID, err)
	}

	b.send(userID, fmt.Sprintf(msgCancelled, formatDate(ev.ExpiresAt)))
	b.notifier.NotifyAdmin(fmt.Sprintf(
		"<b>Отмена подписки</b>\n\n<b>Пользователь:</b> %d\n<b>Доступ до:</b> %s",
		userID, formatDate(ev.ExpiresAt),
	))
}

// markCancelled flips the stored membership to cancelled, creating the record
// when the evaluation came from the payment-event fallback.
func (b *Bot) markCancelled(userID int64, expiresAt *time.Time) error {
	_, err := b.memberships.Get(userID)
	if err == nil {
		return b.memberships.SetStatus(userID, models.MembershipStatusCancelled)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return b.memberships.Upsert(&models.Membership{
		UserID:    userID,
		Status:    models.MembershipStatusCancelled,
		JoinedAt:  b.now().UTC(),
		ExpiresAt: expiresAt,
	})
}

func (b *Bot) send(userID int64, text string) {
	if err := b.chat.SendMessage(userID, text); err != nil {
		log.Errorf("[Bot] failed to message user %d: %v", userID, err)
	}
}
