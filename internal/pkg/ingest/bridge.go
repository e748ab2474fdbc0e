package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/period"
	"github.com/mpolivanov/lavagate/internal/pkg/telegram"
	"github.com/mpolivanov/lavagate/internal/pkg/utils"
)

const inviteLinkTTL = 24 * time.Hour

// Event is the normalized inbound payment/subscription event, as delivered by
// the webhook or synthesized from gateway polling.
type Event struct {
	EventType        string
	ProductID        string
	ProductTitle     string
	BuyerEmail       string
	ContractID       string
	ParentContractID *string
	Amount           float64
	Currency         string
	Timestamp        string
	Status           string
	ErrorMessage     string
	WillExpireAt     string
	RawPayload       string
}

// Bridge converts gateway events into store mutations and side effects,
// exactly once per event. Recording and acting are split: the webhook (or
// poller) records rows with processed=false, and the consumer sweep performs
// the side effects, marking each row processed in the same step.
type Bridge struct {
	memberships repository.MembershipRepository
	payments    repository.PaymentEventRepository
	chat        telegram.ChatClient
	notifier    *telegram.Notifier
	channelID   int64

	now func() time.Time
}

// NewBridge wires the ingestion bridge with its collaborators.
func NewBridge(
	memberships repository.MembershipRepository,
	payments repository.PaymentEventRepository,
	chat telegram.ChatClient,
	notifier *telegram.Notifier,
	channelID int64,
) *Bridge {
	return &Bridge{
		memberships: memberships,
		payments:    payments,
		chat:        chat,
		notifier:    notifier,
		channelID:   channelID,
		now:         time.Now,
	}
}

// Record persists an inbound event without side effects and returns its row
// ID. Timestamps are normalized to UTC before storage; the raw payload is
// retained verbatim for audit.
func (b *Bridge) Record(e Event) (uint, error) {
	if e.ContractID == "" {
		return 0, errors.New("event has no contract id")
	}

	ts := e.Timestamp
	if ts == "" {
		ts = b.now().UTC().Format(time.RFC3339)
	}

	row := &models.PaymentEvent{
		EventType:        e.EventType,
		ProductID:        e.ProductID,
		ProductTitle:     e.ProductTitle,
		BuyerEmail:       e.BuyerEmail,
		ContractID:       e.ContractID,
		ParentContractID: e.ParentContractID,
		Amount:           e.Amount,
		Currency:         e.Currency,
		Timestamp:        utils.NormalizeTimestamp(ts),
		Status:           e.Status,
		ErrorMessage:     e.ErrorMessage,
		RawPayload:       e.RawPayload,
	}

	// Cancellations carry the gateway's "will expire at" value.
	if e.EventType == models.EventTypeCancelled {
		if row.Status == "" {
			row.Status = "subscription-cancelled"
		}
		if e.WillExpireAt != "" {
			normalized := utils.NormalizeTimestamp(e.WillExpireAt)
			row.WillExpireAt = &normalized
		}
	}

	return b.payments.Insert(row)
}

// ProcessPending applies every unprocessed event. Per-event failures are
// logged and skipped so one poisoned row never stalls the rest; rows are
// marked processed in the same step as acting on them.
func (b *Bridge) ProcessPending() {
	pending, err := b.payments.ListUnprocessed()
	if err != nil {
		log.Errorf("[Ingest] failed to list unprocessed events: %v", err)
		return
	}

	for i := range pending {
		event := &pending[i]
		if err := b.apply(event); err != nil {
			log.Errorf("[Ingest] failed to process event %d (%s): %v", event.ID, event.EventType, err)
			continue
		}
		if err := b.payments.MarkProcessed(event.ID); err != nil {
			log.Errorf("[Ingest] failed to mark event %d processed: %v", event.ID, err)
		}
	}
}

// apply runs the state machine for one stored event.
func (b *Bridge) apply(event *models.PaymentEvent) error {
	userID, err := models.UserIDFromBuyerEmail(event.BuyerEmail)
	if err != nil {
		// An unmappable buyer will never become mappable; park the row and
		// tell the admin instead of retrying forever.
		log.Warnf("[Ingest] event %d has unmappable buyer %q: %v", event.ID, event.BuyerEmail, err)
		b.notifier.NotifyAdmin(fmt.Sprintf("⚠️ Событие %d: не удалось определить пользователя по email %s", event.ID, event.BuyerEmail))
		return b.payments.MarkProcessed(event.ID)
	}

	switch event.EventType {
	case models.EventTypePaymentSuccess:
		err = b.applyFirstPayment(userID, event)
	case models.EventTypeRecurringSuccess:
		err = b.applyRecurringPayment(userID, event)
	case models.EventTypePaymentFailed, models.EventTypeRecurringFailed:
		b.notifyPaymentFailed(userID, event)
	case models.EventTypeCancelled:
		err = b.applyCancellation(userID, event)
	default:
		log.Warnf("[Ingest] event %d has unknown type %q, skipping side effects", event.ID, event.EventType)
		return nil
	}
	if err != nil {
		return err
	}

	// Admin notice only after the mutation lands; a row retried after a
	// store error stays silent until it succeeds.
	b.notifyAdminOperation(userID, event)
	return nil
}

// applyFirstPayment handles the first charge of a subscription: membership
// upsert, channel invite, notifications.
func (b *Bridge) applyFirstPayment(userID int64, event *models.PaymentEvent) error {
	eventTime := b.eventTime(event)
	expires := eventTime.AddDate(0, 0, period.DaysForAmount(event.Amount))

	m := &models.Membership{
		UserID:      userID,
		Status:      models.MembershipStatusActive,
		JoinedAt:    eventTime,
		ExpiresAt:   &expires,
		LastEventID: &event.ID,
	}
	if err := b.memberships.Upsert(m); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}

	b.grantChannelAccess(userID, event, expires)
	return nil
}

// applyRecurringPayment extends the entitlement. The new end date anchors on
// the later of the stored end date and the event time, so delayed webhook
// delivery and replays never shorten or double-extend access.
func (b *Bridge) applyRecurringPayment(userID int64, event *models.PaymentEvent) error {
	eventTime := b.eventTime(event)

	days := period.DaysForAmount(event.Amount)

	anchor := eventTime
	joined := eventTime
	existing, err := b.memberships.Get(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load membership: %w", err)
	}
	if existing != nil {
		joined = existing.JoinedAt
		if existing.ExpiresAt != nil {
			// Re-delivered event: the stored end date already covers this
			// charge's nominal period, so extending again would grant a
			// duplicate entitlement.
			nominal := eventTime.AddDate(0, 0, days)
			if !existing.ExpiresAt.Before(nominal) {
				if existing.Status != models.MembershipStatusActive {
					return b.memberships.SetStatus(userID, models.MembershipStatusActive)
				}
				return nil
			}
			if existing.ExpiresAt.After(anchor) {
				anchor = existing.ExpiresAt.UTC()
			}
		}
	}

	expires := anchor.AddDate(0, 0, days)
	m := &models.Membership{
		UserID:      userID,
		Status:      models.MembershipStatusActive,
		JoinedAt:    joined,
		ExpiresAt:   &expires,
		LastEventID: &event.ID,
	}
	if err := b.memberships.Upsert(m); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}

	b.notifier.NotifyUser(userID, fmt.Sprintf(
		"Подписка '%s' успешно продлена.\nДоступ действует до %s.",
		event.ProductTitle, expires.Format("02.01.2006"),
	))
	return nil
}

// applyCancellation turns auto-renewal off. Access continues until the
// gateway-reported expiry when present, else until the stored end date.
func (b *Bridge) applyCancellation(userID int64, event *models.PaymentEvent) error {
	existing, err := b.memberships.Get(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Ingest] cancellation for user %d without membership record", userID)
			return nil
		}
		return fmt.Errorf("load membership: %w", err)
	}

	expires := existing.ExpiresAt
	if event.WillExpireAt != nil {
		if t, err := utils.ParseTimestamp(*event.WillExpireAt); err == nil {
			expires = &t
		} else {
			log.Warnf("[Ingest] event %d has malformed willExpireAt %q, keeping stored end date", event.ID, *event.WillExpireAt)
		}
	}

	m := &models.Membership{
		UserID:      userID,
		Status:      models.MembershipStatusCancelled,
		JoinedAt:    existing.JoinedAt,
		ExpiresAt:   expires,
		LastEventID: &event.ID,
	}
	if err := b.memberships.Upsert(m); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}

	until := ""
	if expires != nil {
		until = fmt.Sprintf(" Доступ к каналу сохранится до %s.", expires.Format("02.01.2006"))
	}
	b.notifier.NotifyUser(userID, "Автопродление подписки отключено."+until)
	return nil
}

// grantChannelAccess issues a fresh single-use invite link and sends it to
// the user. Link issuance failure is logged; the membership mutation already
// happened and the user can re-request access via the bot.
func (b *Bridge) grantChannelAccess(userID int64, event *models.PaymentEvent, expires time.Time) {
	link, err := b.chat.CreateInviteLink(b.channelID, 1, b.now().Add(inviteLinkTTL))
	if err != nil {
		log.Errorf("[Ingest] failed to create invite link for user %d: %v", userID, err)
		b.notifier.NotifyUser(userID, fmt.Sprintf(
			"Подписка '%s' успешно оплачена, но не удалось создать ссылку на канал. Напишите /start чтобы получить её повторно.",
			event.ProductTitle,
		))
		return
	}

	b.notifier.NotifyUser(userID, fmt.Sprintf(
		"Поздравляем! Подписка '%s' успешно оплачена (%.0f %s).\nДоступ действует до %s.\nВаша ссылка для входа в закрытый канал: %s",
		event.ProductTitle, event.Amount, event.Currency, expires.Format("02.01.2006"), link,
	))
}

func (b *Bridge) notifyPaymentFailed(userID int64, event *models.PaymentEvent) {
	reason := event.ErrorMessage
	if reason == "" {
		reason = "причина не указана"
	}
	b.notifier.NotifyUser(userID, fmt.Sprintf(
		"К сожалению, оплата подписки '%s' не удалась.\nПричина: %s\n\nВы можете попробовать снова командой /subscribe",
		event.ProductTitle, reason,
	))
}

func (b *Bridge) notifyAdminOperation(userID int64, event *models.PaymentEvent) {
	b.notifier.NotifyAdmin(fmt.Sprintf(
		"<b>Операция по подписке</b>\n\n"+
			"<b>Пользователь:</b> %d\n"+
			"<b>Продукт:</b> %s\n"+
			"<b>Сумма:</b> %.0f %s\n"+
			"<b>Тип события:</b> %s\n"+
			"<b>Статус:</b> %s\n"+
			"<b>Дата:</b> %s\n"+
			"<b>ID контракта:</b> %s",
		userID, event.ProductTitle, event.Amount, event.Currency,
		event.EventType, event.Status, event.Timestamp, event.ContractID,
	))
}

// eventTime resolves the charge instant, falling back to the receipt time for
// malformed stored dates.
func (b *Bridge) eventTime(event *models.PaymentEvent) time.Time {
	t, err := utils.ParseTimestamp(event.Timestamp)
	if err != nil {
		log.Warnf("[Ingest] event %d has malformed timestamp %q, using receipt time", event.ID, event.Timestamp)
		return event.ReceivedAt.UTC()
	}
	return t
}
