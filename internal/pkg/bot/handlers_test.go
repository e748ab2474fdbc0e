package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/lava"
	"github.com/mpolivanov/lavagate/internal/pkg/lifecycle"
	"github.com/mpolivanov/lavagate/internal/pkg/period"
	"github.com/mpolivanov/lavagate/internal/pkg/shortener"
	"github.com/mpolivanov/lavagate/internal/pkg/telegram"
)

type sentMessage struct {
	userID int64
	text   string
	markup interface{}
}

type fakeChat struct {
	sent []sentMessage

	// memberStatus is what GetChatMemberStatus reports; empty means "member".
	memberStatus string
	inviteLinks  int
}

func (f *fakeChat) SendMessage(userID int64, text string) error {
	f.sent = append(f.sent, sentMessage{userID: userID, text: text})
	return nil
}

func (f *fakeChat) SendMessageWithMarkup(userID int64, text string, markup interface{}) error {
	f.sent = append(f.sent, sentMessage{userID: userID, text: text, markup: markup})
	return nil
}

func (f *fakeChat) CreateInviteLink(channelID int64, memberLimit int, expireAt time.Time) (string, error) {
	f.inviteLinks++
	return "https://t.me/+invite", nil
}

func (f *fakeChat) BanMember(channelID, userID int64) error   { return nil }
func (f *fakeChat) UnbanMember(channelID, userID int64) error { return nil }
func (f *fakeChat) GetChatMemberStatus(channelID, userID int64) (string, error) {
	if f.memberStatus == "" {
		return "member", nil
	}
	return f.memberStatus, nil
}

func (f *fakeChat) lastTo(userID int64) *sentMessage {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].userID == userID {
			return &f.sent[i]
		}
	}
	return nil
}

type fakeGateway struct {
	offerings    []lava.Offering
	offeringsErr error

	invoice    *lava.Invoice
	invoiceErr error

	cancelOK  bool
	cancelErr error

	listCalls          int
	invoiceEmail       string
	invoicePeriodicity string
	cancelledEmail     string
	cancelledContract  string
}

func (f *fakeGateway) ListOfferings(ctx context.Context) ([]lava.Offering, error) {
	f.listCalls++
	return f.offerings, f.offeringsErr
}

func (f *fakeGateway) CreateInvoice(ctx context.Context, buyerEmail, offerID, periodicity, currency string) (*lava.Invoice, error) {
	f.invoiceEmail = buyerEmail
	f.invoicePeriodicity = periodicity
	return f.invoice, f.invoiceErr
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, buyerEmail, contractID string) (bool, error) {
	f.cancelledEmail = buyerEmail
	f.cancelledContract = contractID
	return f.cancelOK, f.cancelErr
}

type fakeAPI struct {
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	return nil, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type botFixture struct {
	bot     *Bot
	chat    *fakeChat
	gateway *fakeGateway
	api     *fakeAPI
	repos   *repository.Repositories
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Membership{}, &models.PaymentEvent{}, &models.ShortLink{}))

	repos := repository.NewRepositories(db)
	chat := &fakeChat{}
	gateway := &fakeGateway{}
	api := &fakeAPI{}

	b := New(
		api,
		chat,
		lifecycle.NewEvaluator(repos.Membership, repos.PaymentEvent),
		gateway,
		shortener.NewService(repos.ShortLink, "https://pay.example.com", 8),
		repos.Membership,
		telegram.NewNotifier(chat, 1),
		Config{OfferID: "offer-1", ChannelID: -100200300},
	)
	return &botFixture{bot: b, chat: chat, gateway: gateway, api: api, repos: repos}
}

func (fx *botFixture) activeMembership(t *testing.T, userID int64, expiresAt time.Time, contractID string) {
	t.Helper()

	eventID, err := fx.repos.PaymentEvent.Insert(&models.PaymentEvent{
		EventType:  models.EventTypePaymentSuccess,
		BuyerEmail: models.BuyerEmail(userID),
		ContractID: contractID,
		Amount:     500,
		Currency:   "RUB",
		Timestamp:  expiresAt.AddDate(0, 0, -30).Format(time.RFC3339),
	})
	require.NoError(t, err)

	require.NoError(t, fx.repos.Membership.Upsert(&models.Membership{
		UserID:      userID,
		Status:      models.MembershipStatusActive,
		JoinedAt:    expiresAt.AddDate(0, 0, -30),
		ExpiresAt:   &expiresAt,
		LastEventID: &eventID,
	}))
}

func TestSubscribeWhenAlreadyActive(t *testing.T) {
	fx := newBotFixture(t)
	fx.activeMembership(t, 42, time.Now().UTC().AddDate(0, 0, 10), "contract-1")

	fx.bot.handleSubscribe(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Contains(t, msg.text, "уже есть активная подписка")
	assert.Zero(t, fx.gateway.listCalls, "active subscriber must not trigger an offerings request")
}

func TestSubscribeShowsKnownPlansOnly(t *testing.T) {
	fx := newBotFixture(t)
	fx.gateway.offerings = []lava.Offering{
		{
			ID:   "offer-1",
			Name: "Закрытый канал",
			Prices: []lava.Price{
				{Amount: 500, Currency: "RUB", Periodicity: period.Monthly},
				{Amount: 4200, Currency: "RUB", Periodicity: period.Annual},
				{Amount: 6, Currency: "USD", Periodicity: period.Monthly},
				{Amount: 999, Currency: "RUB", Periodicity: "WEEKLY"},
			},
		},
	}

	fx.bot.handleSubscribe(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Equal(t, msgChoosePlan, msg.text)

	markup, ok := msg.markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "plan picker must be an inline keyboard")
	require.Len(t, markup.InlineKeyboard, 2, "USD and unknown periodicity rows must be filtered out")

	first := markup.InlineKeyboard[0][0]
	require.NotNil(t, first.CallbackData)
	action, err := ParseAction(*first.CallbackData)
	require.NoError(t, err)
	assert.Equal(t, KindChoosePlan, action.Kind)
	assert.Equal(t, period.Monthly, action.Payload)
	assert.Equal(t, "1 месяц — 500 ₽", first.Text)
}

func TestSubscribeOfferingsFailure(t *testing.T) {
	fx := newBotFixture(t)
	fx.gateway.offeringsErr = errors.New("gateway down")

	fx.bot.handleSubscribe(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Equal(t, msgNoOfferings, msg.text)
}

func TestChoosePlanSendsShortPaymentLink(t *testing.T) {
	fx := newBotFixture(t)
	fx.gateway.invoice = &lava.Invoice{
		ID:         "inv-1",
		PaymentURL: "https://gate.lava.top/invoice/very-long-identifier",
		Status:     "in-progress",
	}

	fx.bot.handleChoosePlan(42, period.Monthly)

	assert.Equal(t, "42@t.me", fx.gateway.invoiceEmail)
	assert.Equal(t, period.Monthly, fx.gateway.invoicePeriodicity)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Equal(t, msgPaymentLink, msg.text)

	markup, ok := msg.markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	button := markup.InlineKeyboard[0][0]
	require.NotNil(t, button.URL)
	assert.True(t, strings.HasPrefix(*button.URL, "https://pay.example.com/s/"),
		"payment URL must be shortened, got %s", *button.URL)

	// The short link must resolve back to the gateway URL.
	code := strings.TrimPrefix(*button.URL, "https://pay.example.com/s/")
	link, err := fx.repos.ShortLink.GetByCode(code)
	require.NoError(t, err)
	assert.Equal(t, "https://gate.lava.top/invoice/very-long-identifier", link.TargetURL)
}

func TestChoosePlanRejectsUnknownPeriodicity(t *testing.T) {
	fx := newBotFixture(t)

	fx.bot.handleChoosePlan(42, "WEEKLY")

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Equal(t, msgTryLater, msg.text)
	assert.Empty(t, fx.gateway.invoiceEmail, "no invoice may be created for an unknown periodicity")
}

func TestStatusActiveCarriesCancelButton(t *testing.T) {
	fx := newBotFixture(t)
	fx.activeMembership(t, 42, time.Now().UTC().AddDate(0, 0, 10), "contract-1")

	fx.bot.handleStatus(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Contains(t, msg.text, "Подписка активна")

	markup, ok := msg.markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	button := markup.InlineKeyboard[0][0]
	require.NotNil(t, button.CallbackData)
	assert.Equal(t, Action{Kind: KindCancel}.Encode(), *button.CallbackData)
}

func TestStatusWithoutSubscription(t *testing.T) {
	fx := newBotFixture(t)

	fx.bot.handleStatus(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Contains(t, msg.text, "нет подписки")
	assert.Nil(t, msg.markup)
}

func TestCancelActiveSubscription(t *testing.T) {
	fx := newBotFixture(t)
	expiresAt := time.Now().UTC().AddDate(0, 0, 10)
	fx.activeMembership(t, 42, expiresAt, "contract-1")
	fx.gateway.cancelOK = true

	fx.bot.handleCancel(42)

	assert.Equal(t, "42@t.me", fx.gateway.cancelledEmail)
	assert.Equal(t, "contract-1", fx.gateway.cancelledContract)

	m, err := fx.repos.Membership.Get(42)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusCancelled, m.Status)
	require.NotNil(t, m.ExpiresAt)
	assert.Equal(t, expiresAt.Format("02.01.2006"), m.ExpiresAt.Format("02.01.2006"),
		"cancellation must preserve the paid end date")

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Contains(t, msg.text, "Автопродление отключено")
	require.NotNil(t, fx.chat.lastTo(1), "admin must be notified about the cancellation")
}

func TestCancelWithoutSubscription(t *testing.T) {
	fx := newBotFixture(t)

	fx.bot.handleCancel(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Equal(t, msgNothingCancel, msg.text)
	assert.Empty(t, fx.gateway.cancelledContract)
}

func TestCancelGatewayFailureKeepsMembership(t *testing.T) {
	fx := newBotFixture(t)
	fx.activeMembership(t, 42, time.Now().UTC().AddDate(0, 0, 10), "contract-1")
	fx.gateway.cancelErr = errors.New("gateway down")

	fx.bot.handleCancel(42)

	m, err := fx.repos.Membership.Get(42)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusActive, m.Status,
		"status must not flip when the gateway cancel fails")

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Equal(t, msgTryLater, msg.text)
}

func TestCallbackRejectsUnknownData(t *testing.T) {
	fx := newBotFixture(t)

	fx.bot.handleCallback(&tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: 42},
		Data: "exec:rm -rf",
	})

	assert.Nil(t, fx.chat.lastTo(42), "unknown callback data must not reach any handler")
	assert.Len(t, fx.api.requests, 1, "callback must still be acknowledged")
}

func TestKeyboardLabelRoutesLikeCommand(t *testing.T) {
	fx := newBotFixture(t)
	fx.activeMembership(t, 42, time.Now().UTC().AddDate(0, 0, 10), "contract-1")

	fx.bot.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 42, Type: "private"},
		Text: btnStatus,
	})

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Contains(t, msg.text, "Подписка активна")
}

func TestStartSendsMainKeyboard(t *testing.T) {
	fx := newBotFixture(t)

	fx.bot.handleStart(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Equal(t, msgWelcome, msg.text)
	_, ok := msg.markup.(tgbotapi.ReplyKeyboardMarkup)
	assert.True(t, ok, "welcome must carry the persistent reply keyboard")
}

func TestStatusReissuesInviteAfterLeavingChannel(t *testing.T) {
	fx := newBotFixture(t)
	fx.activeMembership(t, 42, time.Now().UTC().AddDate(0, 0, 10), "contract-1")
	fx.chat.memberStatus = "left"

	fx.bot.handleStatus(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.Contains(t, msg.text, "https://t.me/+invite")
	assert.Equal(t, 1, fx.chat.inviteLinks)
}

func TestStatusSkipsInviteForChannelMember(t *testing.T) {
	fx := newBotFixture(t)
	fx.activeMembership(t, 42, time.Now().UTC().AddDate(0, 0, 10), "contract-1")

	fx.bot.handleStatus(42)

	msg := fx.chat.lastTo(42)
	require.NotNil(t, msg)
	assert.NotContains(t, msg.text, "Ссылка для входа")
	assert.Zero(t, fx.chat.inviteLinks)
}
