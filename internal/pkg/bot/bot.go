package bot

import (
	"context"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
	"github.com/mpolivanov/lavagate/internal/pkg/lava"
	"github.com/mpolivanov/lavagate/internal/pkg/lifecycle"
	"github.com/mpolivanov/lavagate/internal/pkg/shortener"
	"github.com/mpolivanov/lavagate/internal/pkg/telegram"
)

const (
	pollTimeoutSeconds = 30

	minPollBackoff = 1 * time.Second
	maxPollBackoff = 60 * time.Second

	gatewayTimeout = 30 * time.Second
)

// updateAPI is the slice of the Telegram API the poll loop needs. Satisfied
// by *tgbotapi.BotAPI.
type updateAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Gateway is the slice of the payment gateway the bot flows need. Satisfied
// by *lava.Client.
type Gateway interface {
	ListOfferings(ctx context.Context) ([]lava.Offering, error)
	CreateInvoice(ctx context.Context, buyerEmail, offerID, periodicity, currency string) (*lava.Invoice, error)
	CancelSubscription(ctx context.Context, buyerEmail, contractID string) (bool, error)
}

// Config carries the bot's static settings.
type Config struct {
	// OfferID selects the gateway offer being sold. Empty means the first
	// offering the gateway lists.
	OfferID string
	// ChannelID is the private channel access is sold to. Zero disables the
	// channel-membership check in the status flow.
	ChannelID int64
}

// ConfigFromEnv reads the bot settings from the environment.
func ConfigFromEnv() Config {
	channelID, _ := strconv.ParseInt(env.GetEnv("CHANNEL_ID", ""), 10, 64)
	return Config{
		OfferID:   env.GetEnv("LAVA_OFFER_ID", ""),
		ChannelID: channelID,
	}
}

// Bot runs the Telegram side of the service: the long-poll update loop and
// the command, button, and callback handlers.
type Bot struct {
	api         updateAPI
	chat        telegram.ChatClient
	evaluator   *lifecycle.Evaluator
	gateway     Gateway
	links       *shortener.Service
	memberships repository.MembershipRepository
	notifier    *telegram.Notifier
	cfg         Config

	now func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New wires a bot. All collaborators are injected; the bot holds no global
// state.
func New(
	api updateAPI,
	chat telegram.ChatClient,
	evaluator *lifecycle.Evaluator,
	gateway Gateway,
	links *shortener.Service,
	memberships repository.MembershipRepository,
	notifier *telegram.Notifier,
	cfg Config,
) *Bot {
	return &Bot{
		api:         api,
		chat:        chat,
		evaluator:   evaluator,
		gateway:     gateway,
		links:       links,
		memberships: memberships,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Start launches the update loop in its own goroutine.
func (b *Bot) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		log.Warn("[Bot] update loop is already running")
		return
	}
	b.stopCh = make(chan struct{})
	b.running = true

	b.wg.Add(1)
	go b.pollLoop()
	log.Info("[Bot] update loop started")
}

// Stop terminates the update loop and waits for it to finish.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	close(b.stopCh)
	b.running = false
	b.mu.Unlock()

	b.wg.Wait()
	log.Info("[Bot] update loop stopped")
}

// pollLoop long-polls Telegram for updates. Transient API failures back off
// exponentially up to a cap and the loop carries on; it never recurses and
// never gives up.
func (b *Bot) pollLoop() {
	defer b.wg.Done()

	offset := 0
	backoff := minPollBackoff

	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = pollTimeoutSeconds

		updates, err := b.api.GetUpdates(cfg)
		if err != nil {
			log.Errorf("[Bot] failed to fetch updates, retrying in %s: %v", backoff, err)
			select {
			case <-b.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxPollBackoff {
				backoff = maxPollBackoff
			}
			continue
		}
		backoff = minPollBackoff

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handleUpdate(u)
		}
	}
}

// handleUpdate dispatches one update. A panicking handler must not kill the
// poll loop.
func (b *Bot) handleUpdate(u *tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Bot] panic while handling update %d: %v", u.UpdateID, r)
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(u.CallbackQuery)
	case u.Message != nil && u.Message.Chat != nil && u.Message.Chat.IsPrivate():
		b.handleMessage(u.Message)
	}
}

func (b *Bot) gatewayContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), gatewayTimeout)
}
