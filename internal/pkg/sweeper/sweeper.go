package sweeper

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
	"github.com/mpolivanov/lavagate/internal/pkg/telegram"
	"github.com/mpolivanov/lavagate/internal/pkg/utils"
)

// GracePeriodDays is how long access survives past the nominal end date
// pending a possible late renewal.
const GracePeriodDays = 3

// Config tunes the expiration pass. Warn and grace notifications are off by
// default; the day computations behind them still gate removal.
type Config struct {
	ChannelID      int64
	GraceDays      int
	WarnThresholds []int
	NotifyGrace    bool
	NotifyWarn     bool
}

// ConfigFromEnv reads the sweep tuning from the environment. Grace and
// look-ahead notifications stay off unless explicitly switched on.
func ConfigFromEnv(channelID int64) Config {
	return Config{
		ChannelID:   channelID,
		GraceDays:   sweeperEnvInt("GRACE_PERIOD_DAYS", GracePeriodDays),
		NotifyGrace: env.GetEnv("NOTIFY_GRACE", "false") == "true",
		NotifyWarn:  env.GetEnv("NOTIFY_WARN", "false") == "true",
	}
}

func sweeperEnvInt(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warnf("[Sweeper] %s must be an integer, got %q, using %d", key, raw, def)
		return def
	}
	return v
}

// Sweeper walks every membership that still grants access and applies the
// expiry state transitions.
type Sweeper struct {
	memberships repository.MembershipRepository
	chat        telegram.ChatClient
	notifier    *telegram.Notifier
	cfg         Config

	now func() time.Time
}

// NewSweeper wires an expiration sweeper. Zero-value grace days fall back to
// the package constant.
func NewSweeper(
	memberships repository.MembershipRepository,
	chat telegram.ChatClient,
	notifier *telegram.Notifier,
	cfg Config,
) *Sweeper {
	if cfg.GraceDays == 0 {
		cfg.GraceDays = GracePeriodDays
	}
	if cfg.WarnThresholds == nil {
		cfg.WarnThresholds = []int{7, 3, 1}
	}
	return &Sweeper{
		memberships: memberships,
		chat:        chat,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

// RunOnce performs one expiration pass. Per-user failures are isolated so one
// bad row or one chat API error never aborts the sweep for everyone else.
func (s *Sweeper) RunOnce() {
	candidates, err := s.memberships.ListByStatus(
		models.MembershipStatusActive,
		models.MembershipStatusCancelled,
	)
	if err != nil {
		log.Errorf("[Sweeper] failed to list memberships: %v", err)
		return
	}

	now := s.now().UTC()
	for i := range candidates {
		s.sweepOne(&candidates[i], now)
	}
}

func (s *Sweeper) sweepOne(m *models.Membership, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Sweeper] panic while sweeping user %d: %v", m.UserID, r)
		}
	}()

	if m.ExpiresAt == nil {
		log.Warnf("[Sweeper] user %d has status %s but no end date, skipping", m.UserID, m.Status)
		return
	}

	daysLeft := utils.DaysUntil(now, m.ExpiresAt.UTC())

	switch {
	case daysLeft < -s.cfg.GraceDays:
		s.remove(m, daysLeft)
	case daysLeft < 0:
		if s.cfg.NotifyGrace {
			s.notifier.NotifyUser(m.UserID, fmt.Sprintf(
				"Срок подписки истёк. Доступ к каналу сохранится ещё %d дн., если подписка будет продлена.",
				s.cfg.GraceDays+daysLeft,
			))
		}
	default:
		if s.cfg.NotifyWarn && s.isWarnDay(daysLeft) {
			s.notifier.NotifyUser(m.UserID, fmt.Sprintf(
				"Подписка истекает через %d дн. (%s).",
				daysLeft, m.ExpiresAt.Format("02.01.2006"),
			))
		}
	}
}

// remove revokes channel access and marks the membership removed. The status
// flip happens only after the external revoke succeeds, so a chat API outage
// leaves the row for a retry on the next sweep.
func (s *Sweeper) remove(m *models.Membership, daysLeft int) {
	if err := s.chat.BanMember(s.cfg.ChannelID, m.UserID); err != nil {
		log.Errorf("[Sweeper] failed to revoke access for user %d: %v", m.UserID, err)
		return
	}
	// Unban right away so the user can rejoin after a future payment.
	if err := s.chat.UnbanMember(s.cfg.ChannelID, m.UserID); err != nil {
		log.Warnf("[Sweeper] failed to unban user %d after revoke: %v", m.UserID, err)
	}

	if err := s.memberships.SetStatus(m.UserID, models.MembershipStatusRemoved); err != nil {
		log.Errorf("[Sweeper] failed to mark user %d removed: %v", m.UserID, err)
		return
	}

	log.Infof("[Sweeper] removed user %d (%d days past end date)", m.UserID, -daysLeft)
	s.notifier.NotifyUser(m.UserID, "Срок подписки истёк. Доступ к закрытому каналу прекращён. Оформить новую подписку: /subscribe")
	s.notifier.NotifyAdmin(fmt.Sprintf(
		"<b>Доступ отозван</b>\n\n<b>Пользователь:</b> %d\n<b>Дата окончания:</b> %s",
		m.UserID, m.ExpiresAt.Format("02.01.2006"),
	))
}

func (s *Sweeper) isWarnDay(daysLeft int) bool {
	for _, d := range s.cfg.WarnThresholds {
		if daysLeft == d {
			return true
		}
	}
	return false
}
