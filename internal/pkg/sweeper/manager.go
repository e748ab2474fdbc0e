package sweeper

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
	"github.com/mpolivanov/lavagate/internal/pkg/ingest"
	"github.com/mpolivanov/lavagate/internal/pkg/metrics/counter"
)

// Manager owns the periodic background tasks: the expiration sweep, the
// payment-ingestion sweep, and the short-link cleanup. Each runs on its own
// ticker; none of them can kill the process.
type Manager struct {
	sweeper    *Sweeper
	bridge     *ingest.Bridge
	shortLinks repository.ShortLinkRepository

	expirationTicker *time.Ticker
	ingestTicker     *time.Ticker
	cleanupTicker    *time.Ticker
	stopCh           chan struct{}
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
}

// NewManager wires the background task manager.
func NewManager(sweeper *Sweeper, bridge *ingest.Bridge, shortLinks repository.ShortLinkRepository) *Manager {
	return &Manager{
		sweeper:    sweeper,
		bridge:     bridge,
		shortLinks: shortLinks,
	}
}

// Start starts the background tasks. Intervals come from the environment:
// SWEEP_INTERVAL_MINUTES (default 30), PAYMENT_CHECK_INTERVAL_SECONDS
// (default 60), LINK_CLEANUP_INTERVAL_HOURS (default 24).
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Sweeper Manager] Starting background tasks")

	sweepInterval := envMinutes("SWEEP_INTERVAL_MINUTES", 30)
	ingestInterval := envSeconds("PAYMENT_CHECK_INTERVAL_SECONDS", 60)
	cleanupInterval := envHours("LINK_CLEANUP_INTERVAL_HOURS", 24)

	m.expirationTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.expirationWorker()

	m.ingestTicker = time.NewTicker(ingestInterval)
	m.wg.Add(1)
	go m.ingestWorker()

	m.cleanupTicker = time.NewTicker(cleanupInterval)
	m.wg.Add(1)
	go m.cleanupWorker()

	log.Info("[Sweeper Manager] Started successfully")
}

// Stop stops the background tasks and waits for the workers to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Sweeper Manager] Stopping background tasks...")

	if m.expirationTicker != nil {
		m.expirationTicker.Stop()
	}
	if m.ingestTicker != nil {
		m.ingestTicker.Stop()
	}
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	log.Info("[Sweeper Manager] Stopped")
}

func (m *Manager) expirationWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.expirationTicker.C:
			m.runProtected("expiration sweep", m.sweeper.RunOnce)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) ingestWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ingestTicker.C:
			m.runProtected("payment ingestion", m.bridge.ProcessPending)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) cleanupWorker() {
	defer m.wg.Done()

	maxAgeDays := envInt("LINK_MAX_AGE_DAYS", 7)
	for {
		select {
		case <-m.cleanupTicker.C:
			m.runProtected("short-link cleanup", func() {
				// Persist pending visit counters before rows get deleted.
				if err := counter.FlushAll(); err != nil {
					log.Warnf("[Sweeper Manager] visit counter flush failed: %v", err)
				}

				cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
				deleted, err := m.shortLinks.DeleteOlderThan(cutoff)
				if err != nil {
					log.Errorf("[Sweeper Manager] short-link cleanup failed: %v", err)
					return
				}
				if deleted > 0 {
					log.Infof("[Sweeper Manager] deleted %d expired short links", deleted)
				}
			})
		case <-m.stopCh:
			return
		}
	}
}

// runProtected keeps a background iteration from taking its loop down. On
// panic the loop pauses briefly before the next tick.
func (m *Manager) runProtected(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Sweeper Manager] %s panicked: %v", name, r)
			time.Sleep(5 * time.Second)
		}
	}()
	fn()
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(env.GetEnv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envMinutes(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Minute
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}

func envHours(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Hour
}
