package main

import (
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mpolivanov/lavagate/app/controllers"
	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/bot"
	"github.com/mpolivanov/lavagate/internal/pkg/cache"
	"github.com/mpolivanov/lavagate/internal/pkg/database"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
	"github.com/mpolivanov/lavagate/internal/pkg/ingest"
	"github.com/mpolivanov/lavagate/internal/pkg/lava"
	"github.com/mpolivanov/lavagate/internal/pkg/lifecycle"
	"github.com/mpolivanov/lavagate/internal/pkg/router"
	"github.com/mpolivanov/lavagate/internal/pkg/shortener"
	"github.com/mpolivanov/lavagate/internal/pkg/sweeper"
	"github.com/mpolivanov/lavagate/internal/pkg/telegram"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "8080")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	api, err := tgbotapi.NewBotAPI(env.GetEnv("TELEGRAM_BOT_TOKEN", ""))
	if err != nil {
		log.Fatalf("telegram bot init failed: %v", err)
	}
	api.Debug = env.IsDev()
	log.Printf("authorized on telegram account %s", api.Self.UserName)

	channelID := envInt64("CHANNEL_ID")
	if channelID == 0 {
		log.Fatal("CHANNEL_ID is not configured")
	}
	adminID := envInt64("TELEGRAM_ADMIN_ID")

	chat := telegram.NewBotClient(api)
	notifier := telegram.NewNotifier(chat, adminID)
	repos := repository.NewFactory(database.GetDB()).GetRepositories()

	evaluator := lifecycle.NewEvaluator(repos.Membership, repos.PaymentEvent)
	bridge := ingest.NewBridge(repos.Membership, repos.PaymentEvent, chat, notifier, channelID)
	links := shortener.NewServiceFromEnv(repos.ShortLink)
	gateway := lava.NewClientFromEnv()

	tgBot := bot.New(api, chat, evaluator, gateway, links, repos.Membership, notifier, bot.ConfigFromEnv())
	tgBot.Start()

	sw := sweeper.NewSweeper(repos.Membership, chat, notifier, sweeper.ConfigFromEnv(channelID))
	manager := sweeper.NewManager(sw, bridge, repos.ShortLink)
	manager.Start()

	app := fiber.New(fiber.Config{
		AppName: "lavagate",
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.NewHttpRouter(
		controllers.NewWebhookController(bridge),
		controllers.NewShortLinkController(links),
		controllers.NewResetController(repos.Membership, repos.PaymentEvent),
	))

	return app
}

func envInt64(key string) int64 {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, raw)
	}
	return v
}
