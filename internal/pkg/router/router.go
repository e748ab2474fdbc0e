package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/mpolivanov/lavagate/app/controllers"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers all HTTP routes on the app.
func InstallRouter(app *fiber.App, routers ...Router) {
	for _, r := range routers {
		r.InstallRouter(app)
	}
}

// HttpRouter wires the webhook, short-link, and admin endpoints.
type HttpRouter struct {
	webhook *controllers.WebhookController
	short   *controllers.ShortLinkController
	reset   *controllers.ResetController
}

func NewHttpRouter(
	webhook *controllers.WebhookController,
	short *controllers.ShortLinkController,
	reset *controllers.ResetController,
) *HttpRouter {
	return &HttpRouter{webhook: webhook, short: short, reset: reset}
}

func (h *HttpRouter) InstallRouter(app *fiber.App) {
	auth := webhookAuth()

	app.Get("/", auth, controllers.HandleHealth)
	app.Post("/webhook/lava", auth, h.webhook.HandleLavaWebhook)

	// Short links are public: users follow them from Telegram.
	app.Get("/s/:code", h.short.HandleRedirect)

	admin := app.Group("/admin", auth)
	admin.Post("/reset_db", h.reset.HandleResetDB)
}

// webhookAuth guards the gateway-facing and admin endpoints with basic auth
// from WEBHOOK_USERNAME / WEBHOOK_PASSWORD. Missing credentials disable the
// guard, which is only acceptable in local development.
func webhookAuth() fiber.Handler {
	username := env.GetEnv("WEBHOOK_USERNAME", "")
	password := env.GetEnv("WEBHOOK_PASSWORD", "")
	if username == "" || password == "" {
		log.Warn("[Router] WEBHOOK_USERNAME/WEBHOOK_PASSWORD not set, webhook endpoints are unprotected")
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return basicauth.New(basicauth.Config{
		Users: map[string]string{username: password},
	})
}
