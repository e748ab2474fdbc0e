package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mpolivanov/lavagate/internal/pkg/metrics/counter"
	"github.com/mpolivanov/lavagate/internal/pkg/shortener"
)

// ShortLinkController serves the redirect behind shortened payment URLs.
type ShortLinkController struct {
	links *shortener.Service
}

func NewShortLinkController(links *shortener.Service) *ShortLinkController {
	return &ShortLinkController{links: links}
}

// HandleRedirect resolves /s/:code and redirects to the stored target.
// Visit counting is best effort and never blocks the redirect.
func (sc *ShortLinkController) HandleRedirect(c *fiber.Ctx) error {
	link, err := sc.links.ResolveLink(c.Params("code"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).SendString("link not found or expired")
	}

	if err := counter.AddLinkVisit(link.ID); err != nil {
		log.Warnf("[ShortLink] failed to count visit for link %d: %v", link.ID, err)
	}

	return c.Redirect(link.TargetURL, fiber.StatusFound)
}
