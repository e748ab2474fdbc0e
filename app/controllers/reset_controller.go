package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mpolivanov/lavagate/app/repository"
)

// ResetController wipes the payment and membership tables. Used on staging
// when replaying gateway test events; guarded by basic auth in the router.
type ResetController struct {
	memberships repository.MembershipRepository
	payments    repository.PaymentEventRepository
}

func NewResetController(memberships repository.MembershipRepository, payments repository.PaymentEventRepository) *ResetController {
	return &ResetController{memberships: memberships, payments: payments}
}

// HandleResetDB drops all stored events and memberships.
func (rc *ResetController) HandleResetDB(c *fiber.Ctx) error {
	if err := rc.payments.Reset(); err != nil {
		log.Errorf("[Admin] failed to reset payment events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reset_failed"})
	}
	if err := rc.memberships.Reset(); err != nil {
		log.Errorf("[Admin] failed to reset memberships: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reset_failed"})
	}

	log.Warn("[Admin] database reset performed")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
