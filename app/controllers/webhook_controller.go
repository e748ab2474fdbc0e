package controllers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mpolivanov/lavagate/internal/pkg/ingest"
)

// WebhookController receives gateway callbacks and records them for the
// ingest sweep. The webhook itself performs no side effects.
type WebhookController struct {
	bridge *ingest.Bridge
}

func NewWebhookController(bridge *ingest.Bridge) *WebhookController {
	return &WebhookController{bridge: bridge}
}

// webhookPayload mirrors the lava.top callback body.
type webhookPayload struct {
	EventType string `json:"eventType"`
	Product   struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"product"`
	Buyer struct {
		Email string `json:"email"`
	} `json:"buyer"`
	ContractID       string  `json:"contractId"`
	ParentContractID *string `json:"parentContractId"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	Timestamp        string  `json:"timestamp"`
	Status           string  `json:"status"`
	ErrorMessage     string  `json:"errorMessage"`
	WillExpireAt     string  `json:"willExpireAt"`
}

// HandleLavaWebhook records one gateway event. Malformed JSON is acknowledged
// with 200 so the gateway stops redelivering a body we will never be able to
// parse; a missing contract id is a 400 because the sender can fix that.
func (wc *WebhookController) HandleLavaWebhook(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.BodyRaw()...)

	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warnf("[Webhook] discarding malformed payload: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_json"})
	}
	if strings.TrimSpace(p.ContractID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_contract_id"})
	}

	id, err := wc.bridge.Record(ingest.Event{
		EventType:        p.EventType,
		ProductID:        p.Product.ID,
		ProductTitle:     p.Product.Title,
		BuyerEmail:       p.Buyer.Email,
		ContractID:       p.ContractID,
		ParentContractID: p.ParentContractID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Timestamp:        p.Timestamp,
		Status:           p.Status,
		ErrorMessage:     p.ErrorMessage,
		WillExpireAt:     p.WillExpireAt,
		RawPayload:       string(raw),
	})
	if err != nil {
		log.Errorf("[Webhook] failed to record %s event for contract %s: %v", p.EventType, p.ContractID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_persist_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "id": id})
}

// HandleHealth answers the liveness probe.
func HandleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
