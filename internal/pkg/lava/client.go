package lava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/mpolivanov/lavagate/internal/pkg/cache"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://gate.lava.top"

	offeringsCacheKey = "lava:offerings"
)

// Client talks to the lava.top gateway API.
type Client struct {
	APIKey     string
	APIBaseURL string

	// CacheTTL > 0 enables caching of the offerings catalogue.
	CacheTTL time.Duration

	HTTPClient *http.Client
}

// NewClientFromEnv builds a gateway client from environment configuration.
func NewClientFromEnv() *Client {
	ttlMinutes, _ := strconv.Atoi(env.GetEnv("OFFERINGS_CACHE_TTL_MINUTES", "10"))

	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("LAVA_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("LAVA_API_BASE_URL", defaultAPIBaseURL), "/"),
		CacheTTL:   time.Duration(ttlMinutes) * time.Minute,
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Invoice is the gateway's answer to a created payment.
type Invoice struct {
	ID         string `json:"id"`
	PaymentURL string `json:"paymentUrl"`
	Status     string `json:"status"`
}

// Price is one entry of an offering's price list.
type Price struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Periodicity string  `json:"periodicity"`
}

// Offering is one sellable product with its price list.
type Offering struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Prices      []Price `json:"prices"`
}

type invoiceRequest struct {
	Email         string            `json:"email"`
	OfferID       string            `json:"offerId"`
	Periodicity   string            `json:"periodicity"`
	Currency      string            `json:"currency"`
	BuyerLanguage string            `json:"buyerLanguage"`
	PaymentMethod string            `json:"paymentMethod"`
	ClientUTM     map[string]string `json:"clientUtm"`
}

type productsResponse struct {
	Items []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Offers []struct {
			ID          string  `json:"id"`
			Name        string  `json:"name"`
			Description string  `json:"description"`
			Prices      []Price `json:"prices"`
		} `json:"offers"`
	} `json:"items"`
}

// CreateInvoice asks the gateway for a payment URL for the given buyer.
func (c *Client) CreateInvoice(ctx context.Context, buyerEmail, offerID, periodicity, currency string) (*Invoice, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("LAVA_API_KEY is not configured")
	}

	payload := invoiceRequest{
		Email:         buyerEmail,
		OfferID:       offerID,
		Periodicity:   periodicity,
		Currency:      currency,
		BuyerLanguage: "RU",
		PaymentMethod: "BANK131",
		ClientUTM:     map[string]string{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	// One key per attempt; the gateway deduplicates retried submissions.
	respBody, status, err := c.doWithHeaders(ctx, http.MethodPost, "/api/v2/invoice", body, map[string]string{
		"X-Idempotency-Key": uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("invoice creation failed: status=%d body=%s", status, string(respBody))
	}

	var out Invoice
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.PaymentURL) == "" {
		return nil, errors.New("invoice response has no paymentUrl")
	}
	return &out, nil
}

// ListOfferings returns the sellable offerings with their price lists. The
// result is cached when CacheTTL is set; cache failures fall through to the
// gateway.
func (c *Client) ListOfferings(ctx context.Context) ([]Offering, error) {
	if c.CacheTTL > 0 {
		if cached, err := cache.Get(offeringsCacheKey); err == nil && cached != "" {
			var offerings []Offering
			if err := json.Unmarshal([]byte(cached), &offerings); err == nil {
				return offerings, nil
			}
		}
	}

	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("LAVA_API_KEY is not configured")
	}

	respBody, status, err := c.do(ctx, http.MethodGet, "/api/v2/products", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("offerings request failed: status=%d body=%s", status, string(respBody))
	}

	var products productsResponse
	if err := json.Unmarshal(respBody, &products); err != nil {
		return nil, err
	}

	var offerings []Offering
	for _, item := range products.Items {
		for _, offer := range item.Offers {
			offerings = append(offerings, Offering{
				ID:          offer.ID,
				Name:        offer.Name,
				Description: offer.Description,
				Prices:      offer.Prices,
			})
		}
	}

	if c.CacheTTL > 0 {
		if encoded, err := json.Marshal(offerings); err == nil {
			if err := cache.Set(offeringsCacheKey, string(encoded), c.CacheTTL); err != nil {
				log.Warnf("[Lava] failed to cache offerings: %v", err)
			}
		}
	}
	return offerings, nil
}

// CancelSubscription turns off auto-renewal of the buyer's root contract.
// The gateway answers 200 or 204 on success.
func (c *Client) CancelSubscription(ctx context.Context, buyerEmail, contractID string) (bool, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return false, errors.New("LAVA_API_KEY is not configured")
	}

	payload := map[string]string{
		"contractId": contractID,
		"email":      buyerEmail,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	respBody, status, err := c.do(ctx, http.MethodDelete, "/api/v1/subscriptions", body)
	if err != nil {
		return false, err
	}
	if status == http.StatusOK || status == http.StatusNoContent {
		return true, nil
	}
	return false, fmt.Errorf("subscription cancel failed: status=%d body=%s", status, string(respBody))
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	return c.doWithHeaders(ctx, method, path, body, nil)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.APIKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return respBody, resp.StatusCode, nil
}
