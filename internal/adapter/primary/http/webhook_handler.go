package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/input"
	"github.com/labstack/echo/v4"
)

// Signature header names, one per provider's callback configuration.
const (
	MTNSignatureHeader    = "X-Signature"
	AirtelSignatureHeader = "X-Auth-Signature"
)

// WebhookHandler is the primary adapter for provider push notifications.
type WebhookHandler struct {
	webhooks input.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks input.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// MTNCallback handles POST /payments/mtn/callback
func (h *WebhookHandler) MTNCallback(c echo.Context) error {
	return h.handle(c, core.ProviderMTNMobileMoney, MTNSignatureHeader)
}

// AirtelCallback handles POST /payments/airtel/callback
func (h *WebhookHandler) AirtelCallback(c echo.Context) error {
	return h.handle(c, core.ProviderAirtelMoney, AirtelSignatureHeader)
}

func (h *WebhookHandler) handle(c echo.Context, provider core.PaymentProvider, signatureHeader string) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read payload"})
	}

	err = h.webhooks.HandleCallback(c.Request().Context(), provider, payload, c.Request().Header.Get(signatureHeader))
	if err != nil {
		var validationErr *core.ValidationError
		switch {
		case errors.Is(err, core.ErrInvalidSignature):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		case errors.As(err, &validationErr):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
		case errors.Is(err, core.ErrOrderNotFound):
			// Unknown reference: answer 404 so the provider retries; the
			// order row may not have landed yet.
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown transaction reference"})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to process callback"})
		}
	}

	// 200 covers idempotent no-ops too, which is what stops provider retry
	// storms.
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
