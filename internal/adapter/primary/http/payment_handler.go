package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/input"
	"github.com/labstack/echo/v4"
)

// PaymentHandler is a primary adapter (HTTP handler)
type PaymentHandler struct {
	payments input.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments input.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// PaymentActionRequest represents the HTTP request for a payment action
type PaymentActionRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason,omitempty"`
}

// PaymentResponse represents the HTTP response for a payment operation
type PaymentResponse struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
	Message       string `json:"message,omitempty"`
	ExpiresIn     int    `json:"expires_in,omitempty"`
	PaidAt        string `json:"paid_at,omitempty"`
}

// InitiatePayment handles POST /payments/initiate
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	orderID, userID, _, err := h.bindAction(c)
	if err != nil {
		return err
	}

	result, err := h.payments.InitiatePayment(c.Request().Context(), orderID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, result)
}

// ProcessPayment handles POST /payments/process. It blocks for up to the
// 180s polling window.
func (h *PaymentHandler) ProcessPayment(c echo.Context) error {
	orderID, userID, _, err := h.bindAction(c)
	if err != nil {
		return err
	}

	result, err := h.payments.ProcessWithPolling(c.Request().Context(), orderID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, result)
}

// CheckStatus handles GET /payments/status/:orderId
func (h *PaymentHandler) CheckStatus(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid order ID"})
	}
	userID, err := uuid.Parse(c.QueryParam("user_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid user ID"})
	}

	result, err := h.payments.CheckStatus(c.Request().Context(), orderID, userID)
	if err != nil {
		return writeError(c, err)
	}
	// Status checks always answer 200; the body carries the outcome.
	return c.JSON(http.StatusOK, toResponse(result))
}

// CancelPayment handles POST /payments/cancel
func (h *PaymentHandler) CancelPayment(c echo.Context) error {
	orderID, userID, reason, err := h.bindAction(c)
	if err != nil {
		return err
	}

	if err := h.payments.CancelPendingPayment(c.Request().Context(), orderID, userID, reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// RefundPayment handles POST /payments/refund
func (h *PaymentHandler) RefundPayment(c echo.Context) error {
	orderID, userID, _, err := h.bindAction(c)
	if err != nil {
		return err
	}

	result, err := h.payments.RefundPayment(c.Request().Context(), orderID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, result)
}

func (h *PaymentHandler) bindAction(c echo.Context) (orderID, userID uuid.UUID, reason string, err error) {
	var req PaymentActionRequest
	if err := c.Bind(&req); err != nil {
		return uuid.Nil, uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	orderID, perr := uuid.Parse(req.OrderID)
	if perr != nil {
		return uuid.Nil, uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, "Invalid order ID")
	}
	userID, perr = uuid.Parse(req.UserID)
	if perr != nil {
		return uuid.Nil, uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}
	return orderID, userID, req.Reason, nil
}

// writeResult answers 200 for pending and settled outcomes, 400 when the
// attempt failed or timed out.
func writeResult(c echo.Context, result *input.PaymentResult) error {
	status := http.StatusOK
	if result.Status == core.AttemptFailed || result.Status == core.AttemptTimeout {
		status = http.StatusBadRequest
	}
	return c.JSON(status, toResponse(result))
}

func toResponse(result *input.PaymentResult) PaymentResponse {
	resp := PaymentResponse{
		OrderID:       result.OrderID.String(),
		TransactionID: result.TransactionID,
		Status:        string(result.Status),
		PaymentStatus: string(result.PaymentStatus),
		OrderStatus:   string(result.OrderStatus),
		Message:       userMessage(result),
	}
	if result.ExpiresAt != nil {
		if remaining := int(time.Until(*result.ExpiresAt).Seconds()); remaining > 0 {
			resp.ExpiresIn = remaining
		}
	}
	if result.PaidAt != nil {
		resp.PaidAt = result.PaidAt.Format(time.RFC3339)
	}
	return resp
}

// userMessage keeps customer-facing wording distinct per outcome: timeouts
// are "check back later", terminal failures are retryable.
func userMessage(result *input.PaymentResult) string {
	switch result.Status {
	case core.AttemptTimeout:
		return "We could not confirm your payment yet. If you approved it, it will be confirmed shortly; check back later."
	case core.AttemptFailed:
		if result.Message != "" {
			return result.Message
		}
		return "Payment failed. Please try again."
	case core.AttemptUnknown:
		return "Payment status is temporarily unavailable. Please check back later."
	default:
		return result.Message
	}
}

// writeError maps service errors onto HTTP status codes.
func writeError(c echo.Context, err error) error {
	var validationErr *core.ValidationError
	var authErr *core.AuthenticationError

	switch {
	case errors.Is(err, core.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Order not found"})
	case errors.Is(err, core.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "You are not allowed to act on this order"})
	case errors.Is(err, core.ErrAlreadyPaid),
		errors.Is(err, core.ErrUnsupportedMethod),
		errors.Is(err, core.ErrMissingPhoneNumber),
		errors.Is(err, core.ErrInvalidState):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
	case errors.As(err, &authErr):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Payment provider authentication failed"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to process payment request"})
	}
}
