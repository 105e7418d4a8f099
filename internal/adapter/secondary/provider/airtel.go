package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/output"
)

// AirtelConfig carries the Airtel Money API credentials. Populated from the
// environment by main.
type AirtelConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	Country       string // "RW"
	WebhookSecret string
}

// AirtelClient talks to the Airtel Money merchant and standard APIs.
type AirtelClient struct {
	client
	cfg AirtelConfig
}

// NewAirtelClient creates an Airtel Money client with its own token cache.
func NewAirtelClient(cfg AirtelConfig) *AirtelClient {
	return &AirtelClient{client: newClient("airtel_money"), cfg: cfg}
}

// Name returns the provider routing key.
func (c *AirtelClient) Name() core.PaymentProvider {
	return core.ProviderAirtelMoney
}

// ValidatePhoneNumber reports whether raw is a valid Rwandan MSISDN.
func (c *AirtelClient) ValidatePhoneNumber(raw string) bool {
	return ValidatePhoneNumber(raw)
}

// FormatPhoneNumber canonicalises raw to 2507XXXXXXXX.
func (c *AirtelClient) FormatPhoneNumber(raw string) string {
	return FormatPhoneNumber(raw)
}

type airtelTokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type airtelTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// GetAccessToken returns the cached bearer token, running the OAuth client
// credentials grant when the cache is stale.
func (c *AirtelClient) GetAccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.token.get(c.now()); ok {
		return tok, nil
	}

	body := airtelTokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		GrantType:    "client_credentials",
	}
	var resp airtelTokenResponse
	err := c.withRetry(ctx, maxAuthAttempts, func() error {
		return c.doJSON(ctx, heavyCallTimeout, http.MethodPost, c.cfg.BaseURL+"/auth/oauth2/token", nil, body, &resp)
	})
	if err != nil {
		return "", &core.AuthenticationError{Provider: "airtel_money", Err: err}
	}

	c.token.set(resp.AccessToken, time.Duration(resp.ExpiresIn)*time.Second, c.now())
	return resp.AccessToken, nil
}

func (c *AirtelClient) authHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"X-Country":     c.cfg.Country,
		"X-Currency":    currencyRWF,
	}
}

type airtelSubscriber struct {
	Country  string `json:"country"`
	Currency string `json:"currency"`
	MSISDN   string `json:"msisdn"`
}

type airtelTransaction struct {
	Amount   float64 `json:"amount"`
	Country  string  `json:"country"`
	Currency string  `json:"currency"`
	ID       string  `json:"id"`
}

type airtelPaymentBody struct {
	Reference   string            `json:"reference"`
	Subscriber  airtelSubscriber  `json:"subscriber"`
	Transaction airtelTransaction `json:"transaction"`
}

// RequestPayment initiates an Airtel Money push. The reference is a
// composed string minted here; it is also the transaction id the status API
// is queried by.
func (c *AirtelClient) RequestPayment(ctx context.Context, req output.PaymentRequest) *core.PaymentAttempt {
	if req.Amount <= 0 {
		return validationFailure("amount must be greater than zero")
	}
	if !ValidatePhoneNumber(req.PhoneNumber) {
		return validationFailure("phone number is not a valid Rwandan MSISDN")
	}

	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return authFailure(err)
	}

	msisdn := FormatPhoneNumber(req.PhoneNumber)
	reference := fmt.Sprintf("AM-%s-%d", shortID(req.OrderID.String()), c.now().Unix())
	body := airtelPaymentBody{
		Reference: fmt.Sprintf("Order %s", req.OrderID),
		Subscriber: airtelSubscriber{
			Country:  c.cfg.Country,
			Currency: currencyRWF,
			MSISDN:   nationalNumber(msisdn),
		},
		Transaction: airtelTransaction{
			Amount:   req.Amount,
			Country:  c.cfg.Country,
			Currency: currencyRWF,
			ID:       reference,
		},
	}

	err = c.withRetry(ctx, maxRequestAttempts, func() error {
		return c.doJSON(ctx, heavyCallTimeout, http.MethodPost, c.cfg.BaseURL+"/merchant/v1/payments/", c.authHeaders(token), body, nil)
	})
	if err != nil {
		log.Printf("Airtel payment push failed for %s: %v", MaskPhoneNumber(msisdn), err)
		return requestFailure(err)
	}

	log.Printf("Airtel payment %s pushed to %s", reference, MaskPhoneNumber(msisdn))
	expires := c.now().Add(paymentWindow)
	return &core.PaymentAttempt{
		Success:       true,
		Status:        core.AttemptPending,
		TransactionID: reference,
		ExpiresAt:     &expires,
	}
}

type airtelStatusResponse struct {
	Data struct {
		Transaction struct {
			ID            string `json:"id"`
			AirtelMoneyID string `json:"airtel_money_id"`
			StatusCode    string `json:"status"`
			Message       string `json:"message"`
		} `json:"transaction"`
	} `json:"data"`
}

// CheckPaymentStatus queries the transaction once. Airtel's TS means
// settled, TF means failed; every other code (TIP, TA, ...) is still in
// progress. Network failure maps to UNKNOWN rather than an error.
func (c *AirtelClient) CheckPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return unknownAttempt(err.Error())
	}

	var resp airtelStatusResponse
	err = c.doJSON(ctx, lightCallTimeout, http.MethodGet, c.cfg.BaseURL+"/standard/v1/payments/"+reference, c.authHeaders(token), nil, &resp)
	if err != nil {
		return unknownAttempt(err.Error())
	}

	tx := resp.Data.Transaction
	switch tx.StatusCode {
	case "TS":
		return &core.PaymentAttempt{Success: true, Status: core.AttemptCompleted, TransactionID: reference, Message: tx.Message}
	case "TF":
		return &core.PaymentAttempt{Status: core.AttemptFailed, TransactionID: reference, Message: tx.Message}
	default:
		return &core.PaymentAttempt{Status: core.AttemptPending, TransactionID: reference}
	}
}

// PollPaymentStatus blocks checking the payment until it settles or the
// 180s window lapses.
func (c *AirtelClient) PollPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt {
	return c.poll(ctx, func(ctx context.Context) *core.PaymentAttempt {
		return c.CheckPaymentStatus(ctx, reference)
	})
}

type airtelRefundBody struct {
	Transaction struct {
		AirtelMoneyID string `json:"airtel_money_id"`
	} `json:"transaction"`
}

// RefundPayment reverses a settled transaction, with the same retry policy
// as initiation.
func (c *AirtelClient) RefundPayment(ctx context.Context, reference string, amount float64) *core.PaymentAttempt {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return authFailure(err)
	}

	var body airtelRefundBody
	body.Transaction.AirtelMoneyID = reference
	err = c.withRetry(ctx, maxRequestAttempts, func() error {
		return c.doJSON(ctx, heavyCallTimeout, http.MethodPost, c.cfg.BaseURL+"/standard/v1/payments/refund", c.authHeaders(token), body, nil)
	})
	if err != nil {
		return requestFailure(err)
	}
	return &core.PaymentAttempt{Success: true, Status: core.AttemptCompleted, TransactionID: reference}
}

// ValidateAccount best-effort checks that the subscriber exists and can
// transact. Every failure path reports false; it never blocks a payment.
func (c *AirtelClient) ValidateAccount(ctx context.Context, phoneNumber string) bool {
	if !ValidatePhoneNumber(phoneNumber) {
		return false
	}
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return false
	}

	msisdn := nationalNumber(FormatPhoneNumber(phoneNumber))
	err = c.doJSON(ctx, lightCallTimeout, http.MethodGet, c.cfg.BaseURL+"/standard/v1/users/"+msisdn, c.authHeaders(token), nil, nil)
	return err == nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature of a callback.
func (c *AirtelClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	return verifySignature(c.cfg.WebhookSecret, payload, signature)
}

type airtelCallbackPayload struct {
	Transaction struct {
		ID         string `json:"id"`
		StatusCode string `json:"status_code"`
		Message    string `json:"message"`
	} `json:"transaction"`
}

// ParseWebhook extracts the canonical event from an Airtel callback body.
func (c *AirtelClient) ParseWebhook(payload []byte) (*output.WebhookEvent, error) {
	var body airtelCallbackPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("malformed Airtel callback: %w", err)
	}
	if body.Transaction.ID == "" {
		return nil, fmt.Errorf("Airtel callback is missing transaction id")
	}

	event := &output.WebhookEvent{Reference: body.Transaction.ID, Message: body.Transaction.Message}
	switch body.Transaction.StatusCode {
	case "TS":
		event.Status = core.AttemptCompleted
	case "TF":
		event.Status = core.AttemptFailed
	default:
		event.Status = core.AttemptPending
	}
	return event, nil
}

// shortID keeps the first uuid segment, enough to correlate a reference
// with its order in provider dashboards.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
