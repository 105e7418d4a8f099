package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/output"
)

// MTNConfig carries the MTN MoMo collection API credentials. Populated from
// the environment by main.
type MTNConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string // "sandbox" or the production market code
	CallbackURL       string
	WebhookSecret     string
}

// MTNClient talks to the MTN Mobile Money collection and disbursement APIs.
type MTNClient struct {
	client
	cfg MTNConfig
}

// NewMTNClient creates an MTN MoMo client with its own token cache.
func NewMTNClient(cfg MTNConfig) *MTNClient {
	return &MTNClient{client: newClient("mtn_momo"), cfg: cfg}
}

// Name returns the provider routing key.
func (c *MTNClient) Name() core.PaymentProvider {
	return core.ProviderMTNMobileMoney
}

// ValidatePhoneNumber reports whether raw is a valid Rwandan MSISDN.
func (c *MTNClient) ValidatePhoneNumber(raw string) bool {
	return ValidatePhoneNumber(raw)
}

// FormatPhoneNumber canonicalises raw to 2507XXXXXXXX.
func (c *MTNClient) FormatPhoneNumber(raw string) string {
	return FormatPhoneNumber(raw)
}

type mtnTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// GetAccessToken returns the cached bearer token, authenticating with HTTP
// Basic plus the subscription key when the cache is stale.
func (c *MTNClient) GetAccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.token.get(c.now()); ok {
		return tok, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.APIUser + ":" + c.cfg.APIKey))
	var resp mtnTokenResponse
	err := c.withRetry(ctx, maxAuthAttempts, func() error {
		return c.doJSON(ctx, heavyCallTimeout, http.MethodPost, c.cfg.BaseURL+"/collection/token/", map[string]string{
			"Authorization":             "Basic " + basic,
			"Ocp-Apim-Subscription-Key": c.cfg.SubscriptionKey,
		}, nil, &resp)
	})
	if err != nil {
		return "", &core.AuthenticationError{Provider: "mtn_momo", Err: err}
	}

	c.token.set(resp.AccessToken, time.Duration(resp.ExpiresIn)*time.Second, c.now())
	return resp.AccessToken, nil
}

type mtnPaymentBody struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payer        mtnPayer `json:"payer"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnPayer struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// RequestPayment initiates a request-to-pay. The reference is a freshly
// minted UUID carried in the X-Reference-Id header, as the collection API
// requires.
func (c *MTNClient) RequestPayment(ctx context.Context, req output.PaymentRequest) *core.PaymentAttempt {
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

	reference := uuid.New().String()
	msisdn := FormatPhoneNumber(req.PhoneNumber)
	body := mtnPaymentBody{
		Amount:       strconv.FormatFloat(req.Amount, 'f', -1, 64),
		Currency:     currencyRWF,
		ExternalID:   req.OrderID.String(),
		Payer:        mtnPayer{PartyIDType: "MSISDN", PartyID: msisdn},
		PayerMessage: fmt.Sprintf("Payment for order %s", req.OrderID),
		PayeeNote:    req.CustomerName,
	}

	err = c.withRetry(ctx, maxRequestAttempts, func() error {
		return c.doJSON(ctx, heavyCallTimeout, http.MethodPost, c.cfg.BaseURL+"/collection/v1_0/requesttopay", map[string]string{
			"Authorization":             "Bearer " + token,
			"X-Reference-Id":            reference,
			"X-Target-Environment":      c.cfg.TargetEnvironment,
			"X-Callback-Url":            c.cfg.CallbackURL,
			"Ocp-Apim-Subscription-Key": c.cfg.SubscriptionKey,
		}, body, nil)
	})
	if err != nil {
		log.Printf("MTN request to pay failed for %s: %v", MaskPhoneNumber(msisdn), err)
		return requestFailure(err)
	}

	log.Printf("MTN request to pay %s accepted for %s", reference, MaskPhoneNumber(msisdn))
	expires := c.now().Add(paymentWindow)
	return &core.PaymentAttempt{
		Success:       true,
		Status:        core.AttemptPending,
		TransactionID: reference,
		ExpiresAt:     &expires,
	}
}

type mtnStatusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// CheckPaymentStatus queries the request-to-pay once and maps MTN's
// PENDING/SUCCESSFUL/FAILED to the canonical statuses. Network failure maps
// to UNKNOWN rather than an error.
func (c *MTNClient) CheckPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return unknownAttempt(err.Error())
	}

	var resp mtnStatusResponse
	err = c.doJSON(ctx, lightCallTimeout, http.MethodGet, c.cfg.BaseURL+"/collection/v1_0/requesttopay/"+reference, map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Target-Environment":      c.cfg.TargetEnvironment,
		"Ocp-Apim-Subscription-Key": c.cfg.SubscriptionKey,
	}, nil, &resp)
	if err != nil {
		return unknownAttempt(err.Error())
	}

	switch resp.Status {
	case "SUCCESSFUL":
		return &core.PaymentAttempt{Success: true, Status: core.AttemptCompleted, TransactionID: reference}
	case "FAILED":
		return &core.PaymentAttempt{Status: core.AttemptFailed, TransactionID: reference, Message: resp.Reason}
	case "PENDING":
		return &core.PaymentAttempt{Status: core.AttemptPending, TransactionID: reference}
	default:
		return unknownAttempt("unexpected MTN status " + resp.Status)
	}
}

// PollPaymentStatus blocks checking the payment until it settles or the
// 180s window lapses.
func (c *MTNClient) PollPaymentStatus(ctx context.Context, reference string) *core.PaymentAttempt {
	return c.poll(ctx, func(ctx context.Context) *core.PaymentAttempt {
		return c.CheckPaymentStatus(ctx, reference)
	})
}

type mtnRefundBody struct {
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	ReferenceIDToRefund string `json:"referenceIdToRefund"`
}

// RefundPayment refunds a settled request-to-pay through the disbursement
// API, with the same retry policy as initiation.
func (c *MTNClient) RefundPayment(ctx context.Context, reference string, amount float64) *core.PaymentAttempt {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return authFailure(err)
	}

	refundRef := uuid.New().String()
	body := mtnRefundBody{
		Amount:              strconv.FormatFloat(amount, 'f', -1, 64),
		Currency:            currencyRWF,
		ReferenceIDToRefund: reference,
	}
	err = c.withRetry(ctx, maxRequestAttempts, func() error {
		return c.doJSON(ctx, heavyCallTimeout, http.MethodPost, c.cfg.BaseURL+"/disbursement/v1_0/refund", map[string]string{
			"Authorization":             "Bearer " + token,
			"X-Reference-Id":            refundRef,
			"X-Target-Environment":      c.cfg.TargetEnvironment,
			"Ocp-Apim-Subscription-Key": c.cfg.SubscriptionKey,
		}, body, nil)
	})
	if err != nil {
		return requestFailure(err)
	}
	return &core.PaymentAttempt{Success: true, Status: core.AttemptCompleted, TransactionID: refundRef}
}

type mtnAccountResponse struct {
	Result bool `json:"result"`
}

// ValidateAccount best-effort checks that the MSISDN holds an active MoMo
// account. Every failure path reports false; it never blocks a payment.
func (c *MTNClient) ValidateAccount(ctx context.Context, phoneNumber string) bool {
	if !ValidatePhoneNumber(phoneNumber) {
		return false
	}
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return false
	}

	msisdn := FormatPhoneNumber(phoneNumber)
	var resp mtnAccountResponse
	err = c.doJSON(ctx, lightCallTimeout, http.MethodGet, c.cfg.BaseURL+"/collection/v1_0/accountholder/msisdn/"+msisdn+"/active", map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Target-Environment":      c.cfg.TargetEnvironment,
		"Ocp-Apim-Subscription-Key": c.cfg.SubscriptionKey,
	}, nil, &resp)
	if err != nil {
		return false
	}
	return resp.Result
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature of a callback.
func (c *MTNClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	return verifySignature(c.cfg.WebhookSecret, payload, signature)
}

type mtnCallbackPayload struct {
	ReferenceID string `json:"referenceId"`
	ExternalID  string `json:"externalId"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
}

// ParseWebhook extracts the canonical event from an MTN callback body.
func (c *MTNClient) ParseWebhook(payload []byte) (*output.WebhookEvent, error) {
	var body mtnCallbackPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("malformed MTN callback: %w", err)
	}
	if body.ReferenceID == "" {
		return nil, fmt.Errorf("MTN callback is missing referenceId")
	}

	event := &output.WebhookEvent{Reference: body.ReferenceID, Message: body.Reason}
	switch body.Status {
	case "SUCCESSFUL":
		event.Status = core.AttemptCompleted
	case "FAILED":
		event.Status = core.AttemptFailed
	default:
		event.Status = core.AttemptPending
	}
	return event, nil
}
