package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/sony/gobreaker"
)

const (
	// heavyCallTimeout bounds auth, initiation and refund calls.
	heavyCallTimeout = 30 * time.Second
	// lightCallTimeout bounds status and account validation calls.
	lightCallTimeout = 10 * time.Second

	// maxAuthAttempts is the total number of token acquisition tries.
	maxAuthAttempts = 3
	// maxRequestAttempts is the total number of initiation/refund tries.
	maxRequestAttempts = 3

	// pollMaxAttempts * pollInterval is the 180s customer-facing window.
	pollMaxAttempts = 36
	pollInterval    = 5 * time.Second

	paymentWindow = 180 * time.Second

	currencyRWF = "RWF"
)

// sleepFunc waits for d or until ctx is cancelled. Injected so retry and
// poll loops run with a zero-delay clock in tests.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// httpError is a non-2xx provider response. Status >= 500 is transient and
// eligible for retry; 4xx is a permanent rejection.
type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, e.Body)
}

func (e *httpError) transient() bool {
	return e.Status >= 500
}

// transientError reports whether err is worth retrying. No response at all
// (transport failure, per-call timeout, open breaker) is transient; a
// definitive 4xx rejection and caller cancellation are not.
func transientError(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.transient()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// client is the shared transport core embedded by both provider clients:
// per-call timeouts, a circuit breaker around every round trip, exponential
// backoff retries and the token cache.
type client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	token   tokenCache

	// test seams
	sleep        sleepFunc
	now          func() time.Time
	pollAttempts int
	pollEvery    time.Duration
}

func newClient(name string) client {
	return client{
		name: name,
		http: &http.Client{},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		sleep:        defaultSleep,
		now:          time.Now,
		pollAttempts: pollMaxAttempts,
		pollEvery:    pollInterval,
	}
}

// doJSON performs one round trip through the breaker with its own timeout,
// independent of the overall payment window. A non-nil out gets the decoded
// JSON response body. Non-2xx statuses come back as *httpError.
func (c *client) doJSON(ctx context.Context, timeout time.Duration, method, url string, headers map[string]string, body, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(callCtx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, &httpError{Status: res.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if out != nil {
		data := raw.([]byte)
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", c.name, err)
			}
		}
	}
	return nil
}

// withRetry runs op up to attempts times, sleeping 2^n seconds (1s, 2s, ...)
// before each retry. Only transient errors are retried; the last error wins.
func (c *client) withRetry(ctx context.Context, attempts int, op func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return err
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if !transientError(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// poll runs check every interval until a terminal outcome, ctx cancellation
// or the attempt ceiling. Exhausting the ceiling is TIMEOUT, which is
// distinct from FAILED: the payment may still land via webhook.
func (c *client) poll(ctx context.Context, check func(context.Context) *core.PaymentAttempt) *core.PaymentAttempt {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		res := check(ctx)
		if res.Status == core.AttemptCompleted || res.Status == core.AttemptFailed {
			return res
		}
		if err := c.sleep(ctx, c.pollEvery); err != nil {
			return unknownAttempt("status polling stopped: " + err.Error())
		}
	}
	return timeoutAttempt()
}

// verifySignature checks an HMAC-SHA256 hex signature over the raw payload.
func verifySignature(secret string, payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
