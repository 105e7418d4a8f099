package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSleep is a zero-delay clock for retry and poll loops.
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestTokenCache_ValidInsideWindow(t *testing.T) {
	var cache tokenCache
	now := time.Now()

	cache.set("tok", time.Hour, now)

	got, ok := cache.get(now)
	assert.True(t, ok)
	assert.Equal(t, "tok", got)
}

func TestTokenCache_RefreshesInsideExpiryBuffer(t *testing.T) {
	var cache tokenCache
	now := time.Now()

	cache.set("tok", time.Hour, now)

	// 4 minutes before expiry is inside the 5 minute buffer.
	_, ok := cache.get(now.Add(56 * time.Minute))
	assert.False(t, ok)
}

func TestTokenCache_EmptyMisses(t *testing.T) {
	var cache tokenCache
	_, ok := cache.get(time.Now())
	assert.False(t, ok)
}

func TestMTNClient_TokenReuse(t *testing.T) {
	var authCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collection/token/", r.URL.Path)
		atomic.AddInt32(&authCalls, 1)
		w.Write([]byte(`{"access_token":"tok-1","token_type":"access_token","expires_in":3600}`))
	}))
	defer server.Close()

	client := NewMTNClient(MTNConfig{BaseURL: server.URL})
	client.sleep = noSleep

	first, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)
	second, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, "tok-1", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&authCalls), "second call inside the validity window must not hit the network")
}

func TestMTNClient_TokenRetryExhaustion(t *testing.T) {
	var authCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewMTNClient(MTNConfig{BaseURL: server.URL})
	client.sleep = noSleep

	_, err := client.GetAccessToken(context.Background())
	require.Error(t, err)
	var authErr *core.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(maxAuthAttempts), atomic.LoadInt32(&authCalls))
}
