package provider

import (
	"sync"
	"time"
)

// tokenExpiryBuffer triggers refresh before the token actually lapses, so a
// call started just inside the window cannot ride an expired token.
const tokenExpiryBuffer = 5 * time.Minute

// tokenCache holds one bearer token per provider client. It lives in
// process memory only and is lost on restart. The mutex guards the slot,
// not the fetch: concurrent refreshes may each hit the auth endpoint, which
// is an accepted cost since auth calls are cheap and idempotent.
type tokenCache struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

// get returns the cached token if it is still comfortably inside its
// validity window.
func (t *tokenCache) get(now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.value == "" || !now.Add(tokenExpiryBuffer).Before(t.expiresAt) {
		return "", false
	}
	return t.value, true
}

func (t *tokenCache) set(value string, ttl time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = value
	t.expiresAt = now.Add(ttl)
}
