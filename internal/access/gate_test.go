package access

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cardsmith/og-card-service/internal/config"
	"github.com/cardsmith/og-card-service/internal/ogcard"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			Keys: []config.APIKeyEntry{
				{Name: "ops", Key: "key-internal", Tier: string(config.TierInternal)},
				{Name: "partner", Key: "key-outsider", Tier: string(config.TierOutsider)},
			},
		},
		RateLimit: config.RateLimitConfig{
			InternalPerMinute:  0,
			OutsiderPerMinute:  3,
			AnonymousPerMinute: 2,
		},
	}
}

func newTestGate(cfg config.Config) (*Gate, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	return New(cfg, clock), clock
}

func requireCode(t *testing.T, err error, code string) *ogcard.Error {
	t.Helper()
	coded, ok := ogcard.AsError(err)
	require.True(t, ok, "expected coded error, got %v", err)
	require.Equal(t, code, coded.Code)
	return coded
}

func TestAuthorizeKnownKeysResolveTier(t *testing.T) {
	t.Parallel()
	gate, _ := newTestGate(testConfig())

	decision, err := gate.Authorize("key-outsider", "203.0.113.9:1234")
	require.NoError(t, err)
	require.Equal(t, config.TierOutsider, decision.Tier)
	require.Equal(t, "partner", decision.KeyName)
	require.Equal(t, 3, decision.Limit)
	require.Equal(t, 2, decision.Remaining)
}

func TestAuthorizeUnknownKeyRejected(t *testing.T) {
	t.Parallel()
	gate, _ := newTestGate(testConfig())

	_, err := gate.Authorize("nope", "203.0.113.9:1234")
	coded := requireCode(t, err, ogcard.CodeUnauthorized)
	require.Equal(t, http.StatusUnauthorized, coded.Status)
}

func TestAuthorizeRequireKeyRejectsAnonymous(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Auth.RequireKey = true
	gate, _ := newTestGate(cfg)

	_, err := gate.Authorize("", "203.0.113.9:1234")
	requireCode(t, err, ogcard.CodeUnauthorized)
}

func TestAuthorizeAnonymousTierWhenKeyOptional(t *testing.T) {
	t.Parallel()
	gate, _ := newTestGate(testConfig())

	decision, err := gate.Authorize("", "203.0.113.9:1234")
	require.NoError(t, err)
	require.Equal(t, config.TierAnonymous, decision.Tier)
	require.Empty(t, decision.KeyName)
	require.Equal(t, 2, decision.Limit)
}

func TestAuthorizeBudgetExhaustion(t *testing.T) {
	t.Parallel()
	gate, clock := newTestGate(testConfig())

	for i := 0; i < 3; i++ {
		decision, err := gate.Authorize("key-outsider", "203.0.113.9:1234")
		require.NoError(t, err)
		require.Equal(t, 3-i-1, decision.Remaining)
	}

	_, err := gate.Authorize("key-outsider", "203.0.113.9:1234")
	coded := requireCode(t, err, ogcard.CodeRateLimited)
	require.Equal(t, http.StatusTooManyRequests, coded.Status)
	retry, ok := coded.Details["retry_after_seconds"].(int)
	require.True(t, ok)
	require.GreaterOrEqual(t, retry, 1)
	require.LessOrEqual(t, retry, 60)

	// A fresh window restores the full budget.
	clock.advance(time.Minute)
	decision, err := gate.Authorize("key-outsider", "203.0.113.9:1234")
	require.NoError(t, err)
	require.Equal(t, 2, decision.Remaining)
}

func TestAuthorizeZeroBudgetDisablesLimiting(t *testing.T) {
	t.Parallel()
	gate, _ := newTestGate(testConfig())

	for i := 0; i < 200; i++ {
		decision, err := gate.Authorize("key-internal", "203.0.113.9:1234")
		require.NoError(t, err)
		require.Equal(t, config.TierInternal, decision.Tier)
		require.Equal(t, 0, decision.Limit)
	}
}

func TestAuthorizeAnonymousBucketsKeyedByHost(t *testing.T) {
	t.Parallel()
	gate, _ := newTestGate(testConfig())

	for i := 0; i < 2; i++ {
		_, err := gate.Authorize("", "203.0.113.9:1111")
		require.NoError(t, err)
	}
	_, err := gate.Authorize("", "203.0.113.9:2222")
	requireCode(t, err, ogcard.CodeRateLimited)

	// A different client host has its own budget.
	_, err = gate.Authorize("", "198.51.100.4:1111")
	require.NoError(t, err)
}

func TestAuthorizeConcurrentCallersStayWithinBudget(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RateLimit.OutsiderPerMinute = 50
	gate, _ := newTestGate(cfg)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gate.Authorize("key-outsider", "203.0.113.9:1234"); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, allowed)
}

func TestSweepDropsExpiredBuckets(t *testing.T) {
	t.Parallel()
	gate, clock := newTestGate(testConfig())

	_, err := gate.Authorize("", "203.0.113.9:1111")
	require.NoError(t, err)
	_, err = gate.Authorize("", "198.51.100.4:1111")
	require.NoError(t, err)

	clock.advance(3 * time.Minute)
	_, err = gate.Authorize("", "203.0.113.9:1111")
	require.NoError(t, err)

	gate.mu.Lock()
	defer gate.mu.Unlock()
	require.Len(t, gate.buckets, 1)
}
