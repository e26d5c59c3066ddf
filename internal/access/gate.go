// Package access resolves API-key tiers and enforces per-tier request
// budgets over fixed one-minute windows.
package access

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cardsmith/og-card-service/internal/config"
	"github.com/cardsmith/og-card-service/internal/ogcard"
)

const windowLength = time.Minute

// Decision records the outcome of an authorization check. Remaining and
// ResetAt are reported even for allowed requests so the transport can set
// rate-limit headers.
type Decision struct {
	Tier      config.Tier
	KeyName   string
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type bucket struct {
	count       int
	windowStart time.Time
}

// Gate authorizes requests against configured API keys and tier budgets.
type Gate struct {
	requireKey bool
	keys       map[string]config.APIKeyEntry
	budgets    map[config.Tier]int
	clock      ogcard.Clock

	mu      sync.Mutex
	buckets map[string]bucket
	// lastSweep bounds how often stale buckets are cleared.
	lastSweep time.Time
}

// New builds a Gate from the loaded configuration.
func New(cfg config.Config, clock ogcard.Clock) *Gate {
	keys := make(map[string]config.APIKeyEntry, len(cfg.Auth.Keys))
	for _, entry := range cfg.Auth.Keys {
		keys[entry.Key] = entry
	}
	return &Gate{
		requireKey: cfg.Auth.RequireKey,
		keys:       keys,
		budgets: map[config.Tier]int{
			config.TierInternal:  cfg.RateLimit.InternalPerMinute,
			config.TierOutsider:  cfg.RateLimit.OutsiderPerMinute,
			config.TierAnonymous: cfg.RateLimit.AnonymousPerMinute,
		},
		clock:   clock,
		buckets: make(map[string]bucket),
	}
}

// Authorize checks the supplied API key and the caller's budget for the
// current window. A supplied key that matches nothing is rejected outright;
// an absent key falls back to the anonymous tier unless keys are required.
func (g *Gate) Authorize(apiKey, remoteAddr string) (Decision, error) {
	tier := config.TierAnonymous
	keyName := ""
	identity := clientHost(remoteAddr)

	if apiKey != "" {
		entry, ok := g.keys[apiKey]
		if !ok {
			return Decision{}, ogcard.NewError(ogcard.CodeUnauthorized, "unknown API key", http.StatusUnauthorized)
		}
		tier = config.Tier(entry.Tier)
		keyName = entry.Name
		identity = entry.Name
	} else if g.requireKey {
		return Decision{}, ogcard.NewError(ogcard.CodeUnauthorized, "API key required", http.StatusUnauthorized)
	}

	limit := g.budgets[tier]
	now := g.clock.Now()

	// A budget of zero or less disables limiting for the tier.
	if limit <= 0 {
		return Decision{Tier: tier, KeyName: keyName, Limit: 0, Remaining: -1, ResetAt: now.Add(windowLength)}, nil
	}

	key := string(tier) + ":" + identity

	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweepLocked(now)

	b := g.buckets[key]
	if now.Sub(b.windowStart) >= windowLength {
		b = bucket{windowStart: now}
	}
	resetAt := b.windowStart.Add(windowLength)

	if b.count >= limit {
		retryAfter := resetAt.Sub(now)
		seconds := int(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			seconds++
		}
		if seconds < 1 {
			seconds = 1
		}
		err := ogcard.NewError(ogcard.CodeRateLimited,
			fmt.Sprintf("rate limit of %d requests per minute exceeded", limit),
			http.StatusTooManyRequests).
			WithDetails(map[string]any{"retry_after_seconds": seconds})
		return Decision{Tier: tier, KeyName: keyName, Limit: limit, Remaining: 0, ResetAt: resetAt}, err
	}

	b.count++
	g.buckets[key] = b

	return Decision{
		Tier:      tier,
		KeyName:   keyName,
		Limit:     limit,
		Remaining: limit - b.count,
		ResetAt:   resetAt,
	}, nil
}

// sweepLocked drops buckets whose window has long expired. Runs at most
// once per window to keep Authorize cheap.
func (g *Gate) sweepLocked(now time.Time) {
	if now.Sub(g.lastSweep) < windowLength {
		return
	}
	g.lastSweep = now
	for key, b := range g.buckets {
		if now.Sub(b.windowStart) >= 2*windowLength {
			delete(g.buckets, key)
		}
	}
}

func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}
