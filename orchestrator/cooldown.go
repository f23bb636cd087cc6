package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultRateLimitCooldown is used when a rate_limited notification's
// payload carries no explicit advised duration.
const defaultRateLimitCooldown = 60 * time.Second

// rateLimitCooldown extracts an advised cooldown from a rate_limited
// Notification's payload, falling back to defaultRateLimitCooldown when
// the backend didn't report one (or reported something unparseable).
func rateLimitCooldown(payload json.RawMessage) time.Duration {
	var probe struct {
		CooldownSeconds float64 `json:"cooldown_seconds"`
	}
	if len(payload) == 0 {
		return defaultRateLimitCooldown
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.CooldownSeconds <= 0 {
		return defaultRateLimitCooldown
	}
	return time.Duration(probe.CooldownSeconds * float64(time.Second))
}

// CooldownCache tracks advised rate-limit cooldowns keyed by backend_id.
// It is regenerable scratch state, never canonical (spec §3 invariant 2):
// losing it just means the orchestrator tries a turn a little earlier than
// the backend would have liked, not a correctness problem.
type CooldownCache interface {
	// Set records that backendID should not be retried until after d.
	Set(ctx context.Context, backendID string, d time.Duration) error

	// Until returns the time a backend becomes eligible again, and whether
	// a cooldown is currently in effect.
	Until(ctx context.Context, backendID string) (time.Time, bool, error)
}

const cooldownKeyPrefix = "car:cooldown:"

// RedisCooldownCache stores cooldowns in Redis (or anything speaking its
// wire protocol, e.g. DragonflyDB) via native key expiry, so an expired
// cooldown disappears without any sweep logic.
type RedisCooldownCache struct {
	client *redis.Client
}

// NewRedisCooldownCache wraps an existing go-redis client. The caller owns
// the client's lifecycle (Close).
func NewRedisCooldownCache(client *redis.Client) *RedisCooldownCache {
	return &RedisCooldownCache{client: client}
}

func (c *RedisCooldownCache) Set(ctx context.Context, backendID string, d time.Duration) error {
	until := time.Now().Add(d).Format(time.RFC3339Nano)
	if err := c.client.Set(ctx, cooldownKeyPrefix+backendID, until, d).Err(); err != nil {
		return fmt.Errorf("orchestrator: set cooldown: %w", err)
	}
	return nil
}

func (c *RedisCooldownCache) Until(ctx context.Context, backendID string) (time.Time, bool, error) {
	val, err := c.client.Get(ctx, cooldownKeyPrefix+backendID).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("orchestrator: get cooldown: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("orchestrator: parse cooldown value: %w", err)
	}
	return t, true, nil
}

// MemoryCooldownCache is the in-process fallback used when no Redis
// endpoint is configured. It implements the same expiry semantics by
// checking the deadline on read rather than relying on external TTL.
type MemoryCooldownCache struct {
	mu    sync.Mutex
	until map[string]time.Time
}

// NewMemoryCooldownCache returns an empty in-memory cooldown cache.
func NewMemoryCooldownCache() *MemoryCooldownCache {
	return &MemoryCooldownCache{until: make(map[string]time.Time)}
}

func (c *MemoryCooldownCache) Set(_ context.Context, backendID string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[backendID] = time.Now().Add(d)
	return nil
}

func (c *MemoryCooldownCache) Until(_ context.Context, backendID string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.until[backendID]
	if !ok {
		return time.Time{}, false, nil
	}
	if time.Now().After(t) {
		delete(c.until, backendID)
		return time.Time{}, false, nil
	}
	return t, true, nil
}
