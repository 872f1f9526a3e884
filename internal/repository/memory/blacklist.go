package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nnh2x/hemidi-authen/internal/core/port"
)

// BlacklistCache is the in-process stand-in for the Redis blacklist cache.
// Entries expire lazily on lookup and eagerly on Prune.
type BlacklistCache struct {
	mu         sync.RWMutex
	entries    map[string]time.Time
	maxEntries int
	now        func() time.Time
}

// NewBlacklistCache builds a cache holding at most maxEntries digests (0 means unbounded).
// When full, the entries closest to expiry are evicted first.
func NewBlacklistCache(maxEntries int) *BlacklistCache {
	return &BlacklistCache{
		entries:    make(map[string]time.Time),
		maxEntries: maxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (c *BlacklistCache) WithClock(clock func() time.Time) *BlacklistCache {
	if clock != nil {
		c.mu.Lock()
		c.now = clock
		c.mu.Unlock()
	}
	return c
}

// MarkBlacklisted records tokenHash until ttl elapses.
func (c *BlacklistCache) MarkBlacklisted(_ context.Context, tokenHash string, ttl time.Duration) error {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return errors.New("token hash must not be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[tokenHash]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictSoonestLocked(len(c.entries) - c.maxEntries + 1)
	}
	c.entries[tokenHash] = c.now().Add(ttl)
	return nil
}

// IsBlacklisted reports whether tokenHash is still blacklisted.
func (c *BlacklistCache) IsBlacklisted(_ context.Context, tokenHash string) (bool, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return false, errors.New("token hash must not be empty")
	}

	c.mu.RLock()
	expiresAt, ok := c.entries[tokenHash]
	now := c.now()
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !expiresAt.After(now) {
		c.mu.Lock()
		delete(c.entries, tokenHash)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Prune removes expired digests and returns how many were dropped.
func (c *BlacklistCache) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, expiresAt := range c.entries {
		if !expiresAt.After(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached digests, expired or not.
func (c *BlacklistCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *BlacklistCache) evictSoonestLocked(count int) {
	if count <= 0 || len(c.entries) == 0 {
		return
	}
	type item struct {
		key string
		exp time.Time
	}
	values := make([]item, 0, len(c.entries))
	for key, exp := range c.entries {
		values = append(values, item{key: key, exp: exp})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].exp.Before(values[j].exp) })
	if count > len(values) {
		count = len(values)
	}
	for i := 0; i < count; i++ {
		delete(c.entries, values[i].key)
	}
}

var _ port.BlacklistCache = (*BlacklistCache)(nil)
