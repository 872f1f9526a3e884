package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/nnh2x/hemidi-authen/internal/core/port"
)

const defaultBlacklistPrefix = "blacklist"

// BlacklistRepository caches logged-out access token digests in Redis. Entries
// expire together with the token so the cache never outgrows the ledger.
type BlacklistRepository struct {
	client red.Cmdable
	prefix string
}

// NewBlacklistRepository wires a Redis client into a blacklist cache.
func NewBlacklistRepository(client red.Cmdable, keyPrefix string) *BlacklistRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultBlacklistPrefix
	}

	return &BlacklistRepository{client: client, prefix: prefix}
}

// MarkBlacklisted stores tokenHash until ttl elapses.
func (r *BlacklistRepository) MarkBlacklisted(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := r.key(tokenHash)
	if key == "" {
		return errors.New("token hash must not be empty")
	}

	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set blacklisted token: %w", err)
	}

	return nil
}

// IsBlacklisted reports whether tokenHash is cached as logged out.
func (r *BlacklistRepository) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	key := r.key(tokenHash)
	if key == "" {
		return false, errors.New("token hash must not be empty")
	}

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists blacklisted token: %w", err)
	}

	return n > 0, nil
}

func (r *BlacklistRepository) key(tokenHash string) string {
	trimmed := strings.TrimSpace(tokenHash)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.BlacklistCache = (*BlacklistRepository)(nil)
