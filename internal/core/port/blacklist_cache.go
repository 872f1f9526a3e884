package port

import (
	"context"
	"time"
)

// BlacklistCache fronts the ledger blacklist so revoked tokens are rejected without a database round trip.
type BlacklistCache interface {
	MarkBlacklisted(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)
}
