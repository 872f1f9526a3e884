package port

import (
	"time"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

// QuotaStore holds fixed-window counters. CheckAndIncrement is atomic per key.
type QuotaStore interface {
	CheckAndIncrement(key domain.QuotaKey, limit uint, window time.Duration, now time.Time) domain.QuotaResult
	Sweep(now time.Time) int
	Stats(now time.Time) domain.QuotaStats
}
