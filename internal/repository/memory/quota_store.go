package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
)

const (
	shardCount             = 64
	DefaultCleanupInterval = 5 * time.Minute
)

type quotaRecord struct {
	count   uint
	resetAt time.Time
}

type quotaShard struct {
	mu      sync.Mutex
	records map[string]*quotaRecord
}

// QuotaStore keeps fixed-window counters in process memory. Keys are spread over
// independently locked shards so distinct callers never contend on one mutex.
type QuotaStore struct {
	shards [shardCount]*quotaShard
	logger *zap.Logger
	now    func() time.Time
}

// NewQuotaStore builds an empty store.
func NewQuotaStore(logger *zap.Logger) *QuotaStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QuotaStore{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for i := range s.shards {
		s.shards[i] = &quotaShard{records: make(map[string]*quotaRecord)}
	}
	return s
}

// WithClock overrides the clock used by the janitor.
func (s *QuotaStore) WithClock(clock func() time.Time) *QuotaStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *QuotaStore) shardFor(key string) *quotaShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// CheckAndIncrement applies one request to the window of key.
// Denied requests do not consume quota.
func (s *QuotaStore) CheckAndIncrement(key domain.QuotaKey, limit uint, window time.Duration, now time.Time) domain.QuotaResult {
	if limit == 0 {
		return domain.QuotaResult{Allowed: false, Remaining: 0, ResetAt: now.Add(window)}
	}

	k := key.String()
	shard := s.shardFor(k)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[k]
	if !ok || !now.Before(rec.resetAt) {
		rec = &quotaRecord{count: 1, resetAt: now.Add(window)}
		shard.records[k] = rec
		return domain.QuotaResult{Allowed: true, Remaining: limit - 1, ResetAt: rec.resetAt}
	}

	if rec.count >= limit {
		return domain.QuotaResult{Allowed: false, Remaining: 0, ResetAt: rec.resetAt}
	}

	rec.count++
	return domain.QuotaResult{Allowed: true, Remaining: limit - rec.count, ResetAt: rec.resetAt}
}

// Sweep drops every record whose window has ended and returns how many went.
// Shards are locked one at a time.
func (s *QuotaStore) Sweep(now time.Time) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, rec := range shard.records {
			if !now.Before(rec.resetAt) {
				delete(shard.records, k)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Stats counts all records and those whose window is still open.
func (s *QuotaStore) Stats(now time.Time) domain.QuotaStats {
	var stats domain.QuotaStats
	for _, shard := range s.shards {
		shard.mu.Lock()
		stats.TotalKeys += len(shard.records)
		for _, rec := range shard.records {
			if now.Before(rec.resetAt) {
				stats.ActiveKeys++
			}
		}
		shard.mu.Unlock()
	}
	return stats
}

// Reset forgets every counter.
func (s *QuotaStore) Reset() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.records = make(map[string]*quotaRecord)
		shard.mu.Unlock()
	}
}

// StartJanitor sweeps expired windows every interval until ctx is cancelled.
// The returned channel is closed once the loop has exited.
func (s *QuotaStore) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepAndLog()
			}
		}
	}()

	return done
}

func (s *QuotaStore) sweepAndLog() {
	now := s.now()
	before := s.Stats(now).TotalKeys
	removed := s.Sweep(now)
	if removed == 0 {
		return
	}
	s.logger.Info("quota store swept",
		zap.Int("removed", removed),
		zap.Int("keys_before", before),
		zap.Int("keys_after", s.Stats(now).TotalKeys),
	)
}

var _ port.QuotaStore = (*QuotaStore)(nil)
