package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nnh2x/hemidi-authen/internal/core/port"
)

// DefaultBlacklistCleanupInterval is how often expired blacklist rows are purged.
const DefaultBlacklistCleanupInterval = time.Hour

// CachePruner is implemented by in-process blacklist caches that need eager expiry.
type CachePruner interface {
	Prune(now time.Time) int
}

// TokenCleanupWorker purges blacklist entries whose access token has expired anyway.
type TokenCleanupWorker struct {
	tokens   port.TokenRepository
	pruner   CachePruner
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenCleanupWorker builds a worker; pruner may be nil.
func NewTokenCleanupWorker(tokens port.TokenRepository, pruner CachePruner, interval time.Duration, log *zap.Logger) *TokenCleanupWorker {
	if interval <= 0 {
		interval = DefaultBlacklistCleanupInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenCleanupWorker{
		tokens:   tokens,
		pruner:   pruner,
		interval: interval,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs a single purge. Failures are logged, never returned.
func (w *TokenCleanupWorker) RunOnce(ctx context.Context) int64 {
	now := w.now()

	removed, err := w.tokens.DeleteExpiredBlacklist(ctx, now)
	if err != nil {
		w.logger.Warn("blacklist cleanup failed", zap.Error(err))
		removed = 0
	} else if removed > 0 {
		w.logger.Info("expired blacklist entries removed", zap.Int64("removed", removed))
	}

	if w.pruner != nil {
		if pruned := w.pruner.Prune(now); pruned > 0 {
			w.logger.Debug("blacklist cache pruned", zap.Int("removed", pruned))
		}
	}

	return removed
}

// Start runs the purge every interval until ctx is cancelled. The returned channel
// is closed when the loop exits.
func (w *TokenCleanupWorker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(w.interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()

	return done
}
