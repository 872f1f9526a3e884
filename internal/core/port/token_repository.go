package port

import (
	"context"
	"time"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

// TokenRepository is the token ledger: refresh-token rows and the access-token blacklist.
// Tokens are addressed by their SHA-256 digest.
type TokenRepository interface {
	InsertRefreshToken(ctx context.Context, token domain.RefreshToken) error
	FindActiveRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	// RotateRefreshToken revokes oldHash and inserts next as one unit. It fails with
	// ErrRefreshTokenConsumed when oldHash was already revoked by someone else.
	RotateRefreshToken(ctx context.Context, oldHash string, next domain.RefreshToken) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	InsertBlacklist(ctx context.Context, entry domain.BlacklistEntry) error
	// RevokeSession blacklists entry and revokes every live refresh token of
	// entry.UserID as one unit. It returns the number of refresh tokens revoked.
	RevokeSession(ctx context.Context, entry domain.BlacklistEntry) (int64, error)
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpiredBlacklist(ctx context.Context, before time.Time) (int64, error)
}
