package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/repository"
)

const (
	refreshTokensTable = "auth.refresh_tokens"
	blacklistTable     = "auth.blacklisted_tokens"
)

// TokenRepository implements port.TokenRepository on the refresh token and blacklist tables.
type TokenRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a ledger backed by pool.
func NewTokenRepository(pool pgPool) *TokenRepository {
	return &TokenRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// InsertRefreshToken records a freshly issued refresh token.
func (r *TokenRepository) InsertRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert(refreshTokensTable).
		Columns("id", "user_id", "token", "expires_at", "is_revoked", "created_at").
		Values(token.ID, token.UserID, token.Token, token.ExpiresAt, token.IsRevoked, token.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// FindActiveRefreshToken returns the non-revoked row for tokenHash. Expiry is left to the caller.
func (r *TokenRepository) FindActiveRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "token", "expires_at", "is_revoked", "created_at").
		From(refreshTokensTable).
		Where(squirrel.Eq{"token": tokenHash, "is_revoked": false}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var token domain.RefreshToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.Token,
		&token.ExpiresAt,
		&token.IsRevoked,
		&token.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &token, nil
}

// RevokeRefreshToken flips is_revoked for tokenHash. It reports ErrNotFound when no
// live row matched, which also covers losing a race against another revocation.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	stmt, args, err := r.builder.Update(refreshTokensTable).
		Set("is_revoked", true).
		Where(squirrel.Eq{"token": tokenHash, "is_revoked": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RotateRefreshToken revokes oldHash and inserts next inside one transaction.
// The conditional update is the arbiter between concurrent redemptions: only the
// caller that flips the row proceeds, everybody else gets ErrRefreshTokenConsumed.
func (r *TokenRepository) RotateRefreshToken(ctx context.Context, oldHash string, next domain.RefreshToken) (err error) {
	if r.pool == nil {
		return errors.New("rotate refresh token: repository has no pool")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	txRepo := r.WithTx(tx)
	if err = txRepo.RevokeRefreshToken(ctx, oldHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrRefreshTokenConsumed
		}
		return err
	}
	if err = txRepo.InsertRefreshToken(ctx, next); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live refresh token owned by userID.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	stmt, args, err := r.builder.Update(refreshTokensTable).
		Set("is_revoked", true).
		Where(squirrel.Eq{"user_id": userID, "is_revoked": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}

// InsertBlacklist stores a logged-out access token. Re-blacklisting the same token is a no-op.
func (r *TokenRepository) InsertBlacklist(ctx context.Context, entry domain.BlacklistEntry) error {
	stmt, args, err := r.builder.Insert(blacklistTable).
		Columns("token", "user_id", "expires_at", "blacklisted_at").
		Values(entry.Token, entry.UserID, entry.ExpiresAt, entry.BlacklistedAt).
		Suffix("ON CONFLICT (token) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert blacklist sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}

	return nil
}

// RevokeSession commits the blacklist row and the refresh-token revocation
// together, so a failed logout leaves the ledger untouched and can be retried.
func (r *TokenRepository) RevokeSession(ctx context.Context, entry domain.BlacklistEntry) (revoked int64, err error) {
	if r.pool == nil {
		return 0, errors.New("revoke session: repository has no pool")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin session revocation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	txRepo := r.WithTx(tx)
	if err = txRepo.InsertBlacklist(ctx, entry); err != nil {
		return 0, err
	}
	if revoked, err = txRepo.RevokeAllForUser(ctx, entry.UserID); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit session revocation: %w", err)
	}
	return revoked, nil
}

// IsBlacklisted reports whether tokenHash has been logged out.
func (r *TokenRepository) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		Prefix("SELECT EXISTS (").
		From(blacklistTable).
		Where(squirrel.Eq{"token": tokenHash}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build blacklist lookup sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query blacklist: %w", err)
	}

	return exists, nil
}

// DeleteExpiredBlacklist drops entries whose token expired before the cutoff.
func (r *TokenRepository) DeleteExpiredBlacklist(ctx context.Context, before time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(blacklistTable).
		Where(squirrel.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired blacklist sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
