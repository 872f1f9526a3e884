package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/repository"
)

const usersTable = "auth.users"

var userColumns = []string{
	"id",
	"user_name",
	"user_code",
	"password_hash",
	"is_admin",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository on auth.users.
type UserRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by pool.
func NewUserRepository(pool pgPool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{pool: r.pool, exec: tx, builder: r.builder}
}

// Create inserts a user. A (user_name, user_code) collision yields repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.UserName,
			user.UserCode,
			user.PasswordHash,
			user.IsAdmin,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if translated := translateError(err); translated == repository.ErrDuplicate {
			return translated
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// CreateWithRefreshToken registers user together with its first ledger row. A
// failed token insert rolls the user back so the registration can be retried.
func (r *UserRepository) CreateWithRefreshToken(ctx context.Context, user domain.User, token domain.RefreshToken) (err error) {
	if r.pool == nil {
		return errors.New("create user: repository has no pool")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = r.WithTx(tx).Create(ctx, user); err != nil {
		return err
	}
	if err = NewTokenRepository(r.pool).WithTx(tx).InsertRefreshToken(ctx, token); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// Save overwrites the mutable columns of an existing user.
func (r *UserRepository) Save(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("user_name", user.UserName).
		Set("user_code", user.UserCode).
		Set("password_hash", user.PasswordHash).
		Set("is_admin", user.IsAdmin).
		Set("updated_at", user.UpdatedAt).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if translated := translateError(err); translated == repository.ErrDuplicate {
			return translated
		}
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// FindByID loads a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

// FindByCredentials loads the oldest user with the given name. Names are only unique
// together with user_code, so login picks the first registration.
func (r *UserRepository) FindByCredentials(ctx context.Context, userName string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"user_name": userName})
}

// FindByNameAndCode loads the user owning the (user_name, user_code) pair.
func (r *UserRepository) FindByNameAndCode(ctx context.Context, userName, userCode string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"user_name": userName, "user_code": userCode})
}

func (r *UserRepository) findOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var user domain.User
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&user.ID,
		&user.UserName,
		&user.UserCode,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if translated := translateError(err); translated == repository.ErrNotFound {
			return nil, translated
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
