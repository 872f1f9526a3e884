package port

import (
	"context"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

// UserRepository exposes persistence behavior for users. (user_name, user_code) is unique.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	// CreateWithRefreshToken inserts user and its first refresh token as one unit.
	CreateWithRefreshToken(ctx context.Context, user domain.User, token domain.RefreshToken) error
	Save(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByCredentials(ctx context.Context, userName string) (*domain.User, error)
	FindByNameAndCode(ctx context.Context, userName, userCode string) (*domain.User, error)
}
