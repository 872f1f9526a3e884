package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrRefreshTokenConsumed indicates a concurrent rotation already revoked the token.
	ErrRefreshTokenConsumed = errors.New("repository: refresh token already consumed")
)
