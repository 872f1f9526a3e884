package domain

import "time"

// TokenType distinguishes the two halves of a credential pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair is the public result of every issuing operation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshToken is the ledger row backing one live refresh token.
// Token holds the SHA-256 digest of the bearer string, never the string itself.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsActive returns true when the token can still be redeemed.
func (t RefreshToken) IsActive(at time.Time) bool {
	return !t.IsRevoked && !t.IsExpired(at)
}

// BlacklistEntry invalidates an access token until ExpiresAt.
type BlacklistEntry struct {
	Token         string
	UserID        string
	ExpiresAt     time.Time
	BlacklistedAt time.Time
}

// TTL is how long the entry still constrains anything.
func (e BlacklistEntry) TTL(now time.Time) time.Duration {
	if !e.ExpiresAt.After(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// ValidationResult is the public answer to "is this token usable".
type ValidationResult struct {
	Valid   bool            `json:"valid"`
	User    *UserPublicView `json:"user,omitempty"`
	Message string          `json:"message"`
}
