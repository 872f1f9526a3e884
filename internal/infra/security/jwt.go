package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

var (
	// ErrTokenMalformed indicates the value cannot be parsed as a JWT at all.
	ErrTokenMalformed = errors.New("jwt: malformed token")
	// ErrTokenExpired indicates the signature is fine but exp has passed.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenInvalid covers bad signatures, unknown keys and wrong token types.
	ErrTokenInvalid = errors.New("jwt: invalid token")
)

// Claims is the payload carried by both halves of a credential pair.
type Claims struct {
	UserName string           `json:"userName"`
	Type     domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies RS256 tokens.
type TokenSigner struct {
	keys   KeyProvider
	issuer string
	now    func() time.Time
}

// NewTokenSigner constructs a signer issuing tokens under issuer.
func NewTokenSigner(keys KeyProvider, issuer string) *TokenSigner {
	return &TokenSigner{
		keys:   keys,
		issuer: strings.TrimSpace(issuer),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the signer clock for deterministic testing.
func (s *TokenSigner) WithClock(clock func() time.Time) *TokenSigner {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Sign issues a token of the given type for user, valid for ttl. Every token gets
// a fresh jti so two tokens minted in the same second never collide.
func (s *TokenSigner) Sign(user domain.User, typ domain.TokenType, ttl time.Duration) (string, *Claims, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", nil, fmt.Errorf("jwt: user id is required")
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("jwt: ttl must be positive")
	}

	kid, key, err := s.keys.SigningKey()
	if err != nil {
		return "", nil, fmt.Errorf("jwt: get signing key: %w", err)
	}

	now := s.now()
	claims := &Claims{
		UserName: user.UserName,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, claims, nil
}

// Verify checks signature, expiry, issuer and type.
func (s *TokenSigner) Verify(raw string, typ domain.TokenType) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return s.keys.VerificationKey(kid)
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, typ)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

// Decode reads the claims without checking the signature. It is only used where
// the token has already been authenticated, e.g. to learn exp at logout.
func (s *TokenSigner) Decode(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	return claims, nil
}
