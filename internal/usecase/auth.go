package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/infra/config"
	"github.com/nnh2x/hemidi-authen/internal/infra/logger"
	"github.com/nnh2x/hemidi-authen/internal/infra/security"
	"github.com/nnh2x/hemidi-authen/internal/infra/telemetry"
	"github.com/nnh2x/hemidi-authen/internal/repository"
)

var (
	// ErrInvalidCredentials is returned for every failed login, whatever the cause.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	// ErrInvalidToken indicates the access token is malformed, badly signed or of the wrong type.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	// ErrTokenExpired indicates the access token is past its exp.
	ErrTokenExpired = fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	// ErrTokenRevoked indicates the access token was blacklisted by a logout.
	ErrTokenRevoked = fmt.Errorf("%w: token has been revoked", domain.ErrUnauthorized)
	// ErrTokenUserNotFound indicates the token subject no longer exists.
	ErrTokenUserNotFound = fmt.Errorf("%w: user not found", domain.ErrUnauthorized)
	// ErrInvalidRefreshToken covers unknown, revoked, expired and already rotated refresh tokens.
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", domain.ErrUnauthorized)
	// ErrUserExists indicates the (userName, userCode) pair is taken.
	ErrUserExists = fmt.Errorf("%w: user already exists", domain.ErrConflict)
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = fmt.Errorf("%w: user not found", domain.ErrNotFound)
	// ErrPasswordMismatch indicates password and confirmation differ.
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", domain.ErrInvalidInput)
)

const (
	bearerTokenType = "Bearer"
	logoutMessage   = "Logged out successfully"
	dummyPassword   = "hemidi-dummy-password"
)

var tracer = otel.Tracer("github.com/nnh2x/hemidi-authen/internal/usecase")

// RegisterInput carries a registration request.
type RegisterInput struct {
	UserName        string
	Password        string
	ConfirmPassword string
	UserCode        string
}

// MessageResult is a plain acknowledgement.
type MessageResult struct {
	Message string `json:"message"`
}

// AuthDependencies groups the collaborators of AuthService.
type AuthDependencies struct {
	Users     port.UserRepository
	Tokens    port.TokenRepository
	Blacklist port.BlacklistCache
	Hasher    port.PasswordHasher
	Policy    port.PasswordPolicy
	Signer    *security.TokenSigner
	Events    port.EventPublisher
	Metrics   *telemetry.Metrics
	Logger    *zap.Logger
}

// AuthService issues, rotates, validates and revokes credentials.
type AuthService struct {
	users     port.UserRepository
	tokens    port.TokenRepository
	blacklist port.BlacklistCache
	hasher    port.PasswordHasher
	policy    port.PasswordPolicy
	signer    *security.TokenSigner
	events    port.EventPublisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger

	accessTTL     time.Duration
	refreshTTL    time.Duration
	minCodeLength int
	dummyHash     string
	now           func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(cfg *config.AppConfig, deps AuthDependencies) (*AuthService, error) {
	if cfg == nil {
		return nil, errors.New("auth service: config is nil")
	}
	if deps.Users == nil || deps.Tokens == nil || deps.Hasher == nil || deps.Policy == nil || deps.Signer == nil {
		return nil, errors.New("auth service: users, tokens, hasher, policy and signer are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	dummy, err := deps.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("auth service: prepare dummy hash: %w", err)
	}

	minCode := cfg.Password.MinLength
	if minCode <= 0 {
		minCode = 6
	}

	return &AuthService{
		users:         deps.Users,
		tokens:        deps.Tokens,
		blacklist:     deps.Blacklist,
		hasher:        deps.Hasher,
		policy:        deps.Policy,
		signer:        deps.Signer,
		events:        deps.Events,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		accessTTL:     cfg.JWT.AccessTokenTTL,
		refreshTTL:    cfg.JWT.RefreshTokenTTL,
		minCodeLength: minCode,
		dummyHash:     dummy,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the service clock for deterministic testing.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "AuthService."+name)
}

func (s *AuthService) finish(span trace.Span, operation string, err error) {
	s.metrics.ObserveTokenOperation(operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Register creates an account and signs the new user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (pair domain.TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Register")
	defer func() { s.finish(span, "register", err) }()

	in.UserName = strings.TrimSpace(in.UserName)
	in.UserCode = strings.TrimSpace(in.UserCode)

	if err := s.validateRegistration(in); err != nil {
		return domain.TokenPair{}, err
	}

	existing, err := s.users.FindByNameAndCode(ctx, in.UserName, in.UserCode)
	switch {
	case err == nil && existing != nil:
		return domain.TokenPair{}, ErrUserExists
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return domain.TokenPair{}, domain.Unavailable(fmt.Errorf("lookup user: %w", err))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		UserName:     in.UserName,
		UserCode:     in.UserCode,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	pair, record, err := s.mintPair(user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.users.CreateWithRefreshToken(ctx, user, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.TokenPair{}, ErrUserExists
		}
		return domain.TokenPair{}, domain.Unavailable(fmt.Errorf("create user: %w", err))
	}

	s.publish(ctx, domain.EventUserRegistered, func(ctx context.Context, events port.EventPublisher) error {
		return events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
			UserID:       user.ID,
			UserName:     user.UserName,
			RegisteredAt: now,
		})
	})

	return pair, nil
}

func (s *AuthService) validateRegistration(in RegisterInput) error {
	switch {
	case in.UserName == "":
		return fmt.Errorf("%w: userName is required", domain.ErrInvalidInput)
	case in.UserCode == "":
		return fmt.Errorf("%w: userCode is required", domain.ErrInvalidInput)
	case in.Password == "":
		return fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	case in.ConfirmPassword == "":
		return fmt.Errorf("%w: confirmPassword is required", domain.ErrInvalidInput)
	case len(in.UserCode) < s.minCodeLength:
		return fmt.Errorf("%w: userCode must be at least %d characters", domain.ErrInvalidInput, s.minCodeLength)
	}

	if in.Password != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if err := s.policy.Validate(in.Password, in.UserName, in.UserCode); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// Login exchanges a user name and password for a fresh token pair.
func (s *AuthService) Login(ctx context.Context, userName, password string) (pair domain.TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer func() { s.finish(span, "login", err) }()

	userName = strings.TrimSpace(userName)
	if userName == "" || password == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: userName and password are required", domain.ErrInvalidInput)
	}

	user, err := s.users.FindByCredentials(ctx, userName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn the same hashing time as a real check so missing users are not observable.
			_, _ = s.hasher.Verify(password, s.dummyHash)
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, domain.Unavailable(fmt.Errorf("lookup user: %w", err))
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		logger.WithContext(ctx, s.logger).Error("stored password hash unreadable",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return domain.TokenPair{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	pair, err = s.IssueTokens(ctx, *user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.publish(ctx, domain.EventUserLoggedIn, func(ctx context.Context, events port.EventPublisher) error {
		return events.PublishUserLoggedIn(ctx, domain.UserLoggedInEvent{UserID: user.ID, LoggedInAt: s.now()})
	})

	return pair, nil
}

// IssueTokens mints a pair for user and records the refresh half in the ledger.
func (s *AuthService) IssueTokens(ctx context.Context, user domain.User) (domain.TokenPair, error) {
	pair, record, err := s.mintPair(user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.tokens.InsertRefreshToken(ctx, record); err != nil {
		return domain.TokenPair{}, domain.Unavailable(fmt.Errorf("store refresh token: %w", err))
	}
	return pair, nil
}

func (s *AuthService) mintPair(user domain.User) (domain.TokenPair, domain.RefreshToken, error) {
	access, _, err := s.signer.Sign(user, domain.TokenTypeAccess, s.accessTTL)
	if err != nil {
		return domain.TokenPair{}, domain.RefreshToken{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshClaims, err := s.signer.Sign(user, domain.TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, domain.RefreshToken{}, fmt.Errorf("sign refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     security.HashToken(refresh),
		ExpiresAt: refreshClaims.ExpiresAt.Time,
		CreatedAt: s.now(),
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    bearerTokenType,
		ExpiresIn:    int(s.accessTTL / time.Second),
	}, record, nil
}

// Refresh redeems a refresh token for a new pair. A refresh token can be redeemed
// at most once; concurrent redemptions produce exactly one winner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair domain.TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Refresh")
	defer func() { s.finish(span, "refresh", err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: refresh token is required", domain.ErrInvalidInput)
	}

	claims, err := s.signer.Verify(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	oldHash := security.HashToken(refreshToken)
	record, err := s.tokens.FindActiveRefreshToken(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, domain.Unavailable(fmt.Errorf("lookup refresh token: %w", err))
	}
	if !record.IsActive(s.now()) || record.UserID != claims.Subject {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, domain.Unavailable(fmt.Errorf("lookup user: %w", err))
	}

	pair, next, err := s.mintPair(*user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.tokens.RotateRefreshToken(ctx, oldHash, next); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenConsumed) {
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, domain.Unavailable(fmt.Errorf("rotate refresh token: %w", err))
	}

	s.publish(ctx, domain.EventTokenRefreshed, func(ctx context.Context, events port.EventPublisher) error {
		return events.PublishTokenRefreshed(ctx, domain.TokenRefreshedEvent{UserID: user.ID, RefreshedAt: s.now()})
	})

	return pair, nil
}

// Logout blacklists accessToken until it expires and revokes every refresh token of userID.
func (s *AuthService) Logout(ctx context.Context, accessToken, userID string) (result MessageResult, err error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer func() { s.finish(span, "logout", err) }()

	claims, err := s.signer.Decode(accessToken)
	if err != nil {
		return MessageResult{}, ErrInvalidToken
	}

	now := s.now()
	entry := domain.BlacklistEntry{
		Token:         security.HashToken(accessToken),
		UserID:        userID,
		ExpiresAt:     claims.ExpiresAt.Time,
		BlacklistedAt: now,
	}
	revoked, err := s.tokens.RevokeSession(ctx, entry)
	if err != nil {
		return MessageResult{}, domain.Unavailable(fmt.Errorf("revoke session: %w", err))
	}

	if ttl := entry.TTL(now); s.blacklist != nil && ttl > 0 {
		if err := s.blacklist.MarkBlacklisted(ctx, entry.Token, ttl); err != nil {
			logger.WithContext(ctx, s.logger).Warn("blacklist cache write failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	logger.WithContext(ctx, s.logger).Info("user logged out",
		zap.String("user_id", userID),
		zap.Int64("revoked_refresh_tokens", revoked),
	)

	s.publish(ctx, domain.EventUserLoggedOut, func(ctx context.Context, events port.EventPublisher) error {
		return events.PublishUserLoggedOut(ctx, domain.UserLoggedOutEvent{
			UserID:         userID,
			RevokedTokens:  revoked,
			LoggedOutAt:    now,
			AccessTokenExp: entry.ExpiresAt,
		})
	})

	return MessageResult{Message: logoutMessage}, nil
}

// ValidateForRequest authenticates a bearer token. The blacklist is consulted before
// the signature so a logged-out token is reported as revoked even while still signed.
func (s *AuthService) ValidateForRequest(ctx context.Context, accessToken string) (*domain.User, error) {
	if !security.LooksLikeToken(accessToken) {
		return nil, ErrInvalidToken
	}

	revoked, err := s.isBlacklisted(ctx, security.HashToken(accessToken))
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := s.signer.Verify(accessToken, domain.TokenTypeAccess)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenUserNotFound
		}
		return nil, domain.Unavailable(fmt.Errorf("lookup user: %w", err))
	}

	return user, nil
}

func (s *AuthService) isBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	if s.blacklist != nil {
		hit, err := s.blacklist.IsBlacklisted(ctx, tokenHash)
		if err == nil && hit {
			return true, nil
		}
		if err != nil {
			logger.WithContext(ctx, s.logger).Debug("blacklist cache unavailable, using ledger", zap.Error(err))
		}
	}

	listed, err := s.tokens.IsBlacklisted(ctx, tokenHash)
	if err != nil {
		return false, domain.Unavailable(fmt.Errorf("check blacklist: %w", err))
	}
	return listed, nil
}

// ValidateToken is the public form of ValidateForRequest. Only persistence
// failures are returned as errors; every other outcome is described in the result.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (result domain.ValidationResult, err error) {
	ctx, span := s.startSpan(ctx, "ValidateToken")
	defer func() { s.finish(span, "validate", err) }()

	user, err := s.ValidateForRequest(ctx, strings.TrimSpace(token))
	switch {
	case err == nil:
		view := user.PublicView()
		return domain.ValidationResult{Valid: true, User: &view, Message: "Token is valid"}, nil
	case errors.Is(err, domain.ErrUnavailable):
		return domain.ValidationResult{}, err
	case errors.Is(err, ErrTokenRevoked):
		return domain.ValidationResult{Message: "Token has been blacklisted"}, nil
	case errors.Is(err, ErrTokenUserNotFound):
		return domain.ValidationResult{Message: "User not found"}, nil
	default:
		return domain.ValidationResult{Message: "Invalid token"}, nil
	}
}

// publish emits an event without letting bus failures leak into the request outcome.
func (s *AuthService) publish(ctx context.Context, name string, send func(context.Context, port.EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := send(ctx, s.events); err != nil {
		logger.WithContext(ctx, s.logger).Warn("failed to publish event",
			zap.String("event", name),
			zap.Error(err),
		)
	}
}
