package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/infra/config"
	"github.com/nnh2x/hemidi-authen/internal/infra/security"
	"github.com/nnh2x/hemidi-authen/internal/repository"
	"github.com/nnh2x/hemidi-authen/internal/repository/memory"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]domain.User
	tokens *fakeTokenRepo
	err    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.users {
		if existing.UserName == user.UserName && existing.UserCode == user.UserCode {
			return repository.ErrDuplicate
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) CreateWithRefreshToken(ctx context.Context, user domain.User, token domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.users {
		if existing.UserName == user.UserName && existing.UserCode == user.UserCode {
			return repository.ErrDuplicate
		}
	}
	if r.tokens != nil {
		if err := r.tokens.InsertRefreshToken(ctx, token); err != nil {
			return err
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Save(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *fakeUserRepo) FindByCredentials(_ context.Context, userName string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var found *domain.User
	for _, user := range r.users {
		if user.UserName != userName {
			continue
		}
		if found == nil || user.CreatedAt.Before(found.CreatedAt) {
			u := user
			found = &u
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *fakeUserRepo) FindByNameAndCode(_ context.Context, userName, userCode string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, user := range r.users {
		if user.UserName == userName && user.UserCode == userCode {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeTokenRepo struct {
	mu        sync.Mutex
	refresh   map[string]domain.RefreshToken
	blacklist map[string]domain.BlacklistEntry
	err       error
	revokeErr error
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{
		refresh:   make(map[string]domain.RefreshToken),
		blacklist: make(map[string]domain.BlacklistEntry),
	}
}

func (r *fakeTokenRepo) InsertRefreshToken(_ context.Context, token domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.refresh[token.Token] = token
	return nil
}

func (r *fakeTokenRepo) FindActiveRefreshToken(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	token, ok := r.refresh[tokenHash]
	if !ok || token.IsRevoked {
		return nil, repository.ErrNotFound
	}
	return &token, nil
}

func (r *fakeTokenRepo) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeLocked(tokenHash)
}

func (r *fakeTokenRepo) revokeLocked(tokenHash string) error {
	token, ok := r.refresh[tokenHash]
	if !ok || token.IsRevoked {
		return repository.ErrNotFound
	}
	token.IsRevoked = true
	r.refresh[tokenHash] = token
	return nil
}

func (r *fakeTokenRepo) RotateRefreshToken(_ context.Context, oldHash string, next domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if err := r.revokeLocked(oldHash); err != nil {
		return repository.ErrRefreshTokenConsumed
	}
	r.refresh[next.Token] = next
	return nil
}

func (r *fakeTokenRepo) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeAllLocked(userID)
}

func (r *fakeTokenRepo) revokeAllLocked(userID string) (int64, error) {
	if r.revokeErr != nil {
		return 0, r.revokeErr
	}
	var n int64
	for hash, token := range r.refresh {
		if token.UserID == userID && !token.IsRevoked {
			token.IsRevoked = true
			r.refresh[hash] = token
			n++
		}
	}
	return n, nil
}

func (r *fakeTokenRepo) InsertBlacklist(_ context.Context, entry domain.BlacklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.blacklist[entry.Token]; !ok {
		r.blacklist[entry.Token] = entry
	}
	return nil
}

// RevokeSession mirrors the transaction: nothing is written unless both steps succeed.
func (r *fakeTokenRepo) RevokeSession(_ context.Context, entry domain.BlacklistEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}

	snapshot := make(map[string]domain.RefreshToken, len(r.refresh))
	for k, v := range r.refresh {
		snapshot[k] = v
	}
	n, err := r.revokeAllLocked(entry.UserID)
	if err != nil {
		r.refresh = snapshot
		return 0, err
	}
	if _, ok := r.blacklist[entry.Token]; !ok {
		r.blacklist[entry.Token] = entry
	}
	return n, nil
}

func (r *fakeTokenRepo) IsBlacklisted(_ context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.blacklist[tokenHash]
	return ok, nil
}

func (r *fakeTokenRepo) DeleteExpiredBlacklist(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var n int64
	for hash, entry := range r.blacklist {
		if entry.ExpiresAt.Before(before) {
			delete(r.blacklist, hash)
			n++
		}
	}
	return n, nil
}

func (r *fakeTokenRepo) activeCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, token := range r.refresh {
		if token.UserID == userID && !token.IsRevoked {
			n++
		}
	}
	return n
}

type failingCache struct{}

func (failingCache) MarkBlacklisted(context.Context, string, time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) IsBlacklisted(context.Context, string) (bool, error) {
	return false, errors.New("cache down")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) record(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
	return p.err
}

func (p *recordingPublisher) PublishUserRegistered(context.Context, domain.UserRegisteredEvent) error {
	return p.record(domain.EventUserRegistered)
}

func (p *recordingPublisher) PublishUserLoggedIn(context.Context, domain.UserLoggedInEvent) error {
	return p.record(domain.EventUserLoggedIn)
}

func (p *recordingPublisher) PublishTokenRefreshed(context.Context, domain.TokenRefreshedEvent) error {
	return p.record(domain.EventTokenRefreshed)
}

func (p *recordingPublisher) PublishUserLoggedOut(context.Context, domain.UserLoggedOutEvent) error {
	return p.record(domain.EventUserLoggedOut)
}

func (p *recordingPublisher) PublishUserProfileUpdated(context.Context, domain.UserProfileUpdatedEvent) error {
	return p.record(domain.EventUserProfileUpdated)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type authFixture struct {
	svc    *AuthService
	users  *fakeUserRepo
	tokens *fakeTokenRepo
	cache  *memory.BlacklistCache
	events *recordingPublisher
	signer *security.TokenSigner
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		JWT: config.JWTSettings{
			Issuer:          "hemidi-authen",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Password: config.PasswordSettings{MinLength: 6},
	}
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	keys, err := security.NewEphemeralKeyProvider()
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider: %v", err)
	}
	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}

	fx := &authFixture{
		users:  newFakeUserRepo(),
		tokens: newFakeTokenRepo(),
		cache:  memory.NewBlacklistCache(0),
		events: &recordingPublisher{},
		signer: security.NewTokenSigner(keys, "hemidi-authen"),
	}

	fx.users.tokens = fx.tokens

	svc, err := NewAuthService(testConfig(), AuthDependencies{
		Users:     fx.users,
		Tokens:    fx.tokens,
		Blacklist: fx.cache,
		Hasher:    hasher,
		Policy:    security.NewPasswordPolicy(6, 0),
		Signer:    fx.signer,
		Events:    fx.events,
		Logger:    zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	fx.svc = svc
	return fx
}

func (fx *authFixture) register(t *testing.T, name, code string) domain.TokenPair {
	t.Helper()
	pair, err := fx.svc.Register(context.Background(), RegisterInput{
		UserName:        name,
		Password:        "password123",
		ConfirmPassword: "password123",
		UserCode:        code,
	})
	if err != nil {
		t.Fatalf("Register(%s) returned error: %v", name, err)
	}
	return pair
}

func (fx *authFixture) userByName(t *testing.T, name string) domain.User {
	t.Helper()
	user, err := fx.users.FindByCredentials(context.Background(), name)
	if err != nil {
		t.Fatalf("user %s not stored: %v", name, err)
	}
	return *user
}
