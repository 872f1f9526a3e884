package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/infra/security"
	"github.com/nnh2x/hemidi-authen/internal/transport/http/middleware"
	"github.com/nnh2x/hemidi-authen/internal/usecase"
)

type fakeAuth struct {
	registered  usecase.RegisterInput
	loggedOut   [2]string
	registerErr error
}

func (f *fakeAuth) Register(_ context.Context, in usecase.RegisterInput) (domain.TokenPair, error) {
	f.registered = in
	if f.registerErr != nil {
		return domain.TokenPair{}, f.registerErr
	}
	return domain.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 900}, nil
}

func (f *fakeAuth) Login(context.Context, string, string) (domain.TokenPair, error) {
	return domain.TokenPair{}, usecase.ErrInvalidCredentials
}

func (f *fakeAuth) Refresh(context.Context, string) (domain.TokenPair, error) {
	return domain.TokenPair{AccessToken: "access2", RefreshToken: "refresh2", TokenType: "Bearer", ExpiresIn: 900}, nil
}

func (f *fakeAuth) Logout(_ context.Context, accessToken, userID string) (usecase.MessageResult, error) {
	f.loggedOut = [2]string{accessToken, userID}
	return usecase.MessageResult{Message: "Logged out successfully"}, nil
}

func (f *fakeAuth) ValidateToken(context.Context, string) (domain.ValidationResult, error) {
	return domain.ValidationResult{}, domain.Unavailable(errors.New("ledger down"))
}

type fakeProfiles struct {
	update domain.ProfileUpdate
	target string
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (domain.UserPublicView, error) {
	return domain.UserPublicView{ID: userID, UserName: "alice"}, nil
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, targetID string, update domain.ProfileUpdate, _ domain.User) (domain.UserPublicView, error) {
	f.target = targetID
	f.update = update
	return domain.UserPublicView{ID: targetID}, nil
}

// withUser mimics RequireAuth.
func withUser(user *domain.User, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CurrentUserKey, user)
		c.Set(middleware.AccessTokenKey, token)
		c.Next()
	}
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandlerRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &fakeAuth{}
	h := NewAuthHandler(auth)
	r := gin.New()
	r.POST("/register", h.Register)

	w := do(r, http.MethodPost, "/register", `{"userName":"alice","password":"secret1","confirmPassword":"secret1","userCode":"code01"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if auth.registered.UserCode != "code01" || auth.registered.ConfirmPassword != "secret1" {
		t.Fatalf("unexpected input %+v", auth.registered)
	}
	var pair domain.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pair.AccessToken != "access" || pair.TokenType != "Bearer" {
		t.Fatalf("unexpected pair %+v", pair)
	}

	if w := do(r, http.MethodPost, "/register", `{"userName":"alice"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete payload, got %d", w.Code)
	}

	auth.registerErr = usecase.ErrUserExists
	w = do(r, http.MethodPost, "/register", `{"userName":"alice","password":"secret1","confirmPassword":"secret1","userCode":"code01"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestAuthHandlerLoginMapsCredentialsError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", NewAuthHandler(&fakeAuth{}).Login)

	w := do(r, http.MethodPost, "/login", `{"userName":"alice","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthHandlerRefreshReadsSnakeCaseField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/refresh", NewAuthHandler(&fakeAuth{}).Refresh)

	if w := do(r, http.MethodPost, "/refresh", `{"refreshToken":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for camelCase field, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/refresh", `{"refresh_token":"x"}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthHandlerLogoutUsesContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &fakeAuth{}
	r := gin.New()
	r.POST("/logout", withUser(&domain.User{ID: "u1"}, "tok"), NewAuthHandler(auth).Logout)

	w := do(r, http.MethodPost, "/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if auth.loggedOut != [2]string{"tok", "u1"} {
		t.Fatalf("unexpected logout call %v", auth.loggedOut)
	}
}

func TestAuthHandlerValidateUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/validate", NewAuthHandler(&fakeAuth{}).Validate)

	w := do(r, http.MethodPost, "/validate", `{"token":"a.b.c"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestProfileHandlerUpdatePassesPartialUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	profiles := &fakeProfiles{}
	h := NewProfileHandler(profiles)
	r := gin.New()
	r.PUT("/profile/:id", withUser(&domain.User{ID: "u1"}, "tok"), h.Update)
	r.GET("/profile", h.Get)

	w := do(r, http.MethodPut, "/profile/u2", `{"isAdmin":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if profiles.target != "u2" {
		t.Fatalf("expected target u2, got %q", profiles.target)
	}
	if profiles.update.IsAdmin == nil || !*profiles.update.IsAdmin || profiles.update.UserName != nil {
		t.Fatalf("unexpected update %+v", profiles.update)
	}

	if w := do(r, http.MethodGet, "/profile", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a current user, got %d", w.Code)
	}
}

type fakeQuotas struct{ swept int }

func (f *fakeQuotas) Stats(time.Time) domain.QuotaStats {
	return domain.QuotaStats{TotalKeys: 3, ActiveKeys: 2}
}

func (f *fakeQuotas) Sweep(time.Time) int {
	f.swept++
	return 1
}

func TestRateLimitHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	quotas := &fakeQuotas{}
	h := NewRateLimitHandler(quotas)
	r := gin.New()
	r.GET("/stats", h.Stats)
	r.DELETE("/", h.Sweep)

	w := do(r, http.MethodGet, "/stats", "")
	if !strings.Contains(w.Body.String(), `"activeKeys":2`) {
		t.Fatalf("unexpected stats body %s", w.Body.String())
	}

	w = do(r, http.MethodDelete, "/", "")
	var resp SweepResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Removed != 1 || quotas.swept != 1 {
		t.Fatalf("unexpected sweep result %+v", resp)
	}
}

func TestHealthHandlerReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(
		WithReadinessCheck("database", func(context.Context) error { return nil }),
		WithReadinessCheck("redis", nil),
	)
	r := gin.New()
	r.GET("/readyz", h.Readiness)

	w := do(r, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ready" || len(resp.Checks) != 1 {
		t.Fatalf("unexpected readiness %+v", resp)
	}
}

func TestJWKSHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keys, err := security.NewEphemeralKeyProvider()
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider: %v", err)
	}
	r := gin.New()
	r.GET("/jwks", NewJWKSHandler(keys).Keys)

	w := do(r, http.MethodGet, "/jwks", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Cache-Control") != jwksCacheControl {
		t.Fatalf("missing cache header")
	}
	var set security.JSONWebKeySet
	if err := json.Unmarshal(w.Body.Bytes(), &set); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(set.Keys) != 1 || set.Keys[0].Kid != "ephemeral" {
		t.Fatalf("unexpected key set %+v", set)
	}
}
