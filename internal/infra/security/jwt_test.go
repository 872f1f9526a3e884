package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

func createTestKeyProvider(t *testing.T) KeyProvider {
	t.Helper()

	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(dir, "test-key.pem"), pemBytes, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	provider, err := NewFileKeyProvider(dir)
	if err != nil {
		t.Fatalf("NewFileKeyProvider: %v", err)
	}
	return provider
}

var testUser = domain.User{ID: "user-1", UserName: "alice"}

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner(createTestKeyProvider(t), "hemidi-authen")

	raw, claims, err := signer.Sign(testUser, domain.TokenTypeAccess, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if !LooksLikeToken(raw) {
		t.Fatalf("signed token does not have three base64url segments: %q", raw)
	}
	if claims.ID == "" {
		t.Fatalf("every token should carry a jti")
	}

	verified, err := signer.Verify(raw, domain.TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if verified.Subject != testUser.ID || verified.UserName != testUser.UserName {
		t.Fatalf("unexpected claims %+v", verified)
	}
}

func TestTokenSignerMintsDistinctTokens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	signer := NewTokenSigner(createTestKeyProvider(t), "hemidi-authen").WithClock(func() time.Time { return now })

	a, _, _ := signer.Sign(testUser, domain.TokenTypeRefresh, time.Hour)
	b, _, _ := signer.Sign(testUser, domain.TokenTypeRefresh, time.Hour)
	if a == b {
		t.Fatalf("tokens minted at the same instant must still differ")
	}
}

func TestTokenSignerRejectsWrongType(t *testing.T) {
	signer := NewTokenSigner(createTestKeyProvider(t), "hemidi-authen")
	raw, _, _ := signer.Sign(testUser, domain.TokenTypeRefresh, time.Hour)

	if _, err := signer.Verify(raw, domain.TokenTypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token must not pass as access token, got %v", err)
	}
}

func TestTokenSignerExpiry(t *testing.T) {
	now := time.Now().UTC()
	signer := NewTokenSigner(createTestKeyProvider(t), "hemidi-authen").WithClock(func() time.Time { return now })
	raw, _, _ := signer.Sign(testUser, domain.TokenTypeAccess, time.Minute)

	now = now.Add(2 * time.Minute)
	if _, err := signer.Verify(raw, domain.TokenTypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenSignerRejectsForeignKey(t *testing.T) {
	signer := NewTokenSigner(createTestKeyProvider(t), "hemidi-authen")
	other := NewTokenSigner(createTestKeyProvider(t), "hemidi-authen")

	raw, _, _ := other.Sign(testUser, domain.TokenTypeAccess, time.Minute)
	// Both providers use kid "test-key" but hold different keys.
	if _, err := signer.Verify(raw, domain.TokenTypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestTokenSignerDecode(t *testing.T) {
	signer := NewTokenSigner(createTestKeyProvider(t), "hemidi-authen")
	raw, issued, _ := signer.Sign(testUser, domain.TokenTypeAccess, time.Minute)

	claims, err := signer.Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !claims.ExpiresAt.Equal(issued.ExpiresAt.Time) {
		t.Fatalf("decoded exp mismatch")
	}

	for _, bad := range []string{"", "not-a-token", strings.Repeat("a", 10) + ".b"} {
		if _, err := signer.Decode(bad); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("expected ErrTokenMalformed for %q, got %v", bad, err)
		}
	}
}

func TestLooksLikeToken(t *testing.T) {
	if LooksLikeToken("a.b") || LooksLikeToken("a.b.c.d") || LooksLikeToken("a.b.c+") {
		t.Fatalf("shape check too lenient")
	}
	if !LooksLikeToken("eyJ.eyJ.sig-_") {
		t.Fatalf("shape check too strict")
	}
}

func TestKeyProviderFallsBackOutsideProduction(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")

	if _, err := NewKeyProvider("production", missing); err == nil {
		t.Fatalf("production must refuse to start without keys")
	}
	provider, err := NewKeyProvider("development", missing)
	if err != nil {
		t.Fatalf("development should fall back to an ephemeral key: %v", err)
	}
	kid, key, err := provider.SigningKey()
	if err != nil || key == nil || kid == "" {
		t.Fatalf("ephemeral provider should sign, got %q %v", kid, err)
	}
	if _, err := provider.VerificationKey("other"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("unknown kid should be rejected, got %v", err)
	}
}

func TestBuildJWKS(t *testing.T) {
	provider := createTestKeyProvider(t)
	set := BuildJWKS(provider)

	if len(set.Keys) != 1 {
		t.Fatalf("expected one key, got %d", len(set.Keys))
	}
	key := set.Keys[0]
	if key.Kid != "test-key" || key.Kty != "RSA" || key.Alg != "RS256" || key.E != "AQAB" {
		t.Fatalf("unexpected jwk %+v", key)
	}
}
