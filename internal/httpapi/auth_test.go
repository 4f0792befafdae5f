package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"pharmapos/backend/internal/domain"
)

func TestAuthenticatorRoundTrip(t *testing.T) {
	auth := NewAuthenticator("test-secret-key-with-enough-length", time.Hour)
	token, expiresAt, err := auth.Sign(domain.Actor{UserID: "u-1", PharmacyID: "ph-1", Role: domain.RolePharmacist})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != "u-1" || actor.PharmacyID != "ph-1" || actor.Role != domain.RolePharmacist {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator("test-secret-key-with-enough-length", time.Hour)

	other := NewAuthenticator("another-secret-key-with-enough-len", time.Hour)
	foreign, _, err := other.Sign(domain.Actor{UserID: "u-1", PharmacyID: "ph-1", Role: domain.RoleCashier})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	noPharmacy, _, _ := auth.Sign(domain.Actor{UserID: "u-1", Role: domain.RoleCashier})
	if _, err := auth.ParseToken(noPharmacy); err == nil {
		t.Fatalf("expected token without pharmacy to be rejected")
	}

	badRole, _, _ := auth.Sign(domain.Actor{UserID: "u-1", PharmacyID: "ph-1", Role: "ADMIN"})
	if _, err := auth.ParseToken(badRole); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "u-1"},
		PharmacyID:       "ph-1",
		Role:             "PHARMACIST",
	})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := auth.ParseToken(unsigned); err == nil {
		t.Fatalf("expected alg none to be rejected")
	}
}

func TestAuthenticatorRejectsExpiredToken(t *testing.T) {
	auth := NewAuthenticator("test-secret-key-with-enough-length", time.Minute)
	auth.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	token, _, err := auth.Sign(domain.Actor{UserID: "u-1", PharmacyID: "ph-1", Role: domain.RoleCashier})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	auth.now = func() time.Time { return time.Now().UTC() }
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
