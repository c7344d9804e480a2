package httpapi

import (
	"testing"
	"time"

	"khaosoi/backend/internal/domain"
	"khaosoi/backend/internal/store/memory"
)

func newTestAuth(t *testing.T, ttl time.Duration) *AuthManager {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pass")
	t.Setenv("SEED_KITCHEN_PASSWORD", "kitchen-test-pass")
	return NewAuthManager("test-secret-test-secret-test-secret", ttl, memory.NewSeeded("branch_001"))
}

func TestParseTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(t, time.Hour)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin-test-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := newTestAuth(t, time.Hour)

	resp, err := auth.Login(domain.LoginRequest{Username: "kitchen", Password: "kitchen-test-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := auth.ParseToken(resp.AccessToken + "x"); err == nil {
		t.Fatalf("expected rejection of a tampered token")
	}

	other := NewAuthManager("another-secret-another-secret-12", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected rejection with a different secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := newTestAuth(t, time.Hour)

	expired, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(expired); err == nil {
		t.Fatalf("expected rejection of an expired token")
	}
}
