package auth

import (
	"testing"
	"time"

	"mcpgate/internal/domain"
)

func TestNewTokenService_RejectsEmptySecret(t *testing.T) {
	if _, err := NewTokenService("", "mcpgate", time.Hour); err != ErrEmptySecretKey {
		t.Errorf("NewTokenService(\"\") error = %v, want %v", err, ErrEmptySecretKey)
	}
}

func TestIssueAndVerifyAccessToken_RoundTrip(t *testing.T) {
	svc, err := NewTokenService("test-secret-key", "mcpgate", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	want := domain.AuthClaims{UserID: "u1", Email: "a@example.com", Name: "Ada"}

	token, expiresAt, err := svc.IssueAccessToken(want)
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("IssueAccessToken returned an empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Errorf("expiresAt = %v, want a time in the future", expiresAt)
	}

	got, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got.UserID != want.UserID || got.Email != want.Email || got.Name != want.Name {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
}

func TestVerify_RejectsTokenFromDifferentSecret(t *testing.T) {
	a, err := NewTokenService("secret-a", "mcpgate", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	b, err := NewTokenService("secret-b", "mcpgate", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}

	token, _, err := a.IssueAccessToken(domain.AuthClaims{UserID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	if _, err := b.Verify(token); err != ErrInvalidToken {
		t.Errorf("Verify() error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	svc, err := NewTokenService("test-secret-key", "mcpgate", -time.Minute)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	token, _, err := svc.IssueAccessToken(domain.AuthClaims{UserID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	if _, err := svc.Verify(token); err != ErrExpiredToken {
		t.Errorf("Verify() error = %v, want %v", err, ErrExpiredToken)
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	svc, err := NewTokenService("test-secret-key", "mcpgate", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	if _, err := svc.Verify("not-a-jwt"); err != ErrInvalidToken {
		t.Errorf("Verify() error = %v, want %v", err, ErrInvalidToken)
	}
}
