package auth

import "testing"

func TestHashAndCheckPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple", 4)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !CheckPassword(hash, "correct-horse-battery-staple") {
		t.Error("expected CheckPassword to accept the original plaintext")
	}
	if CheckPassword(hash, "wrong-password") {
		t.Error("expected CheckPassword to reject a different plaintext")
	}
}

func TestHashPassword_NonPositiveCostUsesDefault(t *testing.T) {
	hash, err := HashPassword("a-password", 0)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !CheckPassword(hash, "a-password") {
		t.Error("expected CheckPassword to accept the original plaintext with default cost")
	}
}
