package credentials

import (
	"testing"
	"time"

	"mcpgate/internal/crypto"
	"mcpgate/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	enc, err := crypto.NewEncryptionService([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewEncryptionService returned error: %v", err)
	}
	return NewStore(nil, enc, 5*time.Minute)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	s := testStore(t)
	creds := domain.AuthCredentials{
		Type:   domain.AuthVariantAPIKey,
		APIKey: &domain.APIKeySecret{Secret: "sk-test-123"},
	}

	ciphertext, err := s.seal(creds)
	if err != nil {
		t.Fatalf("seal returned error: %v", err)
	}
	if ciphertext == "" {
		t.Fatal("seal returned an empty ciphertext")
	}

	var out domain.AuthCredentials
	if err := s.open(ciphertext, &out); err != nil {
		t.Fatalf("open returned error: %v", err)
	}
	if out.Type != creds.Type || out.APIKey == nil || out.APIKey.Secret != creds.APIKey.Secret {
		t.Errorf("open() = %+v, want %+v", out, creds)
	}
}

func TestOpen_RejectsTamperedCiphertext(t *testing.T) {
	s := testStore(t)
	ciphertext, err := s.seal(domain.AuthCredentials{Type: domain.AuthVariantNoAuth})
	if err != nil {
		t.Fatalf("seal returned error: %v", err)
	}

	tampered := ciphertext[:len(ciphertext)-1] + "x"
	var out domain.AuthCredentials
	if err := s.open(tampered, &out); err == nil {
		t.Error("expected tampered ciphertext to fail to decrypt")
	}
}
