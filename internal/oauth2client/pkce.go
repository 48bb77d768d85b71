package oauth2client

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCE is a single authorization-code-flow challenge/verifier pair
// (RFC 7636, S256 method only — mcpgate never falls back to plain).
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a fresh S256 PKCE pair.
func NewPKCE() (*PKCE, error) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("oauth2client: generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return &PKCE{Verifier: verifier, Challenge: challenge, Method: "S256"}, nil
}

// NewState generates an opaque CSRF state value for the authorization
// redirect.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth2client: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
