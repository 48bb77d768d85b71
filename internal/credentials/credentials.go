// Package credentials resolves, decrypts, and refreshes the
// ConnectedAccount a request should use to reach an upstream MCP
// server, following an individual-first/shared-fallback ownership
// model.
package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/crypto"
	"mcpgate/internal/domain"
	"mcpgate/internal/storage/postgres"
)

// Store resolves ConnectedAccount credentials, decrypting them with
// encryption and refreshing OAuth2 tokens within lookahead of expiry.
type Store struct {
	store      *postgres.Store
	encryption *crypto.EncryptionService
	lookahead  time.Duration
}

func NewStore(pg *postgres.Store, encryption *crypto.EncryptionService, lookahead time.Duration) *Store {
	return &Store{store: pg, encryption: encryption, lookahead: lookahead}
}

// Create encrypts creds and persists a new ConnectedAccount.
func (s *Store) Create(ctx context.Context, userID *string, configurationID string, ownership domain.ConnectedAccountOwnership, creds domain.AuthCredentials) (*domain.ConnectedAccount, error) {
	ciphertext, err := s.seal(creds)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	acc := &domain.ConnectedAccount{
		ID:              uuid.NewString(),
		UserID:          userID,
		ConfigurationID: configurationID,
		Credentials:     creds,
		Ownership:       ownership,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Accounts.Create(ctx, acc, ciphertext); err != nil {
		return nil, err
	}
	return acc, nil
}

// Resolve returns the decrypted ConnectedAccount a userID should use
// to reach configurationID, refreshing an OAuth2 token in place if it
// is within lookahead of expiry. refresher is supplied by the OAuth2
// client manager (C3) to keep this package free of HTTP concerns.
func (s *Store) Resolve(ctx context.Context, configurationID, userID string, refresher func(context.Context, domain.OAuth2TokenSet) (domain.OAuth2TokenSet, error)) (*domain.ConnectedAccount, error) {
	acc, ciphertext, err := s.store.Accounts.GetForExecution(ctx, configurationID, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	if err := s.open(ciphertext, &acc.Credentials); err != nil {
		return nil, err
	}

	if acc.Credentials.Type != domain.AuthVariantOAuth2 || acc.Credentials.OAuth2 == nil || refresher == nil {
		return acc, nil
	}
	if time.Until(acc.Credentials.OAuth2.ExpiresAt) > s.lookahead {
		return acc, nil
	}
	return s.refreshLocked(ctx, acc, refresher)
}

// refreshLocked re-checks token freshness under a row lock (another
// request may have refreshed it first) before calling refresher.
func (s *Store) refreshLocked(ctx context.Context, acc *domain.ConnectedAccount, refresher func(context.Context, domain.OAuth2TokenSet) (domain.OAuth2TokenSet, error)) (*domain.ConnectedAccount, error) {
	tx, err := s.store.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("credentials: begin refresh tx: %w", err)
	}
	defer tx.Rollback()

	ciphertext, err := s.store.Accounts.LockForRefresh(ctx, tx, acc.ID)
	if err != nil {
		return nil, err
	}
	var locked domain.AuthCredentials
	if err := s.open(ciphertext, &locked); err != nil {
		return nil, err
	}
	if locked.OAuth2 == nil || time.Until(locked.OAuth2.ExpiresAt) > s.lookahead {
		// Another request already refreshed it.
		acc.Credentials = locked
		return acc, tx.Commit()
	}

	fresh, err := refresher(ctx, *locked.OAuth2)
	if err != nil {
		return nil, fmt.Errorf("credentials: refresh oauth2 token: %w", err)
	}
	locked.OAuth2 = &fresh
	newCiphertext, err := s.seal(locked)
	if err != nil {
		return nil, err
	}
	if err := s.store.Accounts.UpdateCredentials(ctx, acc.ID, newCiphertext); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	acc.Credentials = locked
	return acc, nil
}

func (s *Store) seal(creds domain.AuthCredentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("credentials: marshal: %w", err)
	}
	return s.encryption.Encrypt(string(plain))
}

func (s *Store) open(ciphertext string, out *domain.AuthCredentials) error {
	plain, err := s.encryption.Decrypt(ciphertext)
	if err != nil {
		return fmt.Errorf("credentials: decrypt: %w", err)
	}
	if err := json.Unmarshal([]byte(plain), out); err != nil {
		return fmt.Errorf("credentials: unmarshal: %w", err)
	}
	return nil
}

// ResolveOperational returns the decrypted operational connected
// account for configurationID, used by catalog sync which always
// runs as the platform rather than an end user.
func (s *Store) ResolveOperational(ctx context.Context, configurationID string) (*domain.ConnectedAccount, error) {
	acc, ciphertext, err := s.store.Accounts.GetOperational(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	if err := s.open(ciphertext, &acc.Credentials); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.store.Accounts.Delete(ctx, id)
}
