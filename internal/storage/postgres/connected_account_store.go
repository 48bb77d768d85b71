package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"mcpgate/internal/domain"
)

// ConnectedAccountStore persists ConnectedAccount rows. Credentials
// are stored pre-encrypted by the caller (internal/credentials); this
// store only ever sees ciphertext.
type ConnectedAccountStore struct{ db *DB }

func (s *ConnectedAccountStore) Create(ctx context.Context, a *domain.ConnectedAccount, ciphertext string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connected_accounts
			(id, user_id, configuration_id, credentials_type, credentials, ownership, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.ConfigurationID, a.Credentials.Type, ciphertext, a.Ownership, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("connected account already exists for this configuration/ownership: %w", err)
	}
	return err
}

// GetForExecution resolves the connected account a caller should use
// to reach configurationID: the user's individual account if one
// exists, else the configuration's shared/operational account.
func (s *ConnectedAccountStore) GetForExecution(ctx context.Context, configurationID, userID string) (*domain.ConnectedAccount, string, error) {
	acc, ciphertext, err := s.get(ctx, `
		SELECT id, user_id, configuration_id, credentials_type, credentials, ownership, created_at, updated_at
		FROM connected_accounts WHERE configuration_id = $1 AND user_id = $2 AND ownership = 'individual'`,
		configurationID, userID)
	if err != nil || acc != nil {
		return acc, ciphertext, err
	}
	return s.get(ctx, `
		SELECT id, user_id, configuration_id, credentials_type, credentials, ownership, created_at, updated_at
		FROM connected_accounts WHERE configuration_id = $1 AND ownership IN ('shared', 'operational')`,
		configurationID)
}

// GetOperational returns configurationID's operational connected
// account, used by catalog sync which always runs as the platform,
// never as an end user.
func (s *ConnectedAccountStore) GetOperational(ctx context.Context, configurationID string) (*domain.ConnectedAccount, string, error) {
	return s.get(ctx, `
		SELECT id, user_id, configuration_id, credentials_type, credentials, ownership, created_at, updated_at
		FROM connected_accounts WHERE configuration_id = $1 AND ownership = 'operational'`, configurationID)
}

func (s *ConnectedAccountStore) GetByID(ctx context.Context, id string) (*domain.ConnectedAccount, string, error) {
	return s.get(ctx, `
		SELECT id, user_id, configuration_id, credentials_type, credentials, ownership, created_at, updated_at
		FROM connected_accounts WHERE id = $1`, id)
}

func (s *ConnectedAccountStore) get(ctx context.Context, query string, args ...any) (*domain.ConnectedAccount, string, error) {
	var a domain.ConnectedAccount
	var userID sql.NullString
	var credType string
	var ciphertext string
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&a.ID, &userID, &a.ConfigurationID, &credType, &ciphertext, &a.Ownership, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get connected account: %w", err)
	}
	if userID.Valid {
		a.UserID = &userID.String
	}
	a.Credentials.Type = domain.AuthVariantType(credType)
	return &a, ciphertext, nil
}

// UpdateCredentials replaces the ciphertext for an account, used
// after an OAuth2 token refresh. Call under row-level lock
// (LockForRefresh) to avoid racing a concurrent refresh.
func (s *ConnectedAccountStore) UpdateCredentials(ctx context.Context, id, ciphertext string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE connected_accounts SET credentials = $2, updated_at = now() WHERE id = $1`, id, ciphertext)
	return err
}

// LockForRefresh takes a row-level FOR UPDATE lock on the account
// within tx, returning the current ciphertext, so callers can decide
// whether a refresh is still needed after acquiring the lock.
func (s *ConnectedAccountStore) LockForRefresh(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var ciphertext string
	err := tx.QueryRowContext(ctx,
		`SELECT credentials FROM connected_accounts WHERE id = $1 FOR UPDATE`, id).Scan(&ciphertext)
	if err != nil {
		return "", fmt.Errorf("lock connected account: %w", err)
	}
	return ciphertext, nil
}

func (s *ConnectedAccountStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connected_accounts WHERE id = $1`, id)
	return err
}
