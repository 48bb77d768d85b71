package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mcpgate/internal/domain"
)

// UserStore persists users, email verifications, and refresh tokens.
type UserStore struct{ db *DB }

func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, provider, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Provider, u.EmailVerified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, provider, email_verified, deleted_at, created_at, updated_at
		FROM users WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, provider, email_verified, deleted_at, created_at, updated_at
		FROM users WHERE email = $1 AND deleted_at IS NULL`, email))
}

func (s *UserStore) scanOne(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var deletedAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Provider, &u.EmailVerified,
		&deletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return &u, nil
}

func (s *UserStore) SetEmailVerified(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`, userID)
	return err
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, hash)
	return err
}

func (s *UserStore) CreateVerification(ctx context.Context, v *domain.UserVerification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_verifications (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`, v.ID, v.UserID, v.TokenHash, v.ExpiresAt, v.CreatedAt)
	return err
}

// ConsumeVerification atomically marks a not-yet-used, not-expired
// verification matching tokenHash as used and returns it, or nil if
// no such row exists.
func (s *UserStore) ConsumeVerification(ctx context.Context, tokenHash string, now time.Time) (*domain.UserVerification, error) {
	var v domain.UserVerification
	err := s.db.QueryRowContext(ctx, `
		UPDATE user_verifications SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, used_at, created_at`,
		tokenHash, now).Scan(&v.ID, &v.UserID, &v.TokenHash, &v.ExpiresAt, &v.UsedAt, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume verification: %w", err)
	}
	return &v, nil
}

func (s *UserStore) CreateRefreshToken(ctx context.Context, t *domain.UserRefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_refresh_tokens (id, user_id, token_hash, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.UserAgent, t.ExpiresAt, t.CreatedAt)
	return err
}

func (s *UserStore) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.UserRefreshToken, error) {
	var t domain.UserRefreshToken
	var revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, user_agent, expires_at, revoked_at, created_at
		FROM user_refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.UserAgent, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}

func (s *UserStore) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}
