package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mcpgate/internal/domain"
)

// SessionStore persists MCPSession rows: one live gateway session per
// bundle connection, tracking the per-upstream-server session ids
// negotiated during initialize.
type SessionStore struct{ db *DB }

func (s *SessionStore) Create(ctx context.Context, sess *domain.MCPSession) error {
	ext, err := json.Marshal(sess.ExternalMCPSessions)
	if err != nil {
		return fmt.Errorf("marshal external_mcp_sessions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_sessions (id, bundle_id, external_mcp_sessions, last_accessed_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.BundleID, ext, sess.LastAccessedAt, sess.CreatedAt)
	return err
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (*domain.MCPSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// Touch updates last_accessed_at to now, resetting the idle TTL
// clock, and returns the refreshed row.
func (s *SessionStore) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_sessions SET last_accessed_at = $2 WHERE id = $1`, id, now)
	return err
}

// SetUpstreamSession records the upstream session id negotiated for
// one server within this gateway session.
func (s *SessionStore) SetUpstreamSession(ctx context.Context, id, serverID, upstreamSessionID string) error {
	sess, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if sess.ExternalMCPSessions == nil {
		sess.ExternalMCPSessions = map[string]string{}
	}
	sess.ExternalMCPSessions[serverID] = upstreamSessionID
	ext, err := json.Marshal(sess.ExternalMCPSessions)
	if err != nil {
		return fmt.Errorf("marshal external_mcp_sessions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE mcp_sessions SET external_mcp_sessions = $2 WHERE id = $1`, id, ext)
	return err
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE id = $1`, id)
	return err
}

// DeleteExpired reclaims sessions idle past domain.SessionIdleTTL,
// returning the count removed. Called lazily (on next access to the
// owning bundle), not by a background sweeper.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-domain.SessionIdleTTL)
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE last_accessed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SessionStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-domain.SessionIdleTTL)
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM mcp_sessions WHERE last_accessed_at >= $1`, cutoff).Scan(&n)
	return n, err
}

const sessionSelect = `
	SELECT id, bundle_id, external_mcp_sessions, last_accessed_at, created_at FROM mcp_sessions`

func scanSession(row rowScanner) (*domain.MCPSession, error) {
	var sess domain.MCPSession
	var ext []byte
	if err := row.Scan(&sess.ID, &sess.BundleID, &ext, &sess.LastAccessedAt, &sess.CreatedAt); err != nil {
		return nil, err
	}
	if len(ext) > 0 {
		if err := json.Unmarshal(ext, &sess.ExternalMCPSessions); err != nil {
			return nil, fmt.Errorf("unmarshal external_mcp_sessions: %w", err)
		}
	}
	return &sess, nil
}
