// Package gatewaysvc implements the bundle-keyed gateway dispatcher
// and the SEARCH_TOOLS/EXECUTE_TOOL meta-tools, adapted from an
// MCP-server emulation surface into a bundle-keyed proxy in front of
// arbitrary upstream MCP servers.
package gatewaysvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/domain"
	"mcpgate/internal/storage/postgres"
)

// sessions wraps postgres.SessionStore with the session lifecycle
// rules the dispatcher owns.
type sessions struct {
	store *postgres.Store
}

// create starts a new MCPSession bound to bundleID.
func (s *sessions) create(ctx context.Context, bundleID string) (*domain.MCPSession, error) {
	now := time.Now()
	sess := &domain.MCPSession{
		ID:                  uuid.NewString(),
		BundleID:            bundleID,
		ExternalMCPSessions: map[string]string{},
		LastAccessedAt:      now,
		CreatedAt:           now,
	}
	if err := s.store.Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// resolve looks up sessionID, requiring it to be bound to bundleID
// and not idle-expired; touches last_accessed_at on success.
func (s *sessions) resolve(ctx context.Context, sessionID, bundleID string) (*domain.MCPSession, error) {
	sess, err := s.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.BundleID != bundleID {
		return nil, nil
	}
	now := time.Now()
	if sess.Expired(now) {
		return nil, nil
	}
	if err := s.store.Sessions.Touch(ctx, sessionID, now); err != nil {
		return nil, err
	}
	sess.LastAccessedAt = now
	return sess, nil
}

// upstreamSessionID returns the session id already negotiated with
// serverID within sess, if any.
func (s *sessions) upstreamSessionID(sess *domain.MCPSession, serverID string) (string, bool) {
	id, ok := sess.ExternalMCPSessions[serverID]
	return id, ok
}

// recordUpstreamSession persists a newly negotiated upstream session
// id for serverID within sess.
func (s *sessions) recordUpstreamSession(ctx context.Context, sess *domain.MCPSession, serverID, upstreamSessionID string) error {
	if err := s.store.Sessions.SetUpstreamSession(ctx, sess.ID, serverID, upstreamSessionID); err != nil {
		return fmt.Errorf("gatewaysvc: record upstream session: %w", err)
	}
	sess.ExternalMCPSessions[serverID] = upstreamSessionID
	return nil
}
