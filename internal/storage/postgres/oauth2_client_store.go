package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// OAuth2ClientRegistration is the locally-cached result of dynamic
// client registration (RFC 7591) and discovery against one upstream
// MCP server's authorization server.
type OAuth2ClientRegistration struct {
	MCPServerID          string
	ClientID             string
	ClientSecret         string
	AuthorizeURL         string
	AccessTokenURL       string
	RefreshTokenURL      string
	TokenEndpointAuthMethod string
}

// OAuth2ClientStore persists the result of discovery + DCR so it only
// needs to run once per upstream server.
type OAuth2ClientStore struct{ db *DB }

func (s *OAuth2ClientStore) Upsert(ctx context.Context, r *OAuth2ClientRegistration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth2_client_registrations
			(mcp_server_id, client_id, client_secret, authorize_url, access_token_url,
			 refresh_token_url, token_endpoint_auth_method, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (mcp_server_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			authorize_url = EXCLUDED.authorize_url,
			access_token_url = EXCLUDED.access_token_url,
			refresh_token_url = EXCLUDED.refresh_token_url,
			token_endpoint_auth_method = EXCLUDED.token_endpoint_auth_method`,
		r.MCPServerID, r.ClientID, r.ClientSecret, r.AuthorizeURL, r.AccessTokenURL,
		r.RefreshTokenURL, r.TokenEndpointAuthMethod)
	return err
}

func (s *OAuth2ClientStore) GetByServerID(ctx context.Context, mcpServerID string) (*OAuth2ClientRegistration, error) {
	var r OAuth2ClientRegistration
	err := s.db.QueryRowContext(ctx, `
		SELECT mcp_server_id, client_id, client_secret, authorize_url, access_token_url,
		       refresh_token_url, token_endpoint_auth_method
		FROM oauth2_client_registrations WHERE mcp_server_id = $1`, mcpServerID).
		Scan(&r.MCPServerID, &r.ClientID, &r.ClientSecret, &r.AuthorizeURL, &r.AccessTokenURL,
			&r.RefreshTokenURL, &r.TokenEndpointAuthMethod)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth2 client registration: %w", err)
	}
	return &r, nil
}
