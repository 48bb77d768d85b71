package oauth2client

import (
	"context"
	"fmt"

	"mcpgate/internal/domain"
	"mcpgate/internal/storage/postgres"
)

// Manager wires discovery, dynamic client registration, and the
// local OAuth2ClientStore cache together, so a caller only has to
// name an MCPServer and get back a ready-to-use Endpoint.
type Manager struct {
	store       *postgres.OAuth2ClientStore
	redirectURL string
}

func NewManager(store *postgres.OAuth2ClientStore, redirectURL string) *Manager {
	return &Manager{store: store, redirectURL: redirectURL}
}

// EndpointFor returns the Endpoint for server, registering a client
// dynamically (and caching the result) on first use if the server's
// oauth2 auth config carries no static client_id.
func (m *Manager) EndpointFor(ctx context.Context, server *domain.MCPServer) (Endpoint, error) {
	var variant *domain.OAuth2AuthConfig
	for _, v := range server.AuthConfigs {
		if v.Type == domain.AuthVariantOAuth2 && v.OAuth2 != nil {
			variant = v.OAuth2
			break
		}
	}
	if variant == nil {
		return Endpoint{}, fmt.Errorf("oauth2client: server %s has no oauth2 auth config", server.Name)
	}

	if variant.ClientID != "" {
		return Endpoint{
			ClientID: variant.ClientID, ClientSecret: variant.ClientSecret,
			AuthorizeURL: variant.AuthorizeURL, AccessTokenURL: variant.AccessTokenURL,
			RefreshTokenURL: variant.RefreshTokenURL, RedirectURL: m.redirectURL, Scopes: variant.Scopes,
		}, nil
	}

	if cached, err := m.store.GetByServerID(ctx, server.ID); err != nil {
		return Endpoint{}, err
	} else if cached != nil {
		return Endpoint{
			ClientID: cached.ClientID, ClientSecret: cached.ClientSecret,
			AuthorizeURL: cached.AuthorizeURL, AccessTokenURL: cached.AccessTokenURL,
			RefreshTokenURL: cached.RefreshTokenURL, RedirectURL: m.redirectURL, Scopes: variant.Scopes,
		}, nil
	}

	if variant.RegistrationURL == "" {
		return Endpoint{}, fmt.Errorf("oauth2client: server %s declares no client_id and no registration_url", server.Name)
	}
	reg, err := Register(ctx, variant.RegistrationURL, m.redirectURL, variant.Scopes)
	if err != nil {
		return Endpoint{}, err
	}

	if err := m.store.Upsert(ctx, &postgres.OAuth2ClientRegistration{
		MCPServerID: server.ID, ClientID: reg.ClientID, ClientSecret: reg.ClientSecret,
		AuthorizeURL: variant.AuthorizeURL, AccessTokenURL: variant.AccessTokenURL,
		RefreshTokenURL: variant.RefreshTokenURL, TokenEndpointAuthMethod: variant.TokenEndpointAuthMethod,
	}); err != nil {
		return Endpoint{}, fmt.Errorf("oauth2client: cache registration: %w", err)
	}

	return Endpoint{
		ClientID: reg.ClientID, ClientSecret: reg.ClientSecret,
		AuthorizeURL: variant.AuthorizeURL, AccessTokenURL: variant.AccessTokenURL,
		RefreshTokenURL: variant.RefreshTokenURL, RedirectURL: m.redirectURL, Scopes: variant.Scopes,
	}, nil
}

// DiscoverServerAuth runs RFC 9728 + RFC 8414/OIDC discovery for a
// server URL, used when registering a new MCPServer whose operator
// didn't supply explicit authorize/token URLs.
func (m *Manager) DiscoverServerAuth(ctx context.Context, serverURL string) (*AuthServerMetadata, error) {
	resource, err := DiscoverProtectedResource(ctx, serverURL)
	if err != nil {
		return nil, err
	}
	if len(resource.AuthorizationServers) == 0 {
		return nil, fmt.Errorf("oauth2client: protected resource metadata names no authorization_servers")
	}
	return DiscoverAuthServer(ctx, resource.AuthorizationServers[0])
}
