package oauth2client

import (
	"context"
	"testing"

	"mcpgate/internal/domain"
)

func TestEndpointFor_StaticClientIDSkipsRegistration(t *testing.T) {
	m := NewManager(nil, "https://gate.example.com/oauth2/callback")
	server := &domain.MCPServer{
		Name: "GITHUB_ABCD1234",
		AuthConfigs: []domain.AuthConfigVariant{
			{
				Type: domain.AuthVariantOAuth2,
				OAuth2: &domain.OAuth2AuthConfig{
					ClientID:        "static-client-id",
					ClientSecret:    "static-secret",
					AuthorizeURL:    "https://github.com/oauth/authorize",
					AccessTokenURL:  "https://github.com/oauth/token",
					RefreshTokenURL: "https://github.com/oauth/token",
					Scopes:          []string{"repo"},
				},
			},
		},
	}

	ep, err := m.EndpointFor(context.Background(), server)
	if err != nil {
		t.Fatalf("EndpointFor returned error: %v", err)
	}
	if ep.ClientID != "static-client-id" || ep.ClientSecret != "static-secret" {
		t.Errorf("EndpointFor() = %+v, want the server's static client credentials", ep)
	}
	if ep.RedirectURL != "https://gate.example.com/oauth2/callback" {
		t.Errorf("RedirectURL = %q, want the manager's configured redirect URL", ep.RedirectURL)
	}
}

func TestEndpointFor_NoOAuth2ConfigErrors(t *testing.T) {
	m := NewManager(nil, "https://gate.example.com/oauth2/callback")
	server := &domain.MCPServer{
		Name: "NO_AUTH_SERVER",
		AuthConfigs: []domain.AuthConfigVariant{
			{Type: domain.AuthVariantNoAuth},
		},
	}

	if _, err := m.EndpointFor(context.Background(), server); err == nil {
		t.Error("expected an error when the server declares no oauth2 auth config")
	}
}
