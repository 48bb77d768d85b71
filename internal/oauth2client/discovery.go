// Package oauth2client discovers, dynamically registers with, and
// refreshes tokens against an upstream MCP server's OAuth2
// authorization server (C3): RFC 9728 protected-resource metadata,
// RFC 8414 / OIDC authorization-server discovery, RFC 7591 dynamic
// client registration, and PKCE S256 authorization-code exchange.
package oauth2client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const userAgent = "mcpgate/1.0"

var httpClient = &http.Client{
	Timeout: 15 * time.Second,
	Transport: &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	},
}

// ProtectedResourceMetadata is the RFC 9728 document served at
// /.well-known/oauth-protected-resource for an upstream MCP server.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// AuthServerMetadata is the union of the fields mcpgate needs from an
// RFC 8414 OAuth authorization-server document or an OIDC discovery
// document (they share this shape in practice).
type AuthServerMetadata struct {
	Issuer                 string   `json:"issuer"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint"`
	TokenEndpoint          string   `json:"token_endpoint"`
	RegistrationEndpoint   string   `json:"registration_endpoint,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// DiscoverProtectedResource fetches RFC 9728 metadata for an upstream
// MCP server's base URL.
func DiscoverProtectedResource(ctx context.Context, serverURL string) (*ProtectedResourceMetadata, error) {
	metadataURL, err := joinWellKnown(serverURL, "/.well-known/oauth-protected-resource")
	if err != nil {
		return nil, err
	}
	var meta ProtectedResourceMetadata
	if err := fetchJSON(ctx, metadataURL, &meta); err != nil {
		return nil, fmt.Errorf("oauth2client: discover protected resource: %w", err)
	}
	if meta.Resource == "" {
		return nil, fmt.Errorf("oauth2client: protected resource metadata missing 'resource'")
	}
	return &meta, nil
}

// DiscoverAuthServer tries OIDC discovery first (RFC 8414 extends the
// same document shape), falling back to the plain OAuth
// authorization-server well-known path.
func DiscoverAuthServer(ctx context.Context, issuer string) (*AuthServerMetadata, error) {
	oidcURL, err := joinWellKnown(issuer, "/.well-known/openid-configuration")
	if err != nil {
		return nil, err
	}
	var doc AuthServerMetadata
	if err := fetchJSON(ctx, oidcURL, &doc); err == nil && doc.TokenEndpoint != "" {
		return &doc, nil
	}

	oauthURL, err := joinWellKnown(issuer, "/.well-known/oauth-authorization-server")
	if err != nil {
		return nil, err
	}
	if err := fetchJSON(ctx, oauthURL, &doc); err != nil {
		return nil, fmt.Errorf("oauth2client: discover auth server at %q: %w", issuer, err)
	}
	if doc.TokenEndpoint == "" {
		return nil, fmt.Errorf("oauth2client: auth server metadata at %q missing token_endpoint", issuer)
	}
	return &doc, nil
}

// joinWellKnown inserts a well-known path segment ahead of any path
// the base URL already carries, per RFC 8414 §3.1 multi-tenant form.
func joinWellKnown(base, wellKnown string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("oauth2client: invalid URL %q: %w", base, err)
	}
	suffix := u.Path
	u.Path = path.Join(wellKnown, suffix)
	return u.String(), nil
}

func fetchJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", target, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "application/json") {
		return fmt.Errorf("%s: unexpected content-type %q", target, ct)
	}

	const maxResponseSize = 1 << 20
	return json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out)
}
