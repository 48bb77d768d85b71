package oauth2client

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"mcpgate/internal/domain"
)

// Endpoint identifies the client registration and authorization
// server a ConnectedAccount's OAuth2 credentials were issued by.
type Endpoint struct {
	ClientID        string
	ClientSecret    string
	AuthorizeURL    string
	AccessTokenURL  string
	RefreshTokenURL string
	RedirectURL     string
	Scopes          []string
}

func (e Endpoint) config() *oauth2.Config {
	tokenURL := e.AccessTokenURL
	return &oauth2.Config{
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		RedirectURL:  e.RedirectURL,
		Scopes:       e.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  e.AuthorizeURL,
			TokenURL: tokenURL,
		},
	}
}

// AuthCodeURL builds the authorization redirect URL for a PKCE flow.
func (e Endpoint) AuthCodeURL(state string, pkce *PKCE) string {
	return e.config().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.Method))
}

// Exchange trades an authorization code (plus its PKCE verifier) for
// a token set.
func (e Endpoint) Exchange(ctx context.Context, code string, pkce *PKCE) (domain.OAuth2TokenSet, error) {
	tok, err := e.config().Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pkce.Verifier))
	if err != nil {
		return domain.OAuth2TokenSet{}, fmt.Errorf("oauth2client: exchange code: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

// Refresh exchanges a refresh token for a new access token. It is the
// refresher callback credentials.Store.Resolve expects.
func (e Endpoint) Refresh(ctx context.Context, current domain.OAuth2TokenSet) (domain.OAuth2TokenSet, error) {
	src := e.config().TokenSource(ctx, &oauth2.Token{
		AccessToken:  current.AccessToken,
		RefreshToken: current.RefreshToken,
		Expiry:       current.ExpiresAt,
	})
	tok, err := src.Token()
	if err != nil {
		return domain.OAuth2TokenSet{}, fmt.Errorf("oauth2client: refresh token: %w", err)
	}
	fresh := fromOAuth2Token(tok)
	if fresh.RefreshToken == "" {
		// Not every authorization server rotates the refresh token.
		fresh.RefreshToken = current.RefreshToken
	}
	fresh.Scopes = current.Scopes
	return fresh, nil
}

func fromOAuth2Token(tok *oauth2.Token) domain.OAuth2TokenSet {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	return domain.OAuth2TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}
