package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mcpgate/internal/apperr"
	"mcpgate/internal/oauth2client"
)

const (
	googleAuthorizeURL = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL     = "https://oauth2.googleapis.com/token"
	googleUserinfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

// googleClient performs the "Sign in with Google" token exchange and
// userinfo fetch directly over net/http, matching the hand-rolled
// REST client style of billing.StripeClient and embedder.OpenAIEmbedder
// rather than pulling in a Google API client SDK for two endpoints.
type googleClient struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
}

func newGoogleClient(clientID, clientSecret, redirectURL string) *googleClient {
	return &googleClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *googleClient) authorizeURL(state string, pkce *oauth2client.PKCE) string {
	q := url.Values{
		"client_id":             {c.clientID},
		"redirect_uri":          {c.redirectURL},
		"response_type":         {"code"},
		"scope":                 {"openid email profile"},
		"state":                 {state},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {pkce.Method},
		"access_type":           {"online"},
	}
	return googleAuthorizeURL + "?" + q.Encode()
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
}

func (c *googleClient) exchangeCode(ctx context.Context, code, verifier string) (*googleTokenResponse, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {c.redirectURL},
		"grant_type":    {"authorization_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("httpapi: build google token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpapi: google token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpapi: google token endpoint returned %d", resp.StatusCode)
	}
	var out googleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("httpapi: decode google token response: %w", err)
	}
	return &out, nil
}

type googleUserinfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (c *googleClient) fetchUserinfo(ctx context.Context, accessToken string) (*googleUserinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpapi: build google userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpapi: google userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpapi: google userinfo endpoint returned %d", resp.StatusCode)
	}
	var out googleUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("httpapi: decode google userinfo response: %w", err)
	}
	return &out, nil
}

func (s *Server) googleRedirectURL() string {
	return strings.TrimRight(s.cfg.Server.PublicBaseURL, "/") + "/auth/google/callback"
}

func (s *Server) handleGoogleAuthorize(w http.ResponseWriter, r *http.Request) {
	if s.cfg.GoogleOAuth.ClientID == "" {
		s.writeError(w, apperr.New(apperr.CodeValidation, "google sign-in is not configured"))
		return
	}

	pkce, err := oauth2client.NewPKCE()
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	state, err := s.states.sign(oauthStateClaims{Flow: flowGoogleLogin, PKCEVerifier: pkce.Verifier})
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}

	client := newGoogleClient(s.cfg.GoogleOAuth.ClientID, s.cfg.GoogleOAuth.ClientSecret, s.googleRedirectURL())
	http.Redirect(w, r, client.authorizeURL(state, pkce), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	stateParam := r.URL.Query().Get("state")
	if code == "" || stateParam == "" {
		s.writeError(w, apperr.Validation("missing code or state"))
		return
	}

	claims, err := s.states.verify(stateParam, flowGoogleLogin)
	if err != nil {
		s.writeError(w, apperr.Unauthorized("invalid oauth state"))
		return
	}

	client := newGoogleClient(s.cfg.GoogleOAuth.ClientID, s.cfg.GoogleOAuth.ClientSecret, s.googleRedirectURL())
	tok, err := client.exchangeCode(r.Context(), code, claims.PKCEVerifier)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "google token exchange failed", err))
		return
	}
	info, err := client.fetchUserinfo(r.Context(), tok.AccessToken)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "google userinfo fetch failed", err))
		return
	}
	if !info.EmailVerified {
		s.writeError(w, apperr.Unauthorized("google account email is not verified"))
		return
	}

	sess, err := s.auth.LoginWithGoogle(r.Context(), info.Email, info.Name, r.Header.Get("User-Agent"))
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}
