package oauth2client

import (
	"net/url"
	"testing"
)

func TestEndpoint_AuthCodeURL(t *testing.T) {
	ep := Endpoint{
		ClientID:     "client-123",
		RedirectURL:  "https://gate.example.com/oauth2/callback",
		Scopes:       []string{"repo", "read:user"},
		AuthorizeURL: "https://github.com/oauth/authorize",
	}
	pkce := &PKCE{Verifier: "verifier-value", Challenge: "challenge-value", Method: "S256"}

	raw := ep.AuthCodeURL("state-xyz", pkce)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthCodeURL produced an unparseable URL: %v", err)
	}
	q := u.Query()

	cases := map[string]string{
		"client_id":             "client-123",
		"redirect_uri":          "https://gate.example.com/oauth2/callback",
		"state":                 "state-xyz",
		"code_challenge":        "challenge-value",
		"code_challenge_method": "S256",
		"response_type":         "code",
	}
	for key, want := range cases {
		if got := q.Get(key); got != want {
			t.Errorf("query param %q = %q, want %q", key, got, want)
		}
	}
}
