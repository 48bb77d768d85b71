package mcpclient

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"mcpgate/internal/domain"
)

func TestHTTPStatusError_Error(t *testing.T) {
	err := &HTTPStatusError{StatusCode: 401, Body: "unauthorized"}
	got := err.Error()
	if !strings.Contains(got, "401") || !strings.Contains(got, "unauthorized") {
		t.Errorf("HTTPStatusError.Error() = %q, want it to mention status and body", got)
	}
}

func TestRPCError_Error(t *testing.T) {
	err := &RPCError{Code: -32602, Message: "invalid params"}
	got := err.Error()
	if !strings.Contains(got, "-32602") || !strings.Contains(got, "invalid params") {
		t.Errorf("RPCError.Error() = %q, want it to mention code and message", got)
	}
}

func TestAuthInjectorFor_APIKeyHeader(t *testing.T) {
	injector := AuthInjectorFor(domain.AuthVariantAPIKey,
		&domain.APIKeyAuthConfig{HeaderName: "X-Api-Key", Location: domain.APIKeyLocationHeader},
		domain.AuthCredentials{APIKey: &domain.APIKeySecret{Secret: "s3cr3t"}},
	)
	if injector == nil {
		t.Fatal("expected a non-nil injector")
	}
	req, _ := http.NewRequest(http.MethodGet, "https://example.test/foo", nil)
	injector(req)
	if got := req.Header.Get("X-Api-Key"); got != "s3cr3t" {
		t.Errorf("header X-Api-Key = %q, want s3cr3t", got)
	}
}

func TestAuthInjectorFor_APIKeyHeaderDefaultsToAuthorization(t *testing.T) {
	injector := AuthInjectorFor(domain.AuthVariantAPIKey,
		&domain.APIKeyAuthConfig{Location: domain.APIKeyLocationHeader},
		domain.AuthCredentials{APIKey: &domain.APIKeySecret{Secret: "s3cr3t"}},
	)
	req, _ := http.NewRequest(http.MethodGet, "https://example.test/foo", nil)
	injector(req)
	if got := req.Header.Get("Authorization"); got != "s3cr3t" {
		t.Errorf("header Authorization = %q, want s3cr3t", got)
	}
}

func TestAuthInjectorFor_APIKeyQuery(t *testing.T) {
	injector := AuthInjectorFor(domain.AuthVariantAPIKey,
		&domain.APIKeyAuthConfig{HeaderName: "api_key", Location: domain.APIKeyLocationQuery},
		domain.AuthCredentials{APIKey: &domain.APIKeySecret{Secret: "s3cr3t"}},
	)
	req, _ := http.NewRequest(http.MethodGet, "https://example.test/foo", nil)
	injector(req)
	q, _ := url.ParseQuery(req.URL.RawQuery)
	if got := q.Get("api_key"); got != "s3cr3t" {
		t.Errorf("query api_key = %q, want s3cr3t", got)
	}
}

func TestAuthInjectorFor_OAuth2(t *testing.T) {
	injector := AuthInjectorFor(domain.AuthVariantOAuth2, nil,
		domain.AuthCredentials{OAuth2: &domain.OAuth2TokenSet{AccessToken: "tok123"}},
	)
	req, _ := http.NewRequest(http.MethodGet, "https://example.test/foo", nil)
	injector(req)
	if got := req.Header.Get("Authorization"); got != "Bearer tok123" {
		t.Errorf("header Authorization = %q, want Bearer tok123", got)
	}
}

func TestAuthInjectorFor_NoAuthReturnsNil(t *testing.T) {
	if got := AuthInjectorFor(domain.AuthVariantNoAuth, nil, domain.AuthCredentials{}); got != nil {
		t.Errorf("expected nil injector for no_auth, got non-nil")
	}
}

func TestAuthInjectorFor_MissingCredentialsReturnsNil(t *testing.T) {
	if got := AuthInjectorFor(domain.AuthVariantAPIKey, &domain.APIKeyAuthConfig{}, domain.AuthCredentials{}); got != nil {
		t.Errorf("expected nil injector when api key credentials are missing")
	}
	if got := AuthInjectorFor(domain.AuthVariantOAuth2, nil, domain.AuthCredentials{}); got != nil {
		t.Errorf("expected nil injector when oauth2 credentials are missing")
	}
}
