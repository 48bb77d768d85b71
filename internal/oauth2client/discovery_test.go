package oauth2client

import "testing"

func TestJoinWellKnown(t *testing.T) {
	cases := []struct {
		name      string
		base      string
		wellKnown string
		expected  string
	}{
		{
			"root path inserts directly",
			"https://auth.example.com",
			"/.well-known/oauth-authorization-server",
			"https://auth.example.com/.well-known/oauth-authorization-server",
		},
		{
			"multi-tenant path form per RFC 8414 §3.1",
			"https://auth.example.com/tenant/acme",
			"/.well-known/oauth-authorization-server",
			"https://auth.example.com/.well-known/oauth-authorization-server/tenant/acme",
		},
		{
			"trailing slash is not duplicated",
			"https://auth.example.com/",
			"/.well-known/openid-configuration",
			"https://auth.example.com/.well-known/openid-configuration",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := joinWellKnown(c.base, c.wellKnown)
			if err != nil {
				t.Fatalf("joinWellKnown returned error: %v", err)
			}
			if got != c.expected {
				t.Errorf("joinWellKnown(%q, %q) = %q, want %q", c.base, c.wellKnown, got, c.expected)
			}
		})
	}
}

func TestJoinWellKnown_RejectsInvalidURL(t *testing.T) {
	if _, err := joinWellKnown("://not-a-url", "/.well-known/x"); err == nil {
		t.Error("expected an error for an invalid base URL")
	}
}
