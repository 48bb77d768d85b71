package oauth2client

import "testing"

func TestJoinScopes(t *testing.T) {
	cases := []struct {
		name     string
		in       []string
		expected string
	}{
		{"empty", nil, ""},
		{"single", []string{"openid"}, "openid"},
		{"multiple joined by spaces", []string{"openid", "profile", "offline_access"}, "openid profile offline_access"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := joinScopes(c.in); got != c.expected {
				t.Errorf("joinScopes(%v) = %q, want %q", c.in, got, c.expected)
			}
		})
	}
}
