package registry

import (
	"errors"
	"regexp"
	"testing"

	"mcpgate/internal/domain"
)

func TestSanitizeBaseName(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		expected string
	}{
		{"already clean", "GITHUB", "GITHUB"},
		{"lowercase uppercased", "github", "GITHUB"},
		{"spaces become underscores", "my mcp server", "MY_MCP_SERVER"},
		{"punctuation collapses", "my---mcp!!server", "MY_MCP_SERVER"},
		{"leading and trailing trimmed", "  github  ", "GITHUB"},
		{"entirely non-alphanumeric", "!!!", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := sanitizeBaseName(c.in); got != c.expected {
				t.Errorf("sanitizeBaseName(%q) = %q, want %q", c.in, got, c.expected)
			}
		})
	}
}

func TestCanonicalServerName(t *testing.T) {
	name, err := canonicalServerName("github")
	if err != nil {
		t.Fatalf("canonicalServerName returned error: %v", err)
	}
	if !regexp.MustCompile(`^GITHUB_[A-Z2-7]{8}$`).MatchString(name) {
		t.Errorf("canonicalServerName(%q) = %q, want GITHUB_<8 base32 chars>", "github", name)
	}

	other, err := canonicalServerName("github")
	if err != nil {
		t.Fatalf("canonicalServerName returned error: %v", err)
	}
	if name == other {
		t.Error("expected successive calls to produce different suffixes")
	}
}

func TestCanonicalServerName_RejectsEmptySanitizedBase(t *testing.T) {
	if _, err := canonicalServerName("!!!"); err == nil {
		t.Error("expected an error when the base name sanitizes to empty")
	}
}

func TestValidateTransport(t *testing.T) {
	if err := validateTransport(domain.TransportStreamableHTTP); err != nil {
		t.Errorf("expected streamable_http to be valid, got error: %v", err)
	}
	if err := validateTransport(domain.TransportSSE); err != nil {
		t.Errorf("expected sse to be valid, got error: %v", err)
	}
	if err := validateTransport(domain.TransportType("websocket")); err == nil {
		t.Error("expected an unsupported transport to be rejected")
	}
}

func TestEmbeddingText(t *testing.T) {
	srv := &domain.MCPServer{
		Name:        "GITHUB_ABCD1234",
		URL:         "https://mcp.github.com",
		Description: "GitHub's official MCP server",
		Categories:  []string{"dev-tools", "vcs"},
	}
	got := embeddingText(srv)
	want := "GITHUB_ABCD1234 https://mcp.github.com GitHub's official MCP server dev-tools vcs"
	if got != want {
		t.Errorf("embeddingText() = %q, want %q", got, want)
	}
}

func TestIsDuplicateName(t *testing.T) {
	if isDuplicateName(nil) {
		t.Error("expected nil error to not be a duplicate-name error")
	}
	if !isDuplicateName(errors.New(`pq: duplicate key value violates unique constraint, name already registered`)) {
		t.Error("expected an \"already registered\" error to be detected as a duplicate-name error")
	}
	if isDuplicateName(errors.New("connection refused")) {
		t.Error("expected an unrelated error to not be a duplicate-name error")
	}
}
