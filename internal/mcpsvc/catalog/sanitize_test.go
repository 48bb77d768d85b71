package catalog

import "testing"

func TestSanitizeCanonicalToolName(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		expected string
	}{
		{"already clean", "LIST_REPOS", "LIST_REPOS"},
		{"lowercase uppercased", "list_repos", "LIST_REPOS"},
		{"dashes become underscores", "list-repos", "LIST_REPOS"},
		{"runs collapse", "list---repos", "LIST_REPOS"},
		{"dots and spaces", "list.repos now", "LIST_REPOS_NOW"},
		{"leading and trailing stripped", "__list_repos__", "LIST_REPOS"},
		{"mixed punctuation", "Create-Issue!!v2", "CREATE_ISSUE_V2"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := SanitizeCanonicalToolName(c.in); got != c.expected {
				t.Errorf("SanitizeCanonicalToolName(%q) = %q, want %q", c.in, got, c.expected)
			}
		})
	}
}

func TestSanitizeCanonicalToolName_Idempotent(t *testing.T) {
	inputs := []string{"list-repos", "Create.Issue v2", "__weird__NAME--here__"}
	for _, in := range inputs {
		once := SanitizeCanonicalToolName(in)
		twice := SanitizeCanonicalToolName(once)
		if once != twice {
			t.Errorf("SanitizeCanonicalToolName not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestPlatformToolName(t *testing.T) {
	got := PlatformToolName("github", "list-repos")
	want := "github__LIST_REPOS"
	if got != want {
		t.Errorf("PlatformToolName() = %q, want %q", got, want)
	}
}

func TestNormalizeAndHashContent_IgnoresCosmeticChanges(t *testing.T) {
	a := normalizeAndHashContent("Lists all repositories for a user.")
	b := normalizeAndHashContent("  lists ALL repositories, for a user!  ")
	if a != b {
		t.Errorf("expected cosmetic-only differences to hash identically: %q != %q", a, b)
	}
}

func TestNormalizeAndHashContent_DetectsRealChanges(t *testing.T) {
	a := normalizeAndHashContent("Lists all repositories for a user.")
	b := normalizeAndHashContent("Lists all organizations for a user.")
	if a == b {
		t.Error("expected semantically different content to hash differently")
	}
}

func TestHashCanonicalJSON_KeyOrderInsensitive(t *testing.T) {
	a, err := hashCanonicalJSON(map[string]any{"type": "object", "properties": map[string]any{"a": 1, "b": 2}})
	if err != nil {
		t.Fatalf("hashCanonicalJSON returned error: %v", err)
	}
	b, err := hashCanonicalJSON(map[string]any{"properties": map[string]any{"b": 2, "a": 1}, "type": "object"})
	if err != nil {
		t.Fatalf("hashCanonicalJSON returned error: %v", err)
	}
	if a != b {
		t.Errorf("expected key reordering to hash identically: %q != %q", a, b)
	}
}

func TestHashCanonicalJSON_DetectsValueChanges(t *testing.T) {
	a, err := hashCanonicalJSON(map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("hashCanonicalJSON returned error: %v", err)
	}
	b, err := hashCanonicalJSON(map[string]any{"type": "array"})
	if err != nil {
		t.Fatalf("hashCanonicalJSON returned error: %v", err)
	}
	if a == b {
		t.Error("expected different schema values to hash differently")
	}
}
