package gatewaysvc

import "testing"

func TestCanonicalToolName(t *testing.T) {
	cases := []struct {
		name, server, platform, expected string
	}{
		{"strips matching prefix", "github", "github__LIST_REPOS", "LIST_REPOS"},
		{"no prefix match leaves name unchanged", "github", "LIST_REPOS", "LIST_REPOS"},
		{"platform name shorter than prefix", "github", "git", "git"},
		{"prefix from a different server is untouched", "gitlab", "github__LIST_REPOS", "github__LIST_REPOS"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := canonicalToolName(c.server, c.platform); got != c.expected {
				t.Errorf("canonicalToolName(%q, %q) = %q, want %q", c.server, c.platform, got, c.expected)
			}
		})
	}
}

func TestListMetaTools(t *testing.T) {
	result := listMetaTools()
	tools, ok := result["tools"].([]map[string]any)
	if !ok {
		t.Fatalf("expected listMetaTools()[\"tools\"] to be []map[string]any, got %T", result["tools"])
	}
	if len(tools) != 2 {
		t.Fatalf("expected exactly 2 meta-tools, got %d", len(tools))
	}
	names := map[string]bool{}
	for _, tool := range tools {
		name, _ := tool["name"].(string)
		names[name] = true
		if _, ok := tool["inputSchema"]; !ok {
			t.Errorf("tool %q missing inputSchema", name)
		}
	}
	if !names[toolSearchTool] || !names[toolExecuteTool] {
		t.Errorf("expected tools %q and %q, got %v", toolSearchTool, toolExecuteTool, names)
	}
}

func TestMustMarshal(t *testing.T) {
	got := mustMarshal(map[string]any{"a": 1})
	want := `{"a":1}`
	if got != want {
		t.Errorf("mustMarshal() = %q, want %q", got, want)
	}
}

func TestMustMarshal_UnmarshalableFallsBackToEmptyObject(t *testing.T) {
	got := mustMarshal(make(chan int))
	if got != "{}" {
		t.Errorf("mustMarshal() on an unmarshalable value = %q, want {}", got)
	}
}
