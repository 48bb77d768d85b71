package search

import (
	"context"
	"errors"
	"testing"

	"mcpgate/internal/domain"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

func tool(name string, embedding []float32) *domain.MCPTool {
	return &domain.MCPTool{ID: name, Name: name, Embedding: embedding}
}

func TestRank_NoIntentSortsAlphabetical(t *testing.T) {
	r := NewRanker(nil)
	candidates := []*domain.MCPTool{tool("charlie", nil), tool("alpha", nil), tool("bravo", nil)}

	got, err := r.Rank(context.Background(), candidates, "", 0, 0)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	want := []string{"alpha", "bravo", "charlie"}
	assertNames(t, got, want)
}

func TestRank_EmbeddingOrdersByCosineSimilarity(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"send a message": {1, 0},
	}}
	r := NewRanker(emb)
	candidates := []*domain.MCPTool{
		tool("unrelated", []float32{0, 1}),
		tool("messenger", []float32{1, 0}),
		tool("halfway", []float32{1, 1}),
	}

	got, err := r.Rank(context.Background(), candidates, "send a message", 0, 0)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	assertNames(t, got, []string{"messenger", "halfway", "unrelated"})
}

func TestRank_EmbedderErrorFallsBackToFuzzy(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("embedder unavailable")}
	r := NewRanker(emb)
	candidates := []*domain.MCPTool{tool("search_tools", nil), tool("totally_different", nil)}

	got, err := r.Rank(context.Background(), candidates, "search_tools", 0, 0)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	assertNames(t, got, []string{"search_tools", "totally_different"})
}

func TestRank_NoEmbedderUsesFuzzy(t *testing.T) {
	r := NewRanker(nil)
	candidates := []*domain.MCPTool{tool("create_issue", nil), tool("list_repos", nil)}

	got, err := r.Rank(context.Background(), candidates, "create_issue", 0, 0)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	assertNames(t, got, []string{"create_issue", "list_repos"})
}

func TestRank_PaginationOffsetAndLimit(t *testing.T) {
	r := NewRanker(nil)
	candidates := []*domain.MCPTool{tool("a", nil), tool("b", nil), tool("c", nil), tool("d", nil)}

	got, err := r.Rank(context.Background(), candidates, "", 1, 2)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	assertNames(t, got, []string{"b", "c"})
}

func TestRank_OffsetBeyondLengthReturnsEmpty(t *testing.T) {
	r := NewRanker(nil)
	candidates := []*domain.MCPTool{tool("a", nil)}

	got, err := r.Rank(context.Background(), candidates, "", 10, 5)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty page beyond candidate length, got %v", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical vectors", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"mismatched length", []float32{1, 0, 0}, []float32{1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := cosineSimilarity(c.a, c.b); got != c.expected {
				t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", c.a, c.b, got, c.expected)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		name     string
		in       int
		expected int
	}{
		{"zero uses default", 0, DefaultLimit},
		{"negative uses default", -5, DefaultLimit},
		{"within bounds unchanged", 30, 30},
		{"over max clamps to max", 1000, MaxLimit},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := clampLimit(c.in); got != c.expected {
				t.Errorf("clampLimit(%d) = %d, want %d", c.in, got, c.expected)
			}
		})
	}
}

func assertNames(t *testing.T, got []*domain.MCPTool, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tools, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: got %q, want %q", i, got[i].Name, name)
		}
	}
}
