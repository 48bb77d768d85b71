package bundle

import (
	"strings"
	"testing"
)

func TestDedupePreserveOrder(t *testing.T) {
	cases := []struct {
		name     string
		in       []string
		expected []string
	}{
		{"empty", nil, []string{}},
		{"no dupes", []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"dupes collapse to first occurrence", []string{"a", "b", "a", "c", "b"}, []string{"a", "b", "c"}},
		{"all dupes", []string{"a", "a", "a"}, []string{"a"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := dedupePreserveOrder(c.in)
			if !equalSlices(got, c.expected) {
				t.Errorf("dedupePreserveOrder(%v) = %v, want %v", c.in, got, c.expected)
			}
		})
	}
}

func TestRemovePreserveOrder(t *testing.T) {
	cases := []struct {
		name     string
		in       []string
		remove   string
		expected []string
	}{
		{"removes all occurrences", []string{"a", "b", "a", "c"}, "a", []string{"b", "c"}},
		{"not present is a no-op", []string{"a", "b"}, "z", []string{"a", "b"}},
		{"empty input", nil, "a", []string{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := removePreserveOrder(c.in, c.remove)
			if !equalSlices(got, c.expected) {
				t.Errorf("removePreserveOrder(%v, %q) = %v, want %v", c.in, c.remove, got, c.expected)
			}
		})
	}
}

func TestNewBundleKey(t *testing.T) {
	key, err := newBundleKey()
	if err != nil {
		t.Fatalf("newBundleKey() returned error: %v", err)
	}
	if !strings.HasPrefix(key, "bk_") {
		t.Errorf("newBundleKey() = %q, want bk_ prefix", key)
	}
	other, err := newBundleKey()
	if err != nil {
		t.Fatalf("newBundleKey() returned error: %v", err)
	}
	if key == other {
		t.Error("newBundleKey() produced the same key twice")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
