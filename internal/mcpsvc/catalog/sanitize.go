// Package catalog implements C6: syncing an MCPServer's upstream
// tools/list into MCPTool rows, diffed by content hash so unchanged
// tools are neither re-embedded nor rewritten.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumUnderscore = regexp.MustCompile(`[^A-Z0-9_]`)
	runsOfUnderscore   = regexp.MustCompile(`_+`)
	nonAlnumLower      = regexp.MustCompile(`[^a-z0-9]`)
)

// SanitizeCanonicalToolName uppercases, replaces any character outside
// [A-Z0-9_] with underscore, collapses underscore runs, and trims
// leading/trailing underscores. Idempotent: applying it twice is a
// no-op.
func SanitizeCanonicalToolName(name string) string {
	upper := strings.ToUpper(name)
	replaced := nonAlnumUnderscore.ReplaceAllString(upper, "_")
	collapsed := runsOfUnderscore.ReplaceAllString(replaced, "_")
	return strings.Trim(collapsed, "_")
}

// PlatformToolName builds the {SERVER}__{SANITIZED_CANONICAL} name
// exposed to bundle consumers.
func PlatformToolName(serverName, canonicalToolName string) string {
	return serverName + "__" + SanitizeCanonicalToolName(canonicalToolName)
}

// normalizeAndHashContent NFKC-normalizes then lowercases and strips
// non-alphanumerics before SHA-256 hashing, so cosmetic-only edits
// (whitespace, punctuation, case) don't trigger re-embedding.
func normalizeAndHashContent(s string) string {
	nfkc := norm.NFKC.String(s)
	lowered := strings.ToLower(nfkc)
	stripped := nonAlnumLower.ReplaceAllString(lowered, "")
	return hashHex(stripped)
}

// hashCanonicalJSON hashes an object by its canonical form: sorted
// keys, compact separators — so key reordering alone never triggers
// re-embedding.
func hashCanonicalJSON(v map[string]any) (string, error) {
	canon, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	return hashHex(string(b)), nil
}

// canonicalize recursively sorts map keys by re-marshaling through
// sorted key order; encoding/json already sorts map[string]any keys
// on Marshal, so this just normalizes nested types consistently.
func canonicalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c, err := canonicalize(t[k])
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			c, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return t, nil
	}
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
