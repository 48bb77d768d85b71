// Package search ranks a caller's accessible tool set for
// SEARCH_TOOLS (C10): by cosine similarity to an intent embedding when
// one can be computed, falling back to fuzzy lexical matching via
// Levenshtein distance when the embedder is unavailable, and to plain
// alphabetical order when no intent is given at all.
package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"mcpgate/internal/domain"
	"mcpgate/internal/embedder"
)

// DefaultLimit and MaxLimit bound SEARCH_TOOLS result pages.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Ranker ranks a candidate tool set against an optional intent string.
type Ranker struct {
	embedder embedder.Embedder
}

func NewRanker(emb embedder.Embedder) *Ranker {
	return &Ranker{embedder: emb}
}

// Rank sorts candidates for intent and returns the [offset:offset+limit)
// slice. candidates must already be narrowed to the tools the caller
// may see; computing that accessible set is the bundle/configuration
// layer's job, not this package's.
func (r *Ranker) Rank(ctx context.Context, candidates []*domain.MCPTool, intent string, limit, offset int) ([]*domain.MCPTool, error) {
	limit = clampLimit(limit)

	ranked := make([]*domain.MCPTool, len(candidates))
	copy(ranked, candidates)

	switch {
	case intent == "":
		sortAlphabetical(ranked)
	case r.embedder != nil:
		if err := r.rankByEmbedding(ctx, ranked, intent); err != nil {
			rankByFuzzyMatch(ranked, intent)
		}
	default:
		rankByFuzzyMatch(ranked, intent)
	}

	return page(ranked, offset, limit), nil
}

func (r *Ranker) rankByEmbedding(ctx context.Context, tools []*domain.MCPTool, intent string) error {
	intentVec, err := r.embedder.Embed(ctx, intent)
	if err != nil {
		return err
	}
	type scored struct {
		tool  *domain.MCPTool
		score float64
	}
	scoredTools := make([]scored, len(tools))
	for i, t := range tools {
		scoredTools[i] = scored{tool: t, score: cosineSimilarity(intentVec, t.Embedding)}
	}
	sort.SliceStable(scoredTools, func(i, j int) bool {
		if scoredTools[i].score != scoredTools[j].score {
			return scoredTools[i].score > scoredTools[j].score
		}
		return scoredTools[i].tool.Name < scoredTools[j].tool.Name
	})
	for i, s := range scoredTools {
		tools[i] = s.tool
	}
	return nil
}

// rankByFuzzyMatch orders by ascending Levenshtein distance between
// intent and each tool's name, ties broken alphabetically.
func rankByFuzzyMatch(tools []*domain.MCPTool, intent string) {
	normalizedIntent := strings.ToLower(intent)
	sort.SliceStable(tools, func(i, j int) bool {
		di := levenshtein.ComputeDistance(normalizedIntent, strings.ToLower(tools[i].Name))
		dj := levenshtein.ComputeDistance(normalizedIntent, strings.ToLower(tools[j].Name))
		if di != dj {
			return di < dj
		}
		return tools[i].Name < tools[j].Name
	})
}

func sortAlphabetical(tools []*domain.MCPTool) {
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func page(tools []*domain.MCPTool, offset, limit int) []*domain.MCPTool {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tools) {
		return nil
	}
	end := offset + limit
	if end > len(tools) {
		end = len(tools)
	}
	return tools[offset:end]
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
