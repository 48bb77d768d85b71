package embedder

import (
	"testing"

	"mcpgate/internal/config"
)

func TestNewFromConfig_RejectsUnsupportedType(t *testing.T) {
	_, err := NewFromConfig(config.EmbedderConfig{Type: "ollama"})
	if err == nil {
		t.Fatal("expected an error for an unsupported embedder type")
	}
}

func TestNewFromConfig_OpenAI(t *testing.T) {
	emb, err := NewFromConfig(config.EmbedderConfig{Type: "openai", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Dimensions() != 1536 {
		t.Fatalf("dimensions = %d, want 1536", emb.Dimensions())
	}
}
