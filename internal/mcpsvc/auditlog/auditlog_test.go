package auditlog

import (
	"testing"
	"time"

	"mcpgate/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	original := domain.ToolCallLogCursor{
		StartedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		ID:        "log-123",
	}

	encoded, err := encodeCursor(original)
	if err != nil {
		t.Fatalf("encodeCursor returned error: %v", err)
	}
	if encoded == "" {
		t.Fatal("encodeCursor returned an empty string")
	}

	decoded, err := decodeCursor(encoded)
	if err != nil {
		t.Fatalf("decodeCursor returned error: %v", err)
	}
	if !decoded.StartedAt.Equal(original.StartedAt) || decoded.ID != original.ID {
		t.Errorf("decodeCursor() = %+v, want %+v", decoded, original)
	}
}

func TestDecodeCursor_RejectsGarbage(t *testing.T) {
	if _, err := decodeCursor("not-valid-base64!!"); err == nil {
		t.Error("expected an error decoding garbage cursor input")
	}
	if _, err := decodeCursor("aGVsbG8"); err == nil {
		t.Error("expected an error decoding base64 that isn't valid JSON")
	}
}
