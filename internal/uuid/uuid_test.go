package uuid

import (
	"strings"
	"testing"
)

func TestNewGeneratesValidUUID(t *testing.T) {
	id := New()

	if !IsValid(id) {
		t.Errorf("Expected valid UUID v4, got %q", id)
	}
}

func TestNewOfflineIDShape(t *testing.T) {
	id := NewOfflineID()

	if !strings.HasPrefix(id, "offline_") {
		t.Errorf("Expected offline_ prefix, got %q", id)
	}

	if !IsOfflineID(id) {
		t.Errorf("Expected offline id shape, got %q", id)
	}
}

func TestNewOfflineIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		id := NewOfflineID()
		if seen[id] {
			t.Fatalf("Duplicate offline id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestIsValidRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-a-uuid",
		"offline_123_abcd1234",
		"123e4567-e89b-12d3-a456-426614174000", // v1, not v4
	}

	for _, c := range cases {
		if IsValid(c) {
			t.Errorf("Expected %q to be invalid", c)
		}
	}
}

func TestIsOfflineIDRejectsUUID(t *testing.T) {
	if IsOfflineID(New()) {
		t.Error("Expected a plain UUID to fail the offline id check")
	}
}
