// Package uuid provides unit tests for UUID generation and validation.
package uuid

import "testing"

// TestNewIsValid tests that generated IDs validate as v4.
func TestNewIsValid(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("generated ID failed validation: %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

// TestValidateRejectsMalformed tests rejection of non-UUID and non-v4 input.
func TestValidateRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"not-a-uuid",
		"123e4567-e89b-12d3-a456-426614174000", // v1
		"zzzzzzzz-zzzz-4zzz-8zzz-zzzzzzzzzzzz",
	}
	for _, s := range bad {
		if err := Validate(s); err == nil {
			t.Errorf("Validate(%q) = nil, want error", s)
		}
	}
}
