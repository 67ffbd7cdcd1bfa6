// Package uuid provides UUID v4 generation and validation utilities.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a new random UUID v4 string.
func New() string {
	return uuid.New().String()
}

// Parse parses s and verifies it is a v4 UUID.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID: %w", err)
	}
	if id.Version() != 4 {
		return uuid.Nil, fmt.Errorf("expected UUID v4, got v%d", id.Version())
	}
	return id, nil
}

// IsValid reports whether s is a valid UUID v4.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Validate returns an error if s is not a valid UUID v4.
func Validate(s string) error {
	if _, err := Parse(s); err != nil {
		return fmt.Errorf("invalid UUID v4: %q: %w", s, err)
	}
	return nil
}
