// Package apperr provides unit tests for coded errors.
package apperr

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorFormat tests the rendered message with and without a cause.
func TestErrorFormat(t *testing.T) {
	e := New(ErrInvalidTarget, "path is not addressable")
	want := "[INVALID_TARGET] path is not addressable"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	cause := fmt.Errorf("boom")
	w := Wrap(ErrDatabase, "insert failed", cause)
	want = "[DATABASE_ERROR] insert failed: boom"
	if w.Error() != want {
		t.Errorf("Error() = %q, want %q", w.Error(), want)
	}
}

// TestUnwrap tests that the cause survives errors.Is chains.
func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(ErrDatabase, "write failed", cause)

	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

// TestIs tests code matching.
func TestIs(t *testing.T) {
	e := New(ErrStaleDependency, "log behind")

	if !Is(e, ErrStaleDependency) {
		t.Error("expected Is to match STALE_DEPENDENCY")
	}
	if Is(e, ErrInvalidTarget) {
		t.Error("did not expect Is to match INVALID_TARGET")
	}
	if Is(errors.New("plain"), ErrInternal) {
		t.Error("plain errors should not match any code")
	}
}

// TestCodeOf tests code extraction with a fallback for plain errors.
func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrAuthFailed, "no identity")); got != ErrAuthFailed {
		t.Errorf("CodeOf = %s, want AUTH_FAILED", got)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf = %s, want INTERNAL_ERROR", got)
	}
}
