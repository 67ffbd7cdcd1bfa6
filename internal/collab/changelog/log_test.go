// Package changelog provides unit tests for the ordered change log.
package changelog

import (
	"reflect"
	"testing"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/models"
	"github.com/planforge/collabd/internal/uuid"
)

func change(seq int64, path, value string, applied bool) *models.Change {
	return &models.Change{
		ID:         models.UUID(uuid.New()),
		Operation:  models.OpUpdate,
		TargetPath: path,
		NewValue:   value,
		Sequence:   seq,
		Resolution: models.ResolutionAuto,
		Applied:    applied,
	}
}

// TestAppendAssignsGaplessOrder tests that Since(0) returns exactly
// Latest() changes numbered 1..Latest().
func TestAppendAssignsGaplessOrder(t *testing.T) {
	l := New()
	for i := int64(1); i <= 5; i++ {
		if err := l.Append(change(i, "content", "v", true)); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}

	if l.Latest() != 5 {
		t.Fatalf("Latest() = %d, want 5", l.Latest())
	}
	all := l.Since(0)
	if len(all) != 5 {
		t.Fatalf("Since(0) returned %d changes, want 5", len(all))
	}
	for i, c := range all {
		if c.Sequence != int64(i+1) {
			t.Errorf("change %d carries sequence %d, want %d", i, c.Sequence, i+1)
		}
	}
}

// TestAppendRejectsGapAndDuplicate tests that a wrong sequence is surfaced
// as log corruption.
func TestAppendRejectsGapAndDuplicate(t *testing.T) {
	l := New()
	if err := l.Append(change(1, "content", "a", true)); err != nil {
		t.Fatalf("Append(1) failed: %v", err)
	}

	if err := l.Append(change(3, "content", "b", true)); !apperr.Is(err, apperr.ErrLogCorrupted) {
		t.Errorf("gapped append: got %v, want LOG_CORRUPTED", err)
	}
	if err := l.Append(change(1, "content", "c", true)); !apperr.Is(err, apperr.ErrLogCorrupted) {
		t.Errorf("duplicate sequence append: got %v, want LOG_CORRUPTED", err)
	}

	dup := change(2, "content", "d", true)
	dup.ID = l.Get(1).ID
	if err := l.Append(dup); !apperr.Is(err, apperr.ErrLogCorrupted) {
		t.Errorf("duplicate id append: got %v, want LOG_CORRUPTED", err)
	}
}

// TestSinceDelta tests catch-up deltas for a reconnecting client.
func TestSinceDelta(t *testing.T) {
	l := New()
	for i := int64(1); i <= 4; i++ {
		if err := l.Append(change(i, "body", "v", true)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	delta := l.Since(2)
	if len(delta) != 2 {
		t.Fatalf("Since(2) returned %d changes, want 2", len(delta))
	}
	if delta[0].Sequence != 3 || delta[1].Sequence != 4 {
		t.Errorf("delta sequences = %d,%d; want 3,4", delta[0].Sequence, delta[1].Sequence)
	}
	if got := l.Since(4); got != nil {
		t.Errorf("Since(latest) = %d changes, want none", len(got))
	}
}

// TestReplayReproducesSnapshot tests the idempotent-replay property,
// including delete operations and held changes.
func TestReplayReproducesSnapshot(t *testing.T) {
	l := New()
	steps := []*models.Change{
		change(1, "title", "Roadmap", true),
		change(2, "content", "draft", true),
		change(3, "content", "final", true),
		change(4, "tags", "q3,planning", true),
	}
	del := change(5, "tags", "", true)
	del.Operation = models.OpDelete
	steps = append(steps, del)

	held := change(6, "content", "rogue edit", false)
	held.Resolution = models.ResolutionPending
	steps = append(steps, held)

	for _, c := range steps {
		if err := l.Append(c); err != nil {
			t.Fatalf("Append(%d) failed: %v", c.Sequence, err)
		}
	}

	want := models.Document{"title": "Roadmap", "content": "final"}
	if got := l.Replay(); !reflect.DeepEqual(got, want) {
		t.Errorf("Replay() = %v, want %v", got, want)
	}
}

// TestGetByID tests id lookup after append.
func TestGetByID(t *testing.T) {
	l := New()
	c := change(1, "title", "x", true)
	if err := l.Append(c); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := l.GetByID(c.ID); got != c {
		t.Errorf("GetByID returned %v, want the appended change", got)
	}
	if got := l.GetByID(models.UUID("missing")); got != nil {
		t.Errorf("GetByID(missing) = %v, want nil", got)
	}
}
