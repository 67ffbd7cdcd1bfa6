// Package changelog provides the append-only ordered change log for a
// session. The log is the single source of truth for document
// reconstruction: replaying applied changes from sequence 1 against an
// empty document reproduces the current snapshot exactly.
package changelog

import (
	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/models"
)

// Log is the strictly ordered record of edits to one session's document.
// It is not safe for concurrent use; the session registry serializes all
// access per session.
type Log struct {
	changes []*models.Change
	byID    map[models.UUID]*models.Change
}

// New creates an empty Log.
func New() *Log {
	return &Log{
		byID: make(map[models.UUID]*models.Change),
	}
}

// Latest returns the highest committed sequence number, 0 for an empty log.
func (l *Log) Latest() int64 {
	return int64(len(l.changes))
}

// Append commits a change to the log. The change must carry the next
// sequence number; a duplicate or gapped sequence is log corruption and is
// fatal to the session.
func (l *Log) Append(c *models.Change) error {
	want := l.Latest() + 1
	if c.Sequence != want {
		return apperr.Newf(apperr.ErrLogCorrupted,
			"change %s carries sequence %d, log expects %d", c.ID, c.Sequence, want)
	}
	if _, ok := l.byID[c.ID]; ok {
		return apperr.Newf(apperr.ErrLogCorrupted, "duplicate change id %s", c.ID)
	}
	l.changes = append(l.changes, c)
	l.byID[c.ID] = c
	return nil
}

// Since returns all changes with sequence strictly greater than seq, in
// order. Since(0) returns the full history.
func (l *Log) Since(seq int64) []*models.Change {
	if seq < 0 {
		seq = 0
	}
	if seq >= l.Latest() {
		return nil
	}
	out := make([]*models.Change, l.Latest()-seq)
	copy(out, l.changes[seq:])
	return out
}

// Get returns the change with the given sequence number, or nil.
func (l *Log) Get(seq int64) *models.Change {
	if seq < 1 || seq > l.Latest() {
		return nil
	}
	return l.changes[seq-1]
}

// GetByID returns the change with the given id, or nil.
func (l *Log) GetByID(id models.UUID) *models.Change {
	return l.byID[id]
}

// Replay rebuilds the document by folding applied changes in sequence
// order against an empty document. Held and discarded changes stay in the
// history but do not contribute.
func (l *Log) Replay() models.Document {
	doc := make(models.Document)
	for _, c := range l.changes {
		if !c.Applied {
			continue
		}
		switch c.Operation {
		case models.OpDelete:
			delete(doc, c.TargetPath)
		default:
			doc[c.TargetPath] = c.NewValue
		}
	}
	return doc
}
