// Package models provides data model definitions for the collab engine.
package models

import "time"

// ChangeOp is the kind of edit a change performs at its target path.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// Resolution is the conflict-resolution state of a change.
type Resolution string

const (
	// ResolutionAuto marks a change committed without conflict.
	ResolutionAuto Resolution = "auto"
	// ResolutionManual marks a change whose conflict was resolved by a user.
	ResolutionManual Resolution = "manual"
	// ResolutionPending marks a change held behind an open conflict.
	ResolutionPending Resolution = "pending"
)

// Change is a single edit to a session document. Immutable once committed:
// only the registry's commit and resolution paths may touch Resolution,
// Applied, and ConflictsWith.
type Change struct {
	ID            UUID       `db:"id" json:"id"`
	SessionID     UUID       `db:"session_id" json:"session_id"`
	AuthorID      string     `db:"author_id" json:"author_id"`
	ClientID      string     `db:"client_id" json:"client_id"`
	Operation     ChangeOp   `db:"operation" json:"operation"`
	TargetPath    string     `db:"target_path" json:"target_path"`
	OldValue      string     `db:"old_value" json:"old_value"`
	NewValue      string     `db:"new_value" json:"new_value"`
	SubmittedAt   int64      `db:"submitted_at" json:"submitted_at"`
	Sequence      int64      `db:"sequence" json:"sequence"`
	BaseSequence  int64      `db:"base_sequence" json:"base_sequence"`
	DependsOn     []int64    `db:"-" json:"depends_on"`
	ConflictsWith []UUID     `db:"-" json:"conflicts_with,omitempty"`
	Resolution    Resolution `db:"resolution" json:"resolution"`
	// Applied reports whether the change is part of the live document.
	// Replaying applied changes in sequence order reproduces the snapshot.
	Applied bool `db:"applied" json:"applied"`
}

// TableName returns the table name for Change.
func (Change) TableName() string {
	return "changes"
}

// SubmittedAtTime returns SubmittedAt as time.Time.
func (c *Change) SubmittedAtTime() time.Time {
	return time.Unix(c.SubmittedAt, 0)
}

// DependsOnSeq reports whether the change declares seq as a dependency.
func (c *Change) DependsOnSeq(seq int64) bool {
	for _, d := range c.DependsOn {
		if d == seq {
			return true
		}
	}
	return false
}

// ProposedChange is the client-submitted shape of a change before the server
// assigns identity, sequence, and resolution state.
type ProposedChange struct {
	AuthorID     string   `json:"author_id"`
	ClientID     string   `json:"client_id"`
	Operation    ChangeOp `json:"operation"`
	TargetPath   string   `json:"target_path"`
	OldValue     string   `json:"old_value"`
	NewValue     string   `json:"new_value"`
	SubmittedAt  int64    `json:"submitted_at"`
	BaseSequence int64    `json:"base_sequence"`
	DependsOn    []int64  `json:"depends_on"`
}
