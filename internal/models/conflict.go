// Package models provides data model definitions for the collab engine.
package models

import "time"

// ConflictStatus is the lifecycle state of an EditConflict.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// Strategy is a participant-chosen conflict resolution strategy.
type Strategy string

const (
	StrategyAcceptMine   Strategy = "accept-mine"
	StrategyAcceptTheirs Strategy = "accept-theirs"
	StrategyMerge        Strategy = "merge"
	StrategyIgnore       Strategy = "ignore"
)

// EditConflict records a detected divergence between two or more changes
// targeting the same path without causal ordering between them. It always
// references at least two changes; resolving it is the only way out of
// pending.
type EditConflict struct {
	ID         UUID           `db:"id" json:"id"`
	SessionID  UUID           `db:"session_id" json:"session_id"`
	TargetPath string         `db:"target_path" json:"target_path"`
	ChangeIDs  []UUID         `db:"-" json:"change_ids"`
	DetectedAt int64          `db:"detected_at" json:"detected_at"`
	Status     ConflictStatus `db:"status" json:"status"`
	Resolution Strategy       `db:"resolution" json:"resolution,omitempty"`
	ResolvedBy string         `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt int64          `db:"resolved_at" json:"resolved_at,omitempty"`
}

// TableName returns the table name for EditConflict.
func (EditConflict) TableName() string {
	return "edit_conflicts"
}

// DetectedAtTime returns DetectedAt as time.Time.
func (c *EditConflict) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}

// References reports whether the conflict references the given change.
func (c *EditConflict) References(changeID UUID) bool {
	for _, id := range c.ChangeIDs {
		if id == changeID {
			return true
		}
	}
	return false
}

// Open reports whether the conflict still awaits resolution.
func (c *EditConflict) Open() bool {
	return c.Status == ConflictPending
}
