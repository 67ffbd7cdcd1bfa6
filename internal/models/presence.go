// Package models provides data model definitions for the collab engine.
package models

import "time"

// Cursor is a caret position within the document.
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Selection is a highlighted range within the document.
type Selection struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// ActiveUser is an ephemeral presence record for one session member.
// Presence is last-write-wins and never persisted as history.
type ActiveUser struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Cursor       Cursor    `json:"cursor"`
	Selection    Selection `json:"selection"`
	Location     string    `json:"location,omitempty"`
	LastActivity int64     `json:"last_activity"`
	Online       bool      `json:"online"`
}

// LastActivityTime returns LastActivity as time.Time.
func (u *ActiveUser) LastActivityTime() time.Time {
	return time.Unix(u.LastActivity, 0)
}

// Clone returns a copy safe to hand outside the presence tracker.
func (u *ActiveUser) Clone() *ActiveUser {
	c := *u
	return &c
}
