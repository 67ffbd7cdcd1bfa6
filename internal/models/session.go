// Package models provides data model definitions for the collab engine.
package models

import "time"

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionActive  SessionState = "active"
	SessionIdle    SessionState = "idle"
	SessionClosed  SessionState = "closed"
)

// SessionKey is the logical identity of a session: one collaboratively
// edited document within a project.
type SessionKey struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
}

// Document is the current snapshot of a session's document: whole values
// keyed by target path, e.g. "title", "content", "tags".
type Document map[string]string

// Clone returns an independent copy of the document.
func (d Document) Clone() Document {
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// SessionInfo is the persisted shape of a session.
type SessionInfo struct {
	ID           UUID         `db:"id" json:"id"`
	ProjectID    string       `db:"project_id" json:"project_id"`
	DocumentID   string       `db:"document_id" json:"document_id"`
	State        SessionState `db:"state" json:"state"`
	Sequence     int64        `db:"sequence" json:"sequence"`
	CreatedAt    int64        `db:"created_at" json:"created_at"`
	LastActivity int64        `db:"last_activity" json:"last_activity"`
}

// TableName returns the table name for SessionInfo.
func (SessionInfo) TableName() string {
	return "sessions"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (s *SessionInfo) CreatedAtTime() time.Time {
	return time.Unix(s.CreatedAt, 0)
}

// SessionSnapshot is the full state handed to a joining or reconnecting
// client: the document, membership, open conflicts, and either the whole
// change history or the delta past the client's last known sequence.
type SessionSnapshot struct {
	SessionID  UUID            `json:"session_id"`
	ProjectID  string          `json:"project_id"`
	DocumentID string          `json:"document_id"`
	State      SessionState    `json:"state"`
	Sequence   int64           `json:"sequence"`
	Document   Document        `json:"document"`
	Users      []*ActiveUser   `json:"users"`
	Conflicts  []*EditConflict `json:"conflicts"`
	Changes    []*Change       `json:"changes"`
}
