package collab

import "github.com/planforge/collabd/internal/models"

// EventType names a server-to-client session event.
type EventType string

const (
	EventUserJoined       EventType = "user-joined"
	EventUserLeft         EventType = "user-left"
	EventDocumentChange   EventType = "document-change"
	EventCursorUpdate     EventType = "cursor-update"
	EventSelectionUpdate  EventType = "selection-update"
	EventUserActivity     EventType = "user-activity"
	EventConflictDetected EventType = "conflict-detected"
	EventConflictResolved EventType = "conflict-resolved"
)

// Event is a session-scoped notification fanned out by the transport layer
// to every member, optionally excluding the user who caused it.
type Event struct {
	Type          EventType
	SessionID     models.UUID
	ExcludeUserID string
	Data          interface{}
}

// Publisher receives registry events for fan-out. The registry never talks
// to connections directly.
type Publisher func(Event)

// Store is the document-storage collaborator: it persists committed changes,
// conflicts, and session metadata asynchronously and serves recovery reads.
type Store interface {
	SaveSession(info *models.SessionInfo) error
	SaveChange(c *models.Change) error
	SaveConflict(c *models.EditConflict) error
}
