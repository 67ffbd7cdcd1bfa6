// Package ws provides the websocket transport for editing sessions:
// connection lifecycle, the typed wire protocol, and session-scoped
// event fan-out.
package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/models"
)

// MessageType names a wire message.
type MessageType string

// Client → server messages.
const (
	MsgJoinSession     MessageType = "join-session"
	MsgLeaveSession    MessageType = "leave-session"
	MsgDocumentChange  MessageType = "document-change"
	MsgCursorUpdate    MessageType = "cursor-update"
	MsgSelectionUpdate MessageType = "selection-update"
	MsgActivityUpdate  MessageType = "activity-update"
	MsgResolveConflict MessageType = "resolve-conflict"
)

// Server → client messages.
const (
	MsgSessionJoined    MessageType = "session-joined"
	MsgUserJoined       MessageType = "user-joined"
	MsgUserLeft         MessageType = "user-left"
	MsgUserActivity     MessageType = "user-activity"
	MsgConflictDetected MessageType = "conflict-detected"
	MsgConflictResolved MessageType = "conflict-resolved"
	MsgError            MessageType = "error"
)

// Envelope wraps every message in both directions.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Encode builds a wire-ready envelope around a payload.
func Encode(t MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// Client payload shapes.

type JoinSessionPayload struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
}

type LeaveSessionPayload struct {
	SessionID models.UUID `json:"session_id"`
}

type DocumentChangePayload struct {
	SessionID models.UUID           `json:"session_id"`
	Change    models.ProposedChange `json:"change"`
}

type CursorUpdatePayload struct {
	SessionID models.UUID   `json:"session_id"`
	Cursor    models.Cursor `json:"cursor"`
}

type SelectionUpdatePayload struct {
	SessionID models.UUID      `json:"session_id"`
	Selection models.Selection `json:"selection"`
}

type ActivityUpdatePayload struct {
	SessionID models.UUID `json:"session_id"`
	Location  string      `json:"location,omitempty"`
}

type ResolveConflictPayload struct {
	SessionID   models.UUID     `json:"session_id"`
	ConflictID  models.UUID     `json:"conflict_id"`
	Strategy    models.Strategy `json:"strategy"`
	MergedValue *string         `json:"merged_value,omitempty"`
}

// Server payload shapes for messages the handlers build directly.

type SessionJoinedPayload struct {
	SessionID models.UUID             `json:"session_id"`
	Session   *models.SessionSnapshot `json:"session"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeClientMessage parses one inbound message into its typed payload.
// The result is one of the *Payload types above; unknown or malformed
// messages are rejected with BAD_MESSAGE.
func DecodeClientMessage(raw []byte) (interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Wrap(apperr.ErrBadMessage, "malformed envelope", err)
	}

	var payload interface{}
	switch env.Type {
	case MsgJoinSession:
		payload = &JoinSessionPayload{}
	case MsgLeaveSession:
		payload = &LeaveSessionPayload{}
	case MsgDocumentChange:
		payload = &DocumentChangePayload{}
	case MsgCursorUpdate:
		payload = &CursorUpdatePayload{}
	case MsgSelectionUpdate:
		payload = &SelectionUpdatePayload{}
	case MsgActivityUpdate:
		payload = &ActivityUpdatePayload{}
	case MsgResolveConflict:
		payload = &ResolveConflictPayload{}
	default:
		return nil, apperr.Newf(apperr.ErrBadMessage, "unknown message type %q", env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return nil, apperr.Wrap(apperr.ErrBadMessage, fmt.Sprintf("malformed %s payload", env.Type), err)
		}
	}
	return payload, nil
}
