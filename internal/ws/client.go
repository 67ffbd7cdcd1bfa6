package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/collab"
	"github.com/planforge/collabd/internal/collab/conflict"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one authenticated websocket connection. All inbound messages
// are consumed by a single dispatch loop that updates session state
// through the registry; there are no scattered callbacks.
type Client struct {
	hub      *Hub
	registry *collab.Registry
	conn     *websocket.Conn
	send     chan []byte

	identity Identity
	clientID string
	// sessionID is the joined session, empty until an explicit join. Only
	// the dispatch loop and the hub (under its lock) touch it.
	sessionID models.UUID
}

func newClient(hub *Hub, registry *collab.Registry, conn *websocket.Conn, identity Identity, clientID string) *Client {
	return &Client{
		hub:      hub,
		registry: registry,
		conn:     conn,
		send:     make(chan []byte, 256),
		identity: identity,
		clientID: clientID,
	}
}

// readPump consumes inbound frames and dispatches them until the
// connection drops. Transport loss is soft: presence survives until the
// inactivity sweep decides the user is gone.
func (c *Client) readPump() {
	defer func() {
		if c.sessionID != "" {
			c.registry.MarkDisconnected(c.sessionID, c.identity.UserID)
		}
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn("connection read error", logging.Fields{
					"user_id": c.identity.UserID,
					"error":   err.Error(),
				})
			}
			return
		}

		payload, err := DecodeClientMessage(raw)
		if err != nil {
			c.sendError(err)
			continue
		}
		c.dispatch(payload)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one decoded client message to the registry.
func (c *Client) dispatch(payload interface{}) {
	switch p := payload.(type) {
	case *JoinSessionPayload:
		c.handleJoin(p)
	case *LeaveSessionPayload:
		c.handleLeave(p)
	case *DocumentChangePayload:
		c.handleChange(p)
	case *CursorUpdatePayload:
		if err := c.requireJoined(p.SessionID); err != nil {
			c.sendError(err)
			return
		}
		c.fail(c.registry.UpdateCursor(p.SessionID, c.identity.UserID, p.Cursor))
	case *SelectionUpdatePayload:
		if err := c.requireJoined(p.SessionID); err != nil {
			c.sendError(err)
			return
		}
		c.fail(c.registry.UpdateSelection(p.SessionID, c.identity.UserID, p.Selection))
	case *ActivityUpdatePayload:
		c.handleActivity(p)
	case *ResolveConflictPayload:
		c.handleResolve(p)
	}
}

// requireJoined rejects session-scoped messages on connections that have
// not joined the named session. Join is explicit; a connection can only
// act on the one session it is attached to.
func (c *Client) requireJoined(sessionID models.UUID) error {
	if c.sessionID == "" {
		return apperr.New(apperr.ErrNotJoined, "no session joined")
	}
	if sessionID != c.sessionID {
		return apperr.Newf(apperr.ErrNotJoined, "connection has not joined session %s", sessionID)
	}
	return nil
}

func (c *Client) handleJoin(p *JoinSessionPayload) {
	if c.sessionID != "" {
		c.sendError(apperr.Newf(apperr.ErrAlreadyJoined,
			"connection already joined session %s: leave it first", c.sessionID))
		return
	}
	snap, err := c.registry.Join(p.ProjectID, p.DocumentID, c.identity.UserID, c.identity.DisplayName)
	if err != nil {
		c.sendError(err)
		return
	}
	c.hub.attach(c, snap.SessionID)
	c.reply(MsgSessionJoined, SessionJoinedPayload{
		SessionID: snap.SessionID,
		Session:   snap,
	})
}

func (c *Client) handleLeave(p *LeaveSessionPayload) {
	if err := c.registry.Leave(p.SessionID, c.identity.UserID); err != nil {
		c.sendError(err)
		return
	}
	if c.sessionID == p.SessionID {
		c.hub.detach(c)
	}
}

func (c *Client) handleChange(p *DocumentChangePayload) {
	if err := c.requireJoined(p.SessionID); err != nil {
		c.sendError(err)
		return
	}
	proposed := p.Change
	proposed.AuthorID = c.identity.UserID
	proposed.ClientID = c.clientID
	if proposed.SubmittedAt == 0 {
		proposed.SubmittedAt = time.Now().Unix()
	}
	if _, err := c.registry.SubmitChange(p.SessionID, &proposed); err != nil {
		c.sendError(err)
	}
}

func (c *Client) handleActivity(p *ActivityUpdatePayload) {
	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = c.sessionID
	}
	if err := c.requireJoined(sessionID); err != nil {
		c.sendError(err)
		return
	}
	c.fail(c.registry.TouchActivity(sessionID, c.identity.UserID, p.Location))
}

func (c *Client) handleResolve(p *ResolveConflictPayload) {
	if err := c.requireJoined(p.SessionID); err != nil {
		c.sendError(err)
		return
	}
	_, err := c.registry.Resolve(p.SessionID, p.ConflictID, &conflict.Request{
		Strategy:    p.Strategy,
		ResolverID:  c.identity.UserID,
		ClientID:    c.clientID,
		MergedValue: p.MergedValue,
	})
	c.fail(err)
}

// fail reports an error to the client when err is non-nil.
func (c *Client) fail(err error) {
	if err != nil {
		c.sendError(err)
	}
}

func (c *Client) sendError(err error) {
	c.reply(MsgError, ErrorPayload{
		Code:    string(apperr.CodeOf(err)),
		Message: err.Error(),
	})
}

// reply queues a frame for this connection only.
func (c *Client) reply(t MessageType, payload interface{}) {
	data, err := Encode(t, payload)
	if err != nil {
		logging.Error("reply encode failed", err, logging.Fields{"type": t})
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
