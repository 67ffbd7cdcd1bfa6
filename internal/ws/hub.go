package ws

import (
	"sync"

	"github.com/planforge/collabd/internal/collab"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
)

// outbound is one fan-out unit: an encoded frame for a session's members,
// optionally excluding the user who caused it.
type outbound struct {
	sessionID models.UUID
	exclude   string
	data      []byte
}

// Hub maintains the mapping from live connections to (session, user) and
// fans session events out to members. It implements collab.Publisher, so
// the registry never touches connections.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	sessions map[models.UUID]map[*Client]bool

	broadcast chan outbound
	stopCh    chan struct{}
	once      sync.Once
}

// NewHub creates a Hub and starts its fan-out loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[*Client]bool),
		sessions:  make(map[models.UUID]map[*Client]bool),
		broadcast: make(chan outbound, 256),
		stopCh:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case ob := <-h.broadcast:
			h.fanOut(ob)
		case <-h.stopCh:
			return
		}
	}
}

func (h *Hub) fanOut(ob outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.sessions[ob.sessionID] {
		if ob.exclude != "" && c.identity.UserID == ob.exclude {
			continue
		}
		select {
		case c.send <- ob.data:
		default:
			// Send buffer full: the slow client is cut loose and will
			// catch up over the snapshot path on reconnect.
			go c.conn.Close()
		}
	}
}

// Publish implements collab.Publisher. Registry event names are wire
// message names, so the envelope type carries through unchanged.
func (h *Hub) Publish(e collab.Event) {
	data, err := Encode(MessageType(e.Type), e.Data)
	if err != nil {
		logging.Error("event encode failed", err, logging.Fields{
			"event":      e.Type,
			"session_id": e.SessionID,
		})
		return
	}
	select {
	case h.broadcast <- outbound{sessionID: e.SessionID, exclude: e.ExcludeUserID, data: data}:
	case <-h.stopCh:
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	h.detachLocked(c)
	close(c.send)
}

// attach binds a registered client to a session after a successful join.
func (h *Hub) attach(c *Client, sessionID models.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
	members, ok := h.sessions[sessionID]
	if !ok {
		members = make(map[*Client]bool)
		h.sessions[sessionID] = members
	}
	members[c] = true
	c.sessionID = sessionID
}

// detach unbinds a client from its session on leave.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *Client) {
	if c.sessionID == "" {
		return
	}
	if members, ok := h.sessions[c.sessionID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.sessions, c.sessionID)
		}
	}
	c.sessionID = ""
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the fan-out loop.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.stopCh) })
}
