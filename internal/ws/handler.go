package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/planforge/collabd/internal/collab"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to websocket connections and binds each
// one to the hub and registry.
type Handler struct {
	hub      *Hub
	registry *collab.Registry
	auth     Authenticator
}

func NewHandler(hub *Hub, registry *collab.Registry, auth Authenticator) *Handler {
	return &Handler{hub: hub, registry: registry, auth: auth}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", logging.Fields{
			"user_id": identity.UserID,
			"error":   err.Error(),
		})
		return
	}

	client := newClient(h.hub, h.registry, conn, *identity, uuid.New())
	h.hub.register(client)

	logging.Info("websocket connected", logging.Fields{
		"user_id":   identity.UserID,
		"client_id": client.clientID,
	})

	go client.writePump()
	go client.readPump()
}
