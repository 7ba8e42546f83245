package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans newly ingested events and notifications out to the
// dashboard's websocket connections, grouped by account.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string][]*websocket.Conn),
	}
}

func (h *Hub) Register(accountID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[accountID] = append(h.clients[accountID], conn)
}

func (h *Hub) Unregister(accountID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	connections := h.clients[accountID]
	for i, c := range connections {
		if c == conn {
			h.clients[accountID] = append(connections[:i], connections[i+1:]...)
			break
		}
	}
	if len(h.clients[accountID]) == 0 {
		delete(h.clients, accountID)
	}
}

// Publish sends a JSON frame to every connection of the account. Dead
// connections are dropped; delivery is best-effort.
func (h *Hub) Publish(accountID string, messageType string, payload interface{}) {
	frame, err := json.Marshal(map[string]interface{}{
		"type":    messageType,
		"payload": payload,
	})
	if err != nil {
		log.Printf("Error marshaling websocket frame: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	connections := h.clients[accountID]
	alive := connections[:0]
	for _, conn := range connections {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			conn.Close()
			continue
		}
		alive = append(alive, conn)
	}
	if len(alive) == 0 {
		delete(h.clients, accountID)
	} else {
		h.clients[accountID] = alive
	}
}
