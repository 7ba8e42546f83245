package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mailguard/mailguard-server/cmd/utils"
)

type FeedHandler struct {
	hub *Hub
}

func NewFeedHandler(hub *Hub) *FeedHandler {
	return &FeedHandler{hub: hub}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *FeedHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", utils.AuthMiddleware(h.HandleWebSocket))
}

// HandleWebSocket subscribes the authenticated account to the live
// activity feed. The read loop exists only to detect disconnects; the
// client never sends anything meaningful.
func (h *FeedHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	log.Printf("WebSocket connection established for account %s", accountID)
	h.hub.Register(accountID, conn)

	defer func() {
		h.hub.Unregister(accountID, conn)
		conn.Close()
		log.Printf("WebSocket connection closed for account %s", accountID)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
