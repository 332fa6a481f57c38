package handlers

import (
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// Hub tracks the websocket connections of each account so store events can
// be relayed to every open browser tab of that account.
type Hub struct {
	// accountKey -> connectionID -> *websocket.Conn
	mu    sync.RWMutex
	conns map[string]map[string]*websocket.Conn

	log *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]map[string]*websocket.Conn),
		log:   log,
	}
}

func (h *Hub) Register(accountKey, connID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[accountKey]; !ok {
		h.conns[accountKey] = make(map[string]*websocket.Conn)
	}
	h.conns[accountKey][connID] = c
}

func (h *Hub) Unregister(accountKey, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[accountKey]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.conns, accountKey)
		}
	}
}

// SendToAccount writes payload to every connection of the account. A write
// failure is logged and left for the read loop to clean up on disconnect.
func (h *Hub) SendToAccount(accountKey string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.conns[accountKey] {
		if err := conn.WriteJSON(payload); err != nil {
			h.log.Warn("websocket write failed", "account", accountKey, "error", err)
		}
	}
}

// IsOnline reports whether the account has at least one open connection.
func (h *Hub) IsOnline(accountKey string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[accountKey]) > 0
}
