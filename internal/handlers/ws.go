package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// WebSocketHandler registers the connection under the authenticated account
// and keeps it open until the client goes away. The relay is one-way: state
// changes flow server to browser, all mutations go through the REST API.
func WebSocketHandler(hub *Hub, log *slog.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		accountKey := c.Locals("account_key").(string)
		connID := uuid.New().String()

		hub.Register(accountKey, connID, c)
		defer func() {
			hub.Unregister(accountKey, connID)
			c.Close()
		}()

		if err := c.WriteJSON(map[string]string{
			"type":    "connected",
			"message": "event stream established",
		}); err != nil {
			return
		}

		// Drain inbound frames; nothing is expected from the client.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Debug("websocket closed", "account", accountKey, "error", err)
				}
				return
			}
		}
	})
}
