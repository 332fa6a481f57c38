package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/models"
	"aichat-backend/internal/store"
)

// ChatroomHandler exposes the per-account conversation store over REST.
type ChatroomHandler struct {
	registry *store.Registry
	log      *slog.Logger
}

func NewChatroomHandler(registry *store.Registry, log *slog.Logger) *ChatroomHandler {
	return &ChatroomHandler{registry: registry, log: log}
}

func (h *ChatroomHandler) storeFor(c *fiber.Ctx) *store.Store {
	return h.registry.GetOrCreate(c.Locals("account_key").(string))
}

func (h *ChatroomHandler) List(c *fiber.Ctx) error {
	st := h.storeFor(c)

	resp := fiber.Map{"chatrooms": st.Chatrooms()}
	if current, ok := st.CurrentChatroom(); ok {
		resp["current_id"] = current.ID
	}
	return c.JSON(resp)
}

func (h *ChatroomHandler) Create(c *fiber.Ctx) error {
	var req models.CreateChatroomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	room := h.storeFor(c).CreateChatroom(c.Context(), req.Title, req.IsGroup)
	return c.Status(fiber.StatusCreated).JSON(room)
}

func (h *ChatroomHandler) Get(c *fiber.Ctx) error {
	room, ok := h.storeFor(c).Chatroom(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chatroom not found"})
	}
	return c.JSON(room)
}

func (h *ChatroomHandler) Select(c *fiber.Ctx) error {
	st := h.storeFor(c)
	id := c.Params("id")

	if err := st.SelectChatroom(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chatroom not found"})
	}
	room, _ := st.Chatroom(id)
	return c.JSON(room)
}

func (h *ChatroomHandler) Delete(c *fiber.Ctx) error {
	h.storeFor(c).DeleteChatroom(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// Messages resyncs the chatroom's history from the chat service and returns
// it. A failed resync falls back to the cached copy rather than erroring.
func (h *ChatroomHandler) Messages(c *fiber.Ctx) error {
	st := h.storeFor(c)
	id := c.Params("id")

	if _, ok := st.Chatroom(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chatroom not found"})
	}
	if err := st.LoadMessages(c.Context(), id); err != nil {
		h.log.Warn("message resync failed, serving cached copy", "chatroom", id, "error", err)
	}

	room, _ := st.Chatroom(id)
	return c.JSON(fiber.Map{"messages": room.Messages})
}

// SendMessage selects the chatroom and sends through the store, mapping its
// precondition errors to status codes.
func (h *ChatroomHandler) SendMessage(c *fiber.Ctx) error {
	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	st := h.storeFor(c)
	id := c.Params("id")
	if err := st.SelectChatroom(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chatroom not found"})
	}

	if err := st.SendMessage(c.Context(), req.Content); err != nil {
		switch {
		case errors.Is(err, store.ErrNoActiveChatroom):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chatroom not found"})
		case errors.Is(err, store.ErrLocalOnlyChatroom):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "chatroom has no remote group"})
		case errors.Is(err, store.ErrNotAuthenticated):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no chat session"})
		case errors.Is(err, store.ErrNotReady):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "chat service not ready"})
		default:
			h.log.Error("send failed", "chatroom", id, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	room, _ := st.Chatroom(id)
	return c.Status(fiber.StatusCreated).JSON(room)
}

// DiscoverGroups lists joinable public groups, optionally filtered by the
// search query param.
func (h *ChatroomHandler) DiscoverGroups(c *fiber.Ctx) error {
	groups, err := h.storeFor(c).DiscoverPublicGroups(c.Context(), c.Query("search"))
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"groups": groups})
}

func (h *ChatroomHandler) JoinGroup(c *fiber.Ctx) error {
	guid := c.Params("guid")
	if guid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "guid is required"})
	}

	var req models.JoinGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	name := req.Name
	if name == "" {
		name = guid
	}

	room, err := h.storeFor(c).JoinExistingGroup(c.Context(), guid, name)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}
