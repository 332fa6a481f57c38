package handlers

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/models"
)

// ChatHandler is the public AI proxy: the browser never holds the model API
// key, it posts here and the server talks to the model.
type ChatHandler struct {
	ai  ai.Responder
	log *slog.Logger
}

func NewChatHandler(responder ai.Responder, log *slog.Logger) *ChatHandler {
	return &ChatHandler{ai: responder, log: log}
}

func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	resp, err := h.ai.GenerateReply(c.Context(), req.Message, req.ConversationHistory)
	if err != nil {
		h.log.Error("ai proxy failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ChatResponse{
			Content: ai.ApologyText,
			Error:   "generation failed",
		})
	}
	return c.JSON(resp)
}
