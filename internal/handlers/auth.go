package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/models"
	"aichat-backend/internal/services"
	"aichat-backend/internal/store"
	"aichat-backend/internal/utils"
)

// AuthHandler implements the phone/OTP login flow. Verification issues a
// session token and eagerly establishes the chat session; a chat failure
// degrades the response (chat_ready=false) instead of failing the login.
type AuthHandler struct {
	otp      *services.OTPService
	tokens   *services.TokenService
	registry *store.Registry
	devMode  bool
	log      *slog.Logger
}

func NewAuthHandler(otp *services.OTPService, tokens *services.TokenService, registry *store.Registry, devMode bool, log *slog.Logger) *AuthHandler {
	return &AuthHandler{otp: otp, tokens: tokens, registry: registry, devMode: devMode, log: log}
}

// RequestOTP issues a login code for the phone number. There is no SMS
// provider; in dev mode the code rides back in the response.
func (h *AuthHandler) RequestOTP(c *fiber.Ctx) error {
	var req models.OTPRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone is required"})
	}

	code, err := h.otp.Issue(req.Phone)
	if err != nil {
		h.log.Error("otp issue failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue code"})
	}

	resp := fiber.Map{"status": "sent"}
	if h.devMode {
		resp["code"] = code
	}
	return c.JSON(resp)
}

// Verify checks the OTP code, issues the session token and logs the account
// into the chat service.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req models.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if req.Phone == "" || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone and code are required"})
	}
	if !h.otp.Verify(req.Phone, req.Code) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid code"})
	}

	name := req.Name
	if name == "" {
		name = req.Phone
	}
	key := utils.CanonicalAccountKey(req.Phone)

	st := h.registry.GetOrCreate(key)
	chatReady := true
	if err := st.Login(c.Context(), req.Phone, name); err != nil {
		h.log.Warn("chat login failed, issuing token anyway", "account", key, "error", err)
		chatReady = false
	}

	token, err := h.tokens.Generate(key, req.Phone, name)
	if err != nil {
		h.log.Error("token generation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue token"})
	}

	return c.JSON(models.AuthResponse{
		Token:     token,
		User:      models.User{ID: key, PhoneNumber: req.Phone, DisplayName: name},
		ChatReady: chatReady,
	})
}
