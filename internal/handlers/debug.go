package handlers

import (
	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/config"
)

// DebugEnvHandler reports which credentials are configured without leaking
// them: presence plus a short masked preview.
func DebugEnvHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"GEMINI_API_KEY":     describeSecret(cfg.GeminiAPIKey),
			"COMETCHAT_APP_ID":   describeSecret(cfg.CometChat.AppID),
			"COMETCHAT_REGION":   describeSecret(cfg.CometChat.Region),
			"COMETCHAT_AUTH_KEY": describeSecret(cfg.CometChat.AuthKey),
		})
	}
}

func describeSecret(v string) fiber.Map {
	if v == "" {
		return fiber.Map{"status": "NOT_SET"}
	}
	return fiber.Map{"status": "SET", "preview": maskSecret(v)}
}

func maskSecret(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + "..."
}
