package app

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/baas"
	"aichat-backend/internal/config"
	"aichat-backend/internal/handlers"
	"aichat-backend/internal/models"
	"aichat-backend/internal/services"
	"aichat-backend/internal/store"
)

func Run() {
	cfg := config.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cache, err := store.OpenCache(cfg.CachePath)
	if err != nil {
		log.Error("failed to open snapshot cache", "path", cfg.CachePath, "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	// AI stack. No key means the gateway answers from the local fallback.
	var gemini *ai.Gemini
	if cfg.GeminiAPIKey != "" {
		gemini = ai.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	} else {
		log.Warn("GEMINI_API_KEY not set, using canned responses")
	}
	gateway := ai.NewGateway(gemini, ai.NewFallback(), log)

	hub := handlers.NewHub(log)

	registry := store.NewRegistry(store.RegistryOptions{
		Factory: func() baas.Client {
			return baas.NewCometChat(cfg.CometChat, cfg.PollInterval, log)
		},
		AI:       gateway,
		Cache:    cache,
		Log:      log,
		PageSize: cfg.MessagePageSize,
		Notify: func(accountKey string, ev models.Event) {
			hub.SendToAccount(accountKey, ev)
		},
	})

	otpSvc := services.NewOTPService(cfg.OTPSecret)
	tokenSvc := services.NewTokenService(cfg.JWTSecret)

	authHandler := handlers.NewAuthHandler(otpSvc, tokenSvc, registry, cfg.DevMode, log)
	roomHandler := handlers.NewChatroomHandler(registry, log)
	chatHandler := handlers.NewChatHandler(gateway, log)

	app := fiber.New()

	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")

	// Public routes
	api.Post("/auth/otp", authHandler.RequestOTP)
	api.Post("/auth/verify", authHandler.Verify)
	api.Post("/chat", chatHandler.Chat)
	api.Get("/debug-env", handlers.DebugEnvHandler(cfg))

	// Protected routes
	protected := api.Group("/", handlers.AuthMiddleware(tokenSvc))
	protected.Get("/chatrooms", roomHandler.List)
	protected.Post("/chatrooms", roomHandler.Create)
	protected.Get("/chatrooms/:id", roomHandler.Get)
	protected.Post("/chatrooms/:id/select", roomHandler.Select)
	protected.Delete("/chatrooms/:id", roomHandler.Delete)
	protected.Get("/chatrooms/:id/messages", roomHandler.Messages)
	protected.Post("/chatrooms/:id/messages", roomHandler.SendMessage)
	protected.Get("/groups/public", roomHandler.DiscoverGroups)
	protected.Post("/groups/:guid/join", roomHandler.JoinGroup)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket route. Middleware order matters: auth first, then upgrade.
	app.Use("/ws", handlers.AuthMiddleware(tokenSvc))
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Get("/ws", handlers.WebSocketHandler(hub, log))

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	log.Info("gracefully shutting down")
	_ = app.Shutdown()
	log.Info("server shutdown complete")
}
