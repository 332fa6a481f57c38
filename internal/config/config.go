package config

import (
	"time"

	"aichat-backend/internal/utils"
)

// CometChatConfig holds the credentials for the hosted chat service.
type CometChatConfig struct {
	AppID   string
	Region  string
	AuthKey string
}

type Config struct {
	Port string

	JWTSecret string
	OTPSecret string

	GeminiAPIKey string
	GeminiModel  string

	CometChat CometChatConfig

	// CachePath is the sqlite file backing the persisted client snapshot.
	CachePath string

	// DevMode returns OTP codes in the issue response (no SMS provider).
	DevMode bool

	MessagePageSize int
	PollInterval    time.Duration
}

// Load reads all env vars and builds the config.
func Load() *Config {
	_ = utils.LoadEnv()

	return &Config{
		Port: utils.GetEnv("PORT", "3001"),

		JWTSecret: utils.GetEnv("JWT_SECRET", "secret"),
		OTPSecret: utils.GetEnv("OTP_SECRET", "dev-otp-secret"),

		GeminiAPIKey: utils.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:  utils.GetEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		CometChat: CometChatConfig{
			AppID:   utils.GetEnv("COMETCHAT_APP_ID", ""),
			Region:  utils.GetEnv("COMETCHAT_REGION", "in"),
			AuthKey: utils.GetEnv("COMETCHAT_AUTH_KEY", ""),
		},

		CachePath: utils.GetEnv("CACHE_PATH", "chat-cache.db"),
		DevMode:   utils.GetEnvBool("DEV_MODE", true),

		MessagePageSize: utils.GetEnvInt("MESSAGE_PAGE_SIZE", 30),
		PollInterval:    time.Duration(utils.GetEnvInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
	}
}
