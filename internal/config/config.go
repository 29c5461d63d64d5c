package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	AdminToken    string

	// Twilio WhatsApp transport
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWebhookSecret string
	TwilioFromNumber    string

	// AI provider: "openai" or "bedrock"
	AIProvider          string
	OpenAIAPIKey        string
	OpenAIChatModel     string
	OpenAIVisionModel   string
	OpenAIWhisperModel  string
	BedrockModelID      string
	AIRetryMaxAttempts  int
	AIRetryBaseDelay    time.Duration
	MediaFetchTimeout   time.Duration
	PendingSelectionTTL time.Duration
	EphemeralLinkTTL    time.Duration
	HistoryTTL          time.Duration

	// Media blob storage: "local" or "s3"
	BlobBackend   string
	MediaRoot     string
	MediaBucket   string
	MediaPrefix   string
	AWSRegion     string
	AWSEndpoint   string
	LocalTimezone string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),

		AIProvider:          strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "openai"))),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIChatModel:     getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIVisionModel:   getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		OpenAIWhisperModel:  getEnv("OPENAI_WHISPER_MODEL", "whisper-1"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		AIRetryMaxAttempts:  getEnvAsInt("AI_RETRY_MAX_ATTEMPTS", 3),
		AIRetryBaseDelay:    getEnvAsDuration("AI_RETRY_BASE_DELAY", 500*time.Millisecond),
		MediaFetchTimeout:   getEnvAsDuration("MEDIA_FETCH_TIMEOUT", 30*time.Second),
		PendingSelectionTTL: getEnvAsDuration("PENDING_SELECTION_TTL", 10*time.Minute),
		EphemeralLinkTTL:    getEnvAsDuration("EPHEMERAL_LINK_TTL", 10*time.Minute),
		HistoryTTL:          getEnvAsDuration("HISTORY_TTL", 24*time.Hour),

		BlobBackend:   strings.ToLower(strings.TrimSpace(getEnv("BLOB_BACKEND", "local"))),
		MediaRoot:     getEnv("MEDIA_ROOT", "./media"),
		MediaBucket:   getEnv("MEDIA_BUCKET", ""),
		MediaPrefix:   getEnv("MEDIA_PREFIX", "media"),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		AWSEndpoint:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		LocalTimezone: getEnv("LOCAL_TIMEZONE", "UTC"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
