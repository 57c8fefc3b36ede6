package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	TelegramBotToken    string
	TelegramBotUsername string
	TelegramWebhookURL  string // empty means long polling
	TelegramAPIEndpoint string // empty uses the public Bot API

	LinkTokenTTL   time.Duration
	OTPTTL         time.Duration
	OTPMaxAttempts int // 0 disables the wrong-guess cap
	OTPRateLimit   int
	OTPRateWindow  time.Duration
	RedisURL       string // empty keeps OTP rate counters in process memory

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	LinkTokens        string
	IdentityLinks     string
	ChannelIdentities string
	OTPCodes          string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			LinkTokens:        getEnv("DYNAMO_TABLE_LINK_TOKENS", "link_tokens"),
			IdentityLinks:     getEnv("DYNAMO_TABLE_IDENTITY_LINKS", "identity_links"),
			ChannelIdentities: getEnv("DYNAMO_TABLE_CHANNEL_IDENTITIES", "channel_identities"),
			OTPCodes:          getEnv("DYNAMO_TABLE_OTP_CODES", "otp_codes"),
		},
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBotUsername: getEnv("TELEGRAM_BOT_USERNAME", ""),
		TelegramWebhookURL:  getEnv("TELEGRAM_WEBHOOK_URL", ""),
		TelegramAPIEndpoint: getEnv("TELEGRAM_API_ENDPOINT", ""),
		LinkTokenTTL:        getEnvDuration("LINK_TOKEN_TTL", 20*time.Minute),
		OTPTTL:              getEnvDuration("OTP_TTL", 5*time.Minute),
		OTPMaxAttempts:      getEnvInt("OTP_MAX_ATTEMPTS", 5),
		OTPRateLimit:        getEnvInt("OTP_RATE_LIMIT", 5),
		OTPRateWindow:       getEnvDuration("OTP_RATE_WINDOW", time.Minute),
		RedisURL:            getEnv("REDIS_URL", ""),
		JWTPrivateKeyPath:   getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:    getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:           getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		AllowedOrigins:      strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// DeepLinkBase is the Telegram entry point that link tokens are appended to.
func (c *Config) DeepLinkBase() string {
	return "https://t.me/" + strings.TrimPrefix(c.TelegramBotUsername, "@")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("20m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
