package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool
	CorrelationMirror bool

	// Correlation store
	CorrelationRetention time.Duration
	SweepSchedule        string

	// Dispatch
	CountryCode       string
	Timezone          string
	DispatchBaseDelay time.Duration
	DispatchJitter    time.Duration
	DispatchWorkers   int
	DispatchQueueSize int
	OutboundPerMinute int

	// Classifier
	ClassifierMaxAttempts int
	ClassifierBackoffBase time.Duration
	ClassifierTimeout     time.Duration
	GeminiAPIKey          string
	GeminiModelID         string
	BedrockModelID        string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	AudioArchiveBucket  string

	// WhatsApp
	WhatsAppStorePath string
	WhatsAppPrintQR   bool

	// Operator alerts
	EmailProvider     string
	SendGridAPIKey    string
	EmailFromAddress  string
	EmailFromName     string
	OperatorEmail     string
	OperatorEmailName string

	// HTTP
	AdminJWTSecret   string
	APIRatePerSecond float64
	APIRateBurst     int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "3000"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
		CorrelationMirror: getEnvAsBool("CORRELATION_MIRROR", false),

		CorrelationRetention: getEnvAsDuration("CORRELATION_RETENTION", 24*time.Hour),
		SweepSchedule:        getEnv("CORRELATION_SWEEP_SCHEDULE", "@every 1h"),

		CountryCode:       getEnv("PHONE_COUNTRY_CODE", "55"),
		Timezone:          getEnv("TIMEZONE", "America/Sao_Paulo"),
		DispatchBaseDelay: getEnvAsDuration("DISPATCH_BASE_DELAY", 5*time.Second),
		DispatchJitter:    getEnvAsDuration("DISPATCH_JITTER", 5*time.Second),
		DispatchWorkers:   getEnvAsInt("DISPATCH_WORKERS", 1),
		DispatchQueueSize: getEnvAsInt("DISPATCH_QUEUE_SIZE", 32),
		OutboundPerMinute: getEnvAsInt("DISPATCH_OUTBOUND_PER_MINUTE", 20),

		ClassifierMaxAttempts: getEnvAsInt("CLASSIFIER_MAX_ATTEMPTS", 3),
		ClassifierBackoffBase: getEnvAsDuration("CLASSIFIER_BACKOFF_BASE", 2*time.Second),
		ClassifierTimeout:     getEnvAsDuration("CLASSIFIER_TIMEOUT", 30*time.Second),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:         getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AudioArchiveBucket:  getEnv("AUDIO_ARCHIVE_BUCKET", ""),

		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/whatsapp-store.db"),
		WhatsAppPrintQR:   getEnvAsBool("WHATSAPP_PRINT_QR", true),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Robô de Agendamentos"),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", ""),
		OperatorEmailName: getEnv("OPERATOR_EMAIL_NAME", "Operação"),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		APIRatePerSecond: getEnvAsFloat("API_RATE_PER_SECOND", 2),
		APIRateBurst:     getEnvAsInt("API_RATE_BURST", 10),
	}
}

// Location resolves the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
