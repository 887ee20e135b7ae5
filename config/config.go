package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	LogLevel    string

	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	BcryptCost     int

	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	VerificationRateWait time.Duration
	AppBaseURL           string

	ResendAPIKey string
	MailFrom     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CleanupExpiredSchedule string
	CleanupInvalidSchedule string

	EventWorkers   int
	EventQueueSize int
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      getEnv("JWT_ISSUER", "bookstore"),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		BcryptCost:     getEnvInt("BCRYPT_COST", 0),

		VerificationTokenTTL: time.Duration(getEnvInt("VERIFICATION_TOKEN_MINUTES", 10)) * time.Minute,
		ResetTokenTTL:        time.Duration(getEnvInt("RESET_TOKEN_MINUTES", 15)) * time.Minute,
		VerificationRateWait: time.Duration(getEnvInt("VERIFICATION_RATE_LIMIT_SECONDS", 60)) * time.Second,
		AppBaseURL:           strings.TrimRight(os.Getenv("APP_BASE_URL"), "/"),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		MailFrom:     os.Getenv("MAIL_FROM"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CleanupExpiredSchedule: getEnv("CLEANUP_EXPIRED_SCHEDULE", "0 3 * * *"),
		CleanupInvalidSchedule: getEnv("CLEANUP_INVALID_SCHEDULE", "5 3 * * *"),

		EventWorkers:   getEnvInt("EVENT_WORKERS", 4),
		EventQueueSize: getEnvInt("EVENT_QUEUE_SIZE", 100),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
