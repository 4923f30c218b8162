package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tutorlink/tutorlink/internal/models"
)

type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Redis        RedisConfig
	DynamoDB     DynamoDBConfig
	JWT          JWTConfig
	Verification VerificationConfig
	Token        TokenConfig
	SMS          SMSConfig
	SMTP         SMTPConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig selects the backend for verification records and capability
// tokens. User profiles always live in DynamoDB.
type StoreConfig struct {
	Backend string // "redis" or "dynamodb"
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type JWTConfig struct {
	SecretKey    string
	AccessExpiry time.Duration
}

type VerificationConfig struct {
	CodeLength     int
	CodeTTL        time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration

	// The login and password-reset flows historically use a shorter code
	// lifetime than registration.
	purposeTTL map[models.Purpose]time.Duration
}

// TTLFor returns the code lifetime for a purpose, falling back to the
// default CodeTTL when no override is configured.
func (c *VerificationConfig) TTLFor(purpose models.Purpose) time.Duration {
	if ttl, ok := c.purposeTTL[purpose]; ok {
		return ttl
	}
	return c.CodeTTL
}

type TokenConfig struct {
	TTL time.Duration
}

type SMSConfig struct {
	Provider string // "mobizon" or "log"
	APIKey   string
	Sender   string
	Timeout  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "redis"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "TutorlinkTable"),
		},
		JWT: JWTConfig{
			SecretKey:    getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Verification: VerificationConfig{
			CodeLength:     getEnvAsInt("VERIFY_CODE_LENGTH", 6),
			CodeTTL:        getEnvAsDuration("VERIFY_CODE_TTL", 10*time.Minute),
			MaxAttempts:    getEnvAsInt("VERIFY_MAX_ATTEMPTS", 3),
			ResendCooldown: getEnvAsDuration("VERIFY_RESEND_COOLDOWN", 90*time.Second),
			purposeTTL: map[models.Purpose]time.Duration{
				models.PurposeLogin:         getEnvAsDuration("VERIFY_CODE_TTL_LOGIN", 5*time.Minute),
				models.PurposePasswordReset: getEnvAsDuration("VERIFY_CODE_TTL_PASSWORD_RESET", 5*time.Minute),
			},
		},
		Token: TokenConfig{
			TTL: getEnvAsDuration("CAPABILITY_TOKEN_TTL", 10*time.Minute),
		},
		SMS: SMSConfig{
			Provider: getEnv("SMS_PROVIDER", "log"),
			APIKey:   getEnv("SMS_API_KEY", ""),
			Sender:   getEnv("SMS_SENDER", ""),
			Timeout:  getEnvAsDuration("SMS_TIMEOUT", 10*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@tutorlink.app"),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if cfg.Store.Backend != "redis" && cfg.Store.Backend != "dynamodb" {
		return nil, fmt.Errorf("STORE_BACKEND must be \"redis\" or \"dynamodb\", got %q", cfg.Store.Backend)
	}

	if cfg.SMS.Provider == "mobizon" && cfg.SMS.APIKey == "" {
		return nil, fmt.Errorf("SMS_API_KEY is required when SMS_PROVIDER=mobizon")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
