package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	SMS      SMSConfig
	Admin    AdminConfig
	Poll     PollConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

// GatewayConfig points at the mobile-money gateway's merchant API.
// WebhookBaseURL is the externally reachable base of this server;
// the callback URL sent at initiation is WebhookBaseURL + /api/v1/webhooks/gateway.
type GatewayConfig struct {
	BaseURL        string
	APIKey         string
	WebhookBaseURL string
	UseStub        bool
}

type SMSConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
}

type AdminConfig struct {
	Email    string
	Password string
}

// PollConfig drives the background sweep over transactions whose
// callback never arrived.
type PollConfig struct {
	Interval  time.Duration
	StaleAge  time.Duration
	BatchSize int
}

func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:         getenv("PORT", "8080"),
			Env:          getenv("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getenv("DATABASE_DSN", "avanspay:avanspay@tcp(localhost:3306)/avanspay?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: getenv("JWT_SECRET", "change-me-in-production"),
			AccessExpiry: getduration("JWT_ACCESS_EXPIRY", 12*time.Hour),
			Issuer:       "avanspay",
		},
		Gateway: GatewayConfig{
			BaseURL:        getenv("GATEWAY_BASE_URL", "https://pay.gateway.example.com"),
			APIKey:         os.Getenv("GATEWAY_API_KEY"),
			WebhookBaseURL: getenv("WEBHOOK_BASE_URL", "https://admin.avanspay.example.com"),
			UseStub:        os.Getenv("GATEWAY_USE_STUB") == "1",
		},
		SMS: SMSConfig{
			BaseURL:  os.Getenv("SMS_BASE_URL"),
			APIKey:   os.Getenv("SMS_API_KEY"),
			SenderID: getenv("SMS_SENDER_ID", "AVANSPAY"),
		},
		Admin: AdminConfig{
			Email:    getenv("ADMIN_EMAIL", "admin@avanspay.local"),
			Password: getenv("ADMIN_PASSWORD", "admin"),
		},
		Poll: PollConfig{
			Interval:  getduration("POLL_INTERVAL", 5*time.Minute),
			StaleAge:  getduration("POLL_STALE_AGE", 15*time.Minute),
			BatchSize: getint("POLL_BATCH_SIZE", 50),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
