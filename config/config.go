package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Twitch   TwitchConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Detector DetectorConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TwitchConfig holds Twitch API credentials and webhook settings.
type TwitchConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string // HMAC secret for EventSub signature verification
	CallbackURL   string // public URL of POST /webhooks/twitch
	HelixURL      string // override for tests; default https://api.twitch.tv/helix
	AuthURL       string // override for tests; default https://id.twitch.tv/oauth2/token
	ChatURL       string // override for tests; default wss://irc-ws.chat.twitch.tv:443
}

// JWTConfig holds JWT signing and validation settings for dashboard tokens.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the report artifacts bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ReportsBucket   string
}

// DetectorConfig holds moment detection and polling tunables.
type DetectorConfig struct {
	PollIntervalSec   int // viewer poll cadence
	ChatSampleRate    int // persist 1 in N chat messages
	MomentTTLDays     int // default pending moment expiry
	EnsureIntervalMin int // subscription ensure cadence
	ReconcileHours    int // subscription reconcile cadence
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	PollIntervalSec int
	BatchSize       int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0), // 0: SSE streams must not be cut off
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "streampulse"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Twitch: TwitchConfig{
			ClientID:      getEnv("TWITCH_CLIENT_ID", ""),
			ClientSecret:  getEnv("TWITCH_CLIENT_SECRET", ""),
			WebhookSecret: getEnv("TWITCH_WEBHOOK_SECRET", ""),
			CallbackURL:   getEnv("TWITCH_CALLBACK_URL", ""),
			HelixURL:      getEnv("TWITCH_HELIX_URL", "https://api.twitch.tv/helix"),
			AuthURL:       getEnv("TWITCH_AUTH_URL", "https://id.twitch.tv/oauth2/token"),
			ChatURL:       getEnv("TWITCH_CHAT_URL", "wss://irc-ws.chat.twitch.tv:443"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ReportsBucket:   getEnv("AWS_S3_REPORTS_BUCKET", "streampulse-reports"),
		},
		Detector: DetectorConfig{
			PollIntervalSec:   getEnvInt("POLL_INTERVAL_SEC", 60),
			ChatSampleRate:    getEnvInt("CHAT_SAMPLE_RATE", 5),
			MomentTTLDays:     getEnvInt("MOMENT_TTL_DAYS", 7),
			EnsureIntervalMin: getEnvInt("SUBSCRIPTION_ENSURE_MIN", 10),
			ReconcileHours:    getEnvInt("SUBSCRIPTION_RECONCILE_HOURS", 12),
		},
		Worker: WorkerConfig{
			PollIntervalSec: getEnvInt("WORKER_POLL_INTERVAL_SEC", 5),
			BatchSize:       getEnvInt("WORKER_BATCH_SIZE", 5),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
