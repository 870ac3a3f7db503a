package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Admin     AdminConfig
	Event     EventConfig
	Email     EmailConfig
	AWS       AWSConfig
	Content   ContentConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string `validate:"required"`
	ReadTimeout        int    `validate:"gte=0"`
	WriteTimeout       int    `validate:"gte=0"`
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins string // comma-separated, or "*" for all
	// PublicBaseURL is the origin used in cancel links. Empty means derive it
	// from the request.
	PublicBaseURL string `validate:"omitempty,url"`
}

// DatabaseConfig selects and configures the registration store.
type DatabaseConfig struct {
	Driver       string `validate:"oneof=postgres sqlite"`
	URL          string // Postgres DSN, e.g. postgres://localhost:5432/registration?sslmode=disable
	SQLitePath   string
	MaxConns     int32
	StoreTimeout time.Duration
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// email retry queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// AdminConfig holds the shared admin secret and lockout policy.
type AdminConfig struct {
	Token         string
	TokenHash     string // bcrypt hash; takes precedence over Token
	MaxFailures   int    `validate:"gte=0"`
	FailureWindow time.Duration
}

// EventConfig describes the event and its capacity.
type EventConfig struct {
	Title        string `validate:"required"`
	Description  string
	Location     string
	Dates        string // Google Calendar range, UTC
	Timezone     string `validate:"required"`
	Capacity     int    `validate:"gt=0"`
	SeatCacheTTL time.Duration
}

// Zone loads the event time zone, falling back to UTC.
func (c EventConfig) Zone() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EmailConfig configures the outbound mail API.
type EmailConfig struct {
	BaseURL          string   `validate:"required,url"`
	Paths            []string `validate:"min=1"`
	RegistrationFrom string
	DefaultSender    string `validate:"required,email"`
	Timeout          time.Duration
}

// Senders returns the sender identities in failover order.
func (c EmailConfig) Senders() []string {
	var out []string
	for _, s := range []string{c.RegistrationFrom, c.DefaultSender} {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AWSConfig holds AWS credentials and the copy deck object location.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible stores
	ContentBucket   string
	ContentKey      string
}

// ContentFromS3 reports whether the copy deck lives in S3.
func (c AWSConfig) ContentFromS3() bool { return c.ContentBucket != "" }

// ContentConfig points at the local copy deck.
type ContentConfig struct {
	File     string
	ReadOnly bool
}

// RateLimitConfig limits public form submissions per client IP.
type RateLimitConfig struct {
	PublicRequests int
	Window         time.Duration
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			URL:          getEnv("DATABASE_URL", "postgres://localhost:5432/registration?sslmode=disable"),
			SQLitePath:   getEnv("SQLITE_PATH", "registrations.db"),
			MaxConns:     int32(getEnvInt("DB_MAX_CONNS", 10)),
			StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Admin: AdminConfig{
			Token:         getEnv("ADMIN_TOKEN", ""),
			TokenHash:     getEnv("ADMIN_TOKEN_HASH", ""),
			MaxFailures:   getEnvInt("ADMIN_MAX_FAILURES", 10),
			FailureWindow: getEnvDuration("ADMIN_FAILURE_WINDOW", 5*time.Minute),
		},
		Event: EventConfig{
			Title:        getEnv("EVENT_TITLE", "AssiWorks Opening"),
			Description:  getEnv("EVENT_DESCRIPTION", "AssiWorks Opening 행사에 참석해 주셔서 감사합니다."),
			Location:     getEnv("EVENT_LOCATION", "서울 종로구 광화문 한국Microsoft 본사 13층"),
			Dates:        getEnv("EVENT_DATES", "20260303T050000Z/20260303T080000Z"),
			Timezone:     getEnv("EVENT_TIMEZONE", "Asia/Seoul"),
			Capacity:     getEnvInt("EVENT_CAPACITY", 100),
			SeatCacheTTL: getEnvDuration("SEAT_CACHE_TTL", 5*time.Second),
		},
		Email: EmailConfig{
			BaseURL:          strings.TrimRight(getEnv("SEND_MAIL_BASE_URL", "https://send-mail.nicedune-dfc430a8.westus2.azurecontainerapps.io"), "/"),
			Paths:            splitTrim(getEnv("SEND_MAIL_PATHS", "/email/aws-send,/emails/aws-send,/api/v1/emails/aws-send"), ","),
			RegistrationFrom: getEnv("REGISTRATION_FROM_EMAIL", ""),
			DefaultSender:    getEnv("DEFAULT_SENDER_EMAIL", "se@aifactory.page"),
			Timeout:          getEnvDuration("SEND_MAIL_TIMEOUT", 10*time.Second),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
			ContentBucket:   getEnv("AWS_S3_CONTENT_BUCKET", ""),
			ContentKey:      getEnv("AWS_S3_CONTENT_KEY", "content.md"),
		},
		Content: ContentConfig{
			File:     getEnv("CONTENT_FILE", "content.md"),
			ReadOnly: getEnvBool("CONTENT_READ_ONLY", false),
		},
		RateLimit: RateLimitConfig{
			PublicRequests: getEnvInt("PUBLIC_RATE_LIMIT", 30),
			Window:         getEnvDuration("PUBLIC_RATE_WINDOW", time.Minute),
		},
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Admin.Token == "" && c.Admin.TokenHash == "" {
		return errors.New("invalid config: ADMIN_TOKEN or ADMIN_TOKEN_HASH is required")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("invalid config: DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return errors.New("invalid config: SQLITE_PATH is required for the sqlite driver")
		}
	}
	if _, err := time.LoadLocation(c.Event.Timezone); err != nil {
		return fmt.Errorf("invalid config: EVENT_TIMEZONE: %w", err)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("5s") or bare seconds ("5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
