package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PriorityChangeMode selects where due dates restart when a ticket's priority changes.
type PriorityChangeMode string

const (
	PriorityChangeFromCreation PriorityChangeMode = "from_creation"
	PriorityChangeFromChange   PriorityChangeMode = "from_change"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" or "console".
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	IngestKeyHash   string
}

// NotificationConfig controls escalation delivery channels.
type NotificationConfig struct {
	WebhookURL     string
	RedisChannel   string
	TimeoutSeconds int
}

// SLAConfig tunes the SLA engine.
type SLAConfig struct {
	SweepSchedule      string
	WarningRatio       float64
	WorkerPoolSize     int
	PriorityChangeMode PriorityChangeMode
	DedupTimezone      string
	DedupTTLHours      int
	ManagerIDs         []string
	SeedFile           string
	BackfillMissing    bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
			IngestKeyHash:   os.Getenv("AUTH_INGEST_KEY_HASH"),
		},
		Notification: NotificationConfig{
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			RedisChannel:   getEnv("NOTIFY_REDIS_CHANNEL", "sla:escalations"),
			TimeoutSeconds: getEnvAsInt("SLA_NOTIFY_TIMEOUT_SECONDS", 10),
		},
		SLA: SLAConfig{
			SweepSchedule:      getEnv("SLA_SWEEP_SCHEDULE", "@every 1m"),
			WarningRatio:       getEnvAsFloat("SLA_WARNING_RATIO", 0.15),
			WorkerPoolSize:     getEnvAsInt("SLA_WORKER_POOL_SIZE", 8),
			PriorityChangeMode: PriorityChangeMode(getEnv("SLA_PRIORITY_CHANGE_MODE", string(PriorityChangeFromCreation))),
			DedupTimezone:      getEnv("SLA_DEDUP_TIMEZONE", "UTC"),
			DedupTTLHours:      getEnvAsInt("SLA_DEDUP_TTL_HOURS", 48),
			ManagerIDs:         getEnvAsList("SLA_MANAGER_IDS"),
			SeedFile:           getEnv("SLA_SEED_FILE", ""),
			BackfillMissing:    getEnvAsBool("SLA_BACKFILL_MISSING", true),
		},
	}

	if err := cfg.SLA.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s SLAConfig) validate() error {
	if s.WarningRatio < 0 || s.WarningRatio >= 1 {
		return fmt.Errorf("invalid SLA_WARNING_RATIO %v: must be in [0,1)", s.WarningRatio)
	}
	if s.WorkerPoolSize <= 0 {
		return fmt.Errorf("invalid SLA_WORKER_POOL_SIZE %d", s.WorkerPoolSize)
	}
	switch s.PriorityChangeMode {
	case PriorityChangeFromCreation, PriorityChangeFromChange:
	default:
		return fmt.Errorf("invalid SLA_PRIORITY_CHANGE_MODE %q", s.PriorityChangeMode)
	}
	if _, err := time.LoadLocation(s.DedupTimezone); err != nil {
		return fmt.Errorf("invalid SLA_DEDUP_TIMEZONE: %w", err)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether invariant checks should degrade instead of panic.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns how long issued tokens stay valid.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// Timeout returns the per-delivery notification timeout.
func (n NotificationConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// DedupLocation returns the timezone breach days are counted in.
func (s SLAConfig) DedupLocation() *time.Location {
	loc, err := time.LoadLocation(s.DedupTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DedupTTL returns how long Redis dedup claims live.
func (s SLAConfig) DedupTTL() time.Duration {
	return time.Duration(s.DedupTTLHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
