package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
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
	Scheduler    SchedulerConfig
	Survey       SurveyConfig
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
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig holds outbound channel settings.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// SLAConfig carries the fallback per-priority deadline tables and the
// breach-check lead time. Organization-specific rules in the database
// override these defaults.
type SLAConfig struct {
	ResolutionMinutes    map[string]int
	FirstResponseMinutes map[string]int
	BreachLeadMinutes    int
}

// SchedulerConfig tunes the delayed job scheduler.
type SchedulerConfig struct {
	TickSeconds         int
	RetentionMinutes    int
	MaxAttempts         int
	RetryBackoffSeconds int
	DeadLetterLimit     int
}

// SurveyConfig controls CSAT survey dispatch.
type SurveyConfig struct {
	DelayMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-lifecycle"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		SLA: SLAConfig{
			ResolutionMinutes: map[string]int{
				"P1": getEnvAsInt("SLA_RESOLUTION_MINUTES_P1", 240),
				"P2": getEnvAsInt("SLA_RESOLUTION_MINUTES_P2", 480),
				"P3": getEnvAsInt("SLA_RESOLUTION_MINUTES_P3", 2880),
				"P4": getEnvAsInt("SLA_RESOLUTION_MINUTES_P4", 7200),
				"P5": getEnvAsInt("SLA_RESOLUTION_MINUTES_P5", 14400),
			},
			FirstResponseMinutes: map[string]int{
				"P1": getEnvAsInt("SLA_FIRST_RESPONSE_MINUTES_P1", 30),
				"P2": getEnvAsInt("SLA_FIRST_RESPONSE_MINUTES_P2", 60),
				"P3": getEnvAsInt("SLA_FIRST_RESPONSE_MINUTES_P3", 240),
				"P4": getEnvAsInt("SLA_FIRST_RESPONSE_MINUTES_P4", 480),
				"P5": getEnvAsInt("SLA_FIRST_RESPONSE_MINUTES_P5", 1440),
			},
			BreachLeadMinutes: getEnvAsInt("SLA_BREACH_LEAD_MINUTES", 60),
		},
		Scheduler: SchedulerConfig{
			TickSeconds:         getEnvAsInt("SCHEDULER_TICK_SECONDS", 30),
			RetentionMinutes:    getEnvAsInt("SCHEDULER_RETENTION_MINUTES", 60),
			MaxAttempts:         getEnvAsInt("SCHEDULER_MAX_ATTEMPTS", 3),
			RetryBackoffSeconds: getEnvAsInt("SCHEDULER_RETRY_BACKOFF_SECONDS", 60),
			DeadLetterLimit:     getEnvAsInt("SCHEDULER_DEAD_LETTER_LIMIT", 256),
		},
		Survey: SurveyConfig{
			DelayMinutes: getEnvAsInt("SURVEY_DELAY_MINUTES", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TickPeriod returns the scheduler tick interval.
func (s SchedulerConfig) TickPeriod() time.Duration {
	return time.Duration(s.TickSeconds) * time.Second
}

// Retention returns how long completed jobs are kept before purge.
func (s SchedulerConfig) Retention() time.Duration {
	return time.Duration(s.RetentionMinutes) * time.Minute
}

// RetryBackoff returns the base delay between retry attempts.
func (s SchedulerConfig) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffSeconds) * time.Second
}

// BreachLead returns how long before the due time the early breach check runs.
func (s SLAConfig) BreachLead() time.Duration {
	return time.Duration(s.BreachLeadMinutes) * time.Minute
}

// Delay returns how long after resolution the CSAT survey is sent.
func (s SurveyConfig) Delay() time.Duration {
	return time.Duration(s.DelayMinutes) * time.Minute
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
