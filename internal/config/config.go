package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Bot      BotConfig
	Intake   IntakeConfig
	Registry RegistryConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Ops      OpsConfig
}

// AppConfig controls the ops HTTP server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// BotConfig holds chat transport settings.
type BotConfig struct {
	Token              string
	SupportChatID      int64
	AdminIDs           []int64
	PollTimeoutSeconds int
	WorkerCount        int
}

// IntakeConfig tunes the inbound message router.
type IntakeConfig struct {
	BadWordsEnabled    bool
	BadWordsPattern    string
	AllowedExtensions  []string
	AllowedMIMEPrefix  []string
	QueueThreshold     int
	SpamThreshold      int
	SessionTTLMinutes  int
	CaptionPlaceholder string
}

// RegistryConfig tunes agent application handling.
type RegistryConfig struct {
	ApplicationMaxAgeDays int
	InviteTTLMinutes      int
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

// OpsConfig protects the read-only ops API.
type OpsConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	Username        string
	PasswordHash    string
}

const defaultBadWordsPattern = `(?i)\b(fuck\w*|shut up|dick|bitch|bastard|cunt|bollocks|bugger|wanker|twat)\b`

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	supportChat, err := strconv.ParseInt(getEnv("SUPPORT_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SUPPORT_CHAT_ID: %w", err)
	}

	adminIDs, err := parseIDList(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Bot: BotConfig{
			Token:              os.Getenv("BOT_TOKEN"),
			SupportChatID:      supportChat,
			AdminIDs:           adminIDs,
			PollTimeoutSeconds: getEnvAsInt("BOT_POLL_TIMEOUT_SECONDS", 60),
			WorkerCount:        getEnvAsInt("BOT_WORKER_COUNT", 8),
		},
		Intake: IntakeConfig{
			BadWordsEnabled:    getEnvAsBool("BAD_WORDS_TOGGLE", true),
			BadWordsPattern:    getEnv("BAD_WORDS_PATTERN", defaultBadWordsPattern),
			AllowedExtensions:  splitList(getEnv("ALLOWED_EXTENSIONS", ".pdf,.docx,.jpg,.jpeg,.png")),
			AllowedMIMEPrefix:  splitList(getEnv("ALLOWED_MIME_PREFIXES", "application/pdf,image/jpeg,image/png")),
			QueueThreshold:     getEnvAsInt("QUEUE_THRESHOLD", 3),
			SpamThreshold:      getEnvAsInt("SPAM_PROTECTION", 3),
			SessionTTLMinutes:  getEnvAsInt("SESSION_TTL_MINUTES", 30),
			CaptionPlaceholder: getEnv("CAPTION_PLACEHOLDER", "[media message]"),
		},
		Registry: RegistryConfig{
			ApplicationMaxAgeDays: getEnvAsInt("APPLICATION_MAX_AGE_DAYS", 30),
			InviteTTLMinutes:      getEnvAsInt("INVITE_TTL_MINUTES", 60),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Ops: OpsConfig{
			JWTSecret:       getEnv("OPS_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("OPS_TOKEN_TTL_MINUTES", 60),
			Username:        getEnv("OPS_USERNAME", "ops"),
			PasswordHash:    os.Getenv("OPS_PASSWORD_HASH"),
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

// IsAdmin reports whether the identity is in the configured admin set.
func (b BotConfig) IsAdmin(telegramID int64) bool {
	for _, id := range b.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// SessionTTL returns the transient session lifetime.
func (i IntakeConfig) SessionTTL() time.Duration {
	if i.SessionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(i.SessionTTLMinutes) * time.Minute
}

// InviteTTL returns the invite link lifetime.
func (r RegistryConfig) InviteTTL() time.Duration {
	if r.InviteTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(r.InviteTTLMinutes) * time.Minute
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
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
