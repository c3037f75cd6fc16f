package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the relay.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Discord  DiscordConfig
	Relay    RelayConfig
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

// PostgresConfig holds DB connection values for the optional audit trail.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines handshake token verification. An empty secret disables it.
type AuthConfig struct {
	JWTSecret string
}

// DiscordConfig holds the platform bot credentials and endpoints.
type DiscordConfig struct {
	BotToken          string
	APIURL            string
	GatewayURL        string
	GuildID           string
	CategoryID        string
	RequestsPerSecond int
}

// RelayConfig tunes ticket lifecycle behavior.
type RelayConfig struct {
	CloseDelaySeconds          int
	CreateTimeoutSeconds       int
	SessionWriteTimeoutSeconds int
	CloseCommands              []string
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
			Name:                  getEnv("APP_NAME", "ticket-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("PORT", getEnv("APP_PORT", "3000")),
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
			Addr:          os.Getenv("REDIS_ADDR"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "ticket-relay:events"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		},
		Discord: DiscordConfig{
			BotToken:          os.Getenv("DISCORD_BOT_TOKEN"),
			APIURL:            getEnv("DISCORD_API_URL", "https://discord.com/api/v10"),
			GatewayURL:        getEnv("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json"),
			GuildID:           os.Getenv("DISCORD_GUILD_ID"),
			CategoryID:        os.Getenv("DISCORD_CATEGORY_ID"),
			RequestsPerSecond: getEnvAsInt("DISCORD_REQUESTS_PER_SECOND", 40),
		},
		Relay: RelayConfig{
			CloseDelaySeconds:          getEnvAsInt("TICKET_CLOSE_DELAY_SECONDS", 5),
			CreateTimeoutSeconds:       getEnvAsInt("TICKET_CREATE_TIMEOUT_SECONDS", 15),
			SessionWriteTimeoutSeconds: getEnvAsInt("SESSION_WRITE_TIMEOUT_SECONDS", 5),
			CloseCommands:              getEnvAsList("CLOSE_COMMANDS", []string{"!close", "!resolve"}),
		},
	}

	if cfg.Discord.BotToken == "" {
		return nil, errors.New("missing DISCORD_BOT_TOKEN")
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

// CloseDelay is the grace period between a logical close and channel deletion.
func (r RelayConfig) CloseDelay() time.Duration {
	if r.CloseDelaySeconds < 0 {
		return 0
	}
	return time.Duration(r.CloseDelaySeconds) * time.Second
}

// CreateTimeout bounds the platform calls made while creating a ticket.
func (r RelayConfig) CreateTimeout() time.Duration {
	if r.CreateTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(r.CreateTimeoutSeconds) * time.Second
}

// SessionWriteTimeout bounds one event write to a web session.
func (r RelayConfig) SessionWriteTimeout() time.Duration {
	if r.SessionWriteTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.SessionWriteTimeoutSeconds) * time.Second
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

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
