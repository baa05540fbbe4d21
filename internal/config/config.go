// Package config loads runtime configuration from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config contains all runtime configuration.
type Config struct {
	HTTPAddr string

	LogLevel  string
	LogFormat string

	StoreDriver string
	DBDSN       string
	DBMaxConns  int
	MongoURL    string
	DBName      string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	RedisAddr        string
	IdentityCacheTTL time.Duration

	CORSOrigins []string

	WSSendQueue  int
	WSRateEvents int
	WSRateWindow time.Duration
	WSOpTimeout  time.Duration

	SeedFile string
}

// Load reads .env (if present) and then the process environment.
// Variables already set in the environment win over .env values.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from the process environment with defaults.
func FromEnv() Config {
	return Config{
		HTTPAddr: EnvString("HTTP_ADDR", ":8001"),

		LogLevel:  EnvString("LOG_LEVEL", "info"),
		LogFormat: EnvString("LOG_FORMAT", "json"),

		StoreDriver: EnvString("STORE_DRIVER", DriverMemory),
		DBDSN:       EnvString("DB_DSN", ""),
		DBMaxConns:  EnvInt("DB_MAX_CONNS", 10),
		MongoURL:    EnvString("MONGO_URL", ""),
		DBName:      EnvString("DB_NAME", "rentchat"),

		JWTSecret: EnvString("JWT_SECRET", ""),
		JWTIssuer: EnvString("JWT_ISSUER", ""),
		JWTTTL:    EnvDuration("JWT_TTL", 7*24*time.Hour),

		RedisAddr:        EnvString("REDIS_ADDR", ""),
		IdentityCacheTTL: EnvDuration("IDENTITY_CACHE_TTL", 30*time.Second),

		CORSOrigins: EnvCSV("CORS_ORIGINS", "*"),

		WSSendQueue:  EnvInt("WS_SEND_QUEUE", 256),
		WSRateEvents: EnvInt("WS_RATE_EVENTS", 120),
		WSRateWindow: EnvDuration("WS_RATE_WINDOW", 10*time.Second),
		WSOpTimeout:  EnvDuration("WS_OP_TIMEOUT", 5*time.Second),

		SeedFile: EnvString("SEED_FILE", ""),
	}
}

// Validate reports configuration that makes startup impossible.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is not set")
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("config: STORE_DRIVER=postgres requires DB_DSN")
		}
	case DriverMongo:
		if c.MongoURL == "" {
			return errors.New("config: STORE_DRIVER=mongo requires MONGO_URL")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}
