package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Session   SessionConfig
	DemoUser  DemoUserConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // comma-separated, or "*" for all (e.g. http://localhost:3000,https://trailmeet.app)

	// TrustedProxies are the IPs or CIDRs whose X-Forwarded-For is believed. Empty trusts none,
	// so the client IP is the socket peer.
	TrustedProxies []string
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver       string
	MongoURL     string
	DBName       string
	PostgresURL  string
	PostgresPool int32
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// SessionConfig holds the session token signing key.
type SessionConfig struct {
	Secret string
}

// DemoUserConfig is the identity every demo session is bound to.
type DemoUserConfig struct {
	Email   string
	Name    string
	Picture string
}

// RateLimitConfig holds the per-IP limiter settings. PerMinute 0 disables it.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8001"),
			ReadTimeout:    getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:   getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
			TrustedProxies: splitTrim(getEnv("TRUSTED_PROXIES", ""), ","),
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
			MongoURL:     getEnv("MONGO_URL", "mongodb://localhost:27017"),
			DBName:       getEnv("DB_NAME", "trailmeet"),
			PostgresURL:  getEnv("DATABASE_URL", "postgres://localhost:5432/trailmeet?sslmode=disable"),
			PostgresPool: int32(getEnvInt("DATABASE_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			Secret: getEnv("SESSION_SECRET", "change-me-in-production"),
		},
		DemoUser: DemoUserConfig{
			Email:   getEnv("DEMO_USER_EMAIL", "demo@example.com"),
			Name:    getEnv("DEMO_USER_NAME", "Demo User"),
			Picture: getEnv("DEMO_USER_PICTURE", "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150&h=150&fit=crop&crop=face"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 300),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 50),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be mongo, postgres or memory, got %q", c.Store.Driver)
	}
	for _, o := range splitTrim(c.Server.CORSOrigins, ",") {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("CORS_ORIGINS entry %q must start with http:// or https://", o)
		}
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
			}
		}
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must not be negative")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET must not be empty")
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
