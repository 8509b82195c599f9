package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the gateway.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Auth        AuthConfig
	Supabase    SupabaseConfig
	OIDC        OIDCConfig
	Redis       RedisConfig
	Database    DatabaseConfig
	RateLimit   RateLimitConfig
	Cookie      CookieConfig
	Logger      LoggerConfig
}

type HTTPConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig describes the centralized identity authority shared across
// the sibling applications, and how this gateway leans on it.
type AuthConfig struct {
	// Domain is the base URL of the central login UI,
	// e.g. https://auth.vanterra.com
	Domain string

	// Provider selects the identity backend: "supabase" or "oidc".
	Provider string

	// RefreshThreshold is how close to absolute expiry a session must be
	// before the gate attempts a transparent refresh.
	RefreshThreshold time.Duration
}

type SupabaseConfig struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	DSN string
}

// RateLimitConfig tunes the guard in front of the token-exchange endpoint.
// The callback policy is deliberately tighter than general traffic.
type RateLimitConfig struct {
	CallbackLimit  int
	CallbackWindow time.Duration
}

type CookieConfig struct {
	Secure bool
	Domain string
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the gateway can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "vanterra-reporting"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:            getString("SERVER_HOST", "0.0.0.0"),
			Port:            getString("SERVER_PORT", "8080"),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Domain:           getString("AUTH_DOMAIN", "https://auth.vanterra.com"),
			Provider:         getString("AUTH_PROVIDER", "supabase"),
			RefreshThreshold: getDuration("SESSION_REFRESH_THRESHOLD", 5*time.Minute),
		},
		Supabase: SupabaseConfig{
			URL:     os.Getenv("SUPABASE_URL"),
			AnonKey: os.Getenv("SUPABASE_ANON_KEY"),
			Timeout: getDuration("SUPABASE_TIMEOUT", 10*time.Second),
		},
		OIDC: OIDCConfig{
			Issuer:       os.Getenv("OIDC_ISSUER"),
			ClientID:     os.Getenv("OIDC_CLIENT_ID"),
			ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		RateLimit: RateLimitConfig{
			CallbackLimit:  getInt("RATE_LIMIT_CALLBACK", 10),
			CallbackWindow: getDuration("RATE_LIMIT_CALLBACK_WINDOW", time.Minute),
		},
		Cookie: CookieConfig{
			Secure: getBool("COOKIE_SECURE", true),
			Domain: os.Getenv("COOKIE_DOMAIN"),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Auth.Provider {
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return fmt.Errorf("config: supabase provider selected but SUPABASE_URL or SUPABASE_ANON_KEY missing")
		}
	case "oidc":
		if c.OIDC.Issuer == "" || c.OIDC.ClientID == "" {
			return fmt.Errorf("config: oidc provider selected but OIDC_ISSUER or OIDC_CLIENT_ID missing")
		}
	default:
		return fmt.Errorf("config: unknown auth provider %q", c.Auth.Provider)
	}

	if c.RateLimit.CallbackLimit <= 0 || c.RateLimit.CallbackWindow <= 0 {
		return fmt.Errorf("config: rate limit policy must be positive")
	}

	return nil
}

// Address returns the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
