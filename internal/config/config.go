package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the storefront.
type Config struct {
	// Environment controls log format and secret strictness.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// HTTP server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	// BaseURL is the public origin of the storefront. It builds absolute
	// return URLs for the identity provider and decides whether token
	// cookies are Secure.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Identity provider
	IDPURL           string        `env:"IDP_URL"`
	IDPSessionCookie string        `env:"IDP_SESSION_COOKIE" envDefault:"idp_session"`
	IDPTimeout       time.Duration `env:"IDP_TIMEOUT" envDefault:"10s"`
	IDPRateLimit     float64       `env:"IDP_RATE_LIMIT" envDefault:"20"`
	IDPRateBurst     int           `env:"IDP_RATE_BURST" envDefault:"40"`

	// IDPSessionToken is the provider session credential used by the
	// whoami and logout commands.
	IDPSessionToken string `env:"IDP_SESSION_TOKEN"`

	// Route guard
	LoginPath string        `env:"LOGIN_PATH" envDefault:"/signin"`
	GuardWait time.Duration `env:"GUARD_WAIT" envDefault:"2s"`

	// TokenSecret keys the derived auth token values.
	TokenSecret string `env:"TOKEN_SECRET"`

	// StatePath is the bbolt database used by the CLI commands. Empty
	// means ~/.storefront/state.db.
	StatePath string `env:"STATE_PATH"`

	EnableMetrics bool `env:"ENABLE_METRICS" envDefault:"true"`
}

const (
	// tokenSecretMinLen is the minimum TOKEN_SECRET length in production.
	// 32 bytes matches the HKDF-SHA256 output size.
	tokenSecretMinLen = 32
)

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.IDPURL = strings.TrimRight(cfg.IDPURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath != "" {
		absPath, err := filepath.Abs(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
		}

		cfg.StatePath = absPath
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.IDPURL == "" {
		return fmt.Errorf("IDP_URL is required")
	}

	if err := validateHTTPURL(c.IDPURL); err != nil {
		return fmt.Errorf("IDP_URL: %w", err)
	}

	if err := validateHTTPURL(c.BaseURL); err != nil {
		return fmt.Errorf("BASE_URL: %w", err)
	}

	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}

	if c.IsProduction() && len(c.TokenSecret) < tokenSecretMinLen {
		return fmt.Errorf("TOKEN_SECRET must be at least %d characters in production", tokenSecretMinLen)
	}

	if c.IDPSessionCookie == "" {
		return fmt.Errorf("IDP_SESSION_COOKIE must not be empty")
	}

	if !strings.HasPrefix(c.LoginPath, "/") || strings.HasPrefix(c.LoginPath, "//") {
		return fmt.Errorf("LOGIN_PATH must be a path starting with a single '/', got %q", c.LoginPath)
	}

	if c.IDPTimeout <= 0 {
		return fmt.Errorf("IDP_TIMEOUT must be positive")
	}

	if c.GuardWait < 0 {
		return fmt.Errorf("GUARD_WAIT must not be negative")
	}

	if c.IDPRateLimit < 0 {
		return fmt.Errorf("IDP_RATE_LIMIT must not be negative")
	}

	if c.IDPRateLimit > 0 && c.IDPRateBurst < 1 {
		return fmt.Errorf("IDP_RATE_BURST must be at least 1 when IDP_RATE_LIMIT is set")
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CookieSecure reports whether token cookies should carry the Secure
// attribute, which is the case whenever the storefront is served over
// HTTPS.
func (c *Config) CookieSecure() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}
