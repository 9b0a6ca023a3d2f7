package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"ENVIRONMENT",
		"LOG_LEVEL",
		"LISTEN_ADDR",
		"BASE_URL",
		"IDP_URL",
		"IDP_SESSION_COOKIE",
		"IDP_TIMEOUT",
		"IDP_RATE_LIMIT",
		"IDP_RATE_BURST",
		"IDP_SESSION_TOKEN",
		"LOGIN_PATH",
		"GUARD_WAIT",
		"TOKEN_SECRET",
		"STATE_PATH",
		"ENABLE_METRICS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// setRequiredEnv sets the minimum env vars for a valid config.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDP_URL", "https://id.example.com")
	t.Setenv("TOKEN_SECRET", "dev-secret")
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "https://id.example.com", cfg.IDPURL)
	assert.Equal(t, "idp_session", cfg.IDPSessionCookie)
	assert.Equal(t, 10*time.Second, cfg.IDPTimeout)
	assert.Equal(t, 20.0, cfg.IDPRateLimit)
	assert.Equal(t, 40, cfg.IDPRateBurst)
	assert.Equal(t, "/signin", cfg.LoginPath)
	assert.Equal(t, 2*time.Second, cfg.GuardWait)
	assert.True(t, cfg.EnableMetrics)
	assert.Empty(t, cfg.StatePath)
	assert.False(t, cfg.CookieSecure())
}

func TestLoad_CustomValues(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("BASE_URL", "https://shop.example.com/")
	t.Setenv("IDP_URL", "https://id.example.com/")
	t.Setenv("IDP_SESSION_COOKIE", "__Secure-next-auth.session-token")
	t.Setenv("IDP_TIMEOUT", "3s")
	t.Setenv("GUARD_WAIT", "500ms")
	t.Setenv("LOGIN_PATH", "/account/signin")
	t.Setenv("ENABLE_METRICS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", cfg.BaseURL)
	assert.Equal(t, "https://id.example.com", cfg.IDPURL)
	assert.Equal(t, "__Secure-next-auth.session-token", cfg.IDPSessionCookie)
	assert.Equal(t, 3*time.Second, cfg.IDPTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.GuardWait)
	assert.Equal(t, "/account/signin", cfg.LoginPath)
	assert.False(t, cfg.EnableMetrics)
	assert.True(t, cfg.CookieSecure())
}

func TestLoad_MissingIDPURL(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	os.Unsetenv("IDP_URL")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDP_URL")
}

func TestLoad_MissingTokenSecret(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	os.Unsetenv("TOKEN_SECRET")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_SECRET")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("IDP_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_ResolvesRelativeStatePath(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("STATE_PATH", "relative/state.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.StatePath), "StatePath should be absolute, got: %s", cfg.StatePath)
	assert.Contains(t, cfg.StatePath, "relative/state.db")
}

func TestLoad_ProductionRequiresLongSecret(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")

	t.Setenv("TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

// --- validate ---

func validConfig() *Config {
	return &Config{
		Environment:      "development",
		BaseURL:          "http://localhost:8080",
		IDPURL:           "https://id.example.com",
		IDPSessionCookie: "idp_session",
		IDPTimeout:       10 * time.Second,
		IDPRateLimit:     20,
		IDPRateBurst:     40,
		LoginPath:        "/signin",
		GuardWait:        2 * time.Second,
		TokenSecret:      "dev-secret",
	}
}

func TestValidate_AllPresent(t *testing.T) {
	assert.NoError(t, validConfig().validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"idp scheme", func(c *Config) { c.IDPURL = "ftp://id.example.com" }, "IDP_URL"},
		{"idp host", func(c *Config) { c.IDPURL = "https://" }, "missing host"},
		{"base url", func(c *Config) { c.BaseURL = "shop.example.com" }, "BASE_URL"},
		{"empty cookie", func(c *Config) { c.IDPSessionCookie = "" }, "IDP_SESSION_COOKIE"},
		{"relative login path", func(c *Config) { c.LoginPath = "signin" }, "LOGIN_PATH"},
		{"protocol-relative login path", func(c *Config) { c.LoginPath = "//evil.example.com" }, "LOGIN_PATH"},
		{"zero timeout", func(c *Config) { c.IDPTimeout = 0 }, "IDP_TIMEOUT"},
		{"negative wait", func(c *Config) { c.GuardWait = -time.Second }, "GUARD_WAIT"},
		{"negative rate", func(c *Config) { c.IDPRateLimit = -1 }, "IDP_RATE_LIMIT"},
		{"zero burst", func(c *Config) { c.IDPRateBurst = 0 }, "IDP_RATE_BURST"},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RateLimitDisabledIgnoresBurst(t *testing.T) {
	c := validConfig()
	c.IDPRateLimit = 0
	c.IDPRateBurst = 0
	assert.NoError(t, c.validate())
}

// --- helpers ---

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{Environment: "production"}).IsProduction())
	assert.False(t, (&Config{Environment: "development"}).IsProduction())
}

func TestCookieSecure(t *testing.T) {
	assert.True(t, (&Config{BaseURL: "https://shop.example.com"}).CookieSecure())
	assert.False(t, (&Config{BaseURL: "http://localhost:8080"}).CookieSecure())
}

func TestWarnInsecureEnvFile_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NotPanics(t, warnInsecureEnvFile)
}
