package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// setRequired sets the variables without which LoadConfig fails
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CASEDESK_SESSION_SECRET", testSecret)
	t.Setenv("CASEDESK_OIDC_ISSUER_URL", "https://id.example.org")
	t.Setenv("CASEDESK_OIDC_CLIENT_ID", "casedesk")
}

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "CASEDESK_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "CASEDESK_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CASEDESK_TEST_BOOL", "1")
	t.Setenv("CASEDESK_TEST_INT", "nope")
	t.Setenv("CASEDESK_TEST_DURATION", "90s")
	t.Setenv("CASEDESK_TEST_FLOAT", "0.25")

	if !getEnvBool("CASEDESK_TEST_BOOL", false) {
		t.Error("getEnvBool() should accept 1")
	}
	if got := getEnvInt("CASEDESK_TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %d, want default on parse error", got)
	}
	if got := getEnvDuration("CASEDESK_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvFloat("CASEDESK_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Session.CookieName != "session" {
		t.Errorf("cookie name = %q, want session", cfg.Session.CookieName)
	}
	if cfg.Session.MaxAge != auth.DefaultSessionLifetime {
		t.Errorf("max age = %v, want %v", cfg.Session.MaxAge, auth.DefaultSessionLifetime)
	}
	if cfg.Session.CookieSecure {
		t.Error("cookie should not be secure by default in development")
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Observability.Level() != observability.InfoLevel {
		t.Errorf("log level = %v, want info", cfg.Observability.Level())
	}
	if cfg.Server.TrustedProxyHops != 0 {
		t.Errorf("trusted proxy hops = %d, want 0", cfg.Server.TrustedProxyHops)
	}
}

func TestLoadConfig_TrustedProxyHops(t *testing.T) {
	setRequired(t)
	t.Setenv("CASEDESK_TRUSTED_PROXY_HOPS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.TrustedProxyHops != 2 {
		t.Errorf("trusted proxy hops = %d, want 2", cfg.Server.TrustedProxyHops)
	}
}

func TestLoadConfig_SessionFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("CASEDESK_SESSION_COOKIE_NAME", "__casedesk")
	t.Setenv("CASEDESK_SESSION_MAX_AGE", "720h")
	t.Setenv("CASEDESK_ENV", "production")
	t.Setenv("CASEDESK_STORAGE_TYPE", "postgres")
	t.Setenv("CASEDESK_POSTGRES_URL", "postgres://localhost/casedesk")
	t.Setenv("CASEDESK_REDIS_URL", "redis://localhost:6379")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	policy := cfg.Session.CookiePolicy()
	if policy.Name != "__casedesk" || !policy.Secure {
		t.Errorf("cookie policy = %+v, want secure __casedesk", policy)
	}
	if cfg.Session.MaxAge != auth.MaxSessionLifetime {
		t.Errorf("max age = %v, want clamped to %v", cfg.Session.MaxAge, auth.MaxSessionLifetime)
	}
}

func TestLoadConfig_File(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "casedesk.yaml")
	content := `
server:
  port: "8443"
  read_timeout: 5s
session:
  revoke_all_on_logout: true
observability:
  log_level: debug
maintenance:
  normalize_schedule: "@hourly"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CASEDESK_CONFIG_FILE", path)
	t.Setenv("CASEDESK_PORT", "8081")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != "8081" {
		t.Errorf("port = %q, environment must win over the file", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if !cfg.Session.RevokeAllOnLogout {
		t.Error("revoke_all_on_logout not loaded from file")
	}
	if cfg.Observability.Level() != observability.DebugLevel {
		t.Error("log level not loaded from file")
	}
	if cfg.Maintenance.NormalizeSchedule != "@hourly" {
		t.Errorf("schedule = %q", cfg.Maintenance.NormalizeSchedule)
	}
	if cfg.Session.CookieName != "session" {
		t.Error("defaults must survive a partial file")
	}
}

func TestLoadConfig_FileUnknownField(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "casedesk.yaml")
	if err := os.WriteFile(path, []byte("sesion:\n  secret: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CASEDESK_CONFIG_FILE", path)

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for misspelled section")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Session.Secret = testSecret
		cfg.OIDC.IssuerURL = "https://id.example.org"
		cfg.OIDC.ClientID = "casedesk"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"short secret", func(c *Config) { c.Session.Secret = "short" }, "session secret"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"negative proxy hops", func(c *Config) { c.Server.TrustedProxyHops = -1 }, "trusted proxy hops"},
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"missing issuer", func(c *Config) { c.OIDC.IssuerURL = "" }, "issuer_url"},
		{"postgres without url", func(c *Config) { c.Storage.Type = "postgres" }, "postgres URL"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "firestore" }, "invalid storage type"},
		{"memory in production", func(c *Config) { c.Environment = EnvProduction }, "memory storage"},
		{"production without redis", func(c *Config) {
			c.Environment = EnvProduction
			c.Storage.Type = "postgres"
			c.Storage.PostgresURL = "postgres://localhost/casedesk"
		}, "redis URL"},
		{"no attachment store", func(c *Config) { c.Storage.FilesystemRoot = "" }, "attachments"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
