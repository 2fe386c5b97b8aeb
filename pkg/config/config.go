package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/session"
	"github.com/platinummonkey/casedesk/pkg/sso"
	"github.com/platinummonkey/casedesk/pkg/storage"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all application configuration
type Config struct {
	// Environment is "development" or "production"
	Environment string `yaml:"environment"`

	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	OIDC          sso.Config          `yaml:"oidc"`
	Storage       storage.Config      `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Probe and metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// TrustedProxyHops is the number of reverse proxies in front of the
	// server that append to X-Forwarded-For. Zero ignores the header.
	TrustedProxyHops int `yaml:"trusted_proxy_hops"`
}

// SessionConfig holds session credential settings
type SessionConfig struct {
	// Secret signs session credentials; at least 32 bytes
	Secret       string        `yaml:"secret"`
	CookieName   string        `yaml:"cookie_name"`
	CookieSecure bool          `yaml:"cookie_secure"`
	MaxAge       time.Duration `yaml:"max_age"`
	// RevocationTimeout bounds each revocation-store lookup
	RevocationTimeout time.Duration `yaml:"revocation_timeout"`
	RevokeAllOnLogout bool          `yaml:"revoke_all_on_logout"`
	// Login rate limit per client IP
	LoginRequestsPerMinute int `yaml:"login_requests_per_minute"`
	LoginBurst             int `yaml:"login_burst"`
}

// CookiePolicy returns the session cookie policy
func (s SessionConfig) CookiePolicy() session.CookiePolicy {
	return session.CookiePolicy{Name: s.CookieName, Secure: s.CookieSecure}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the OpenTelemetry settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// MaintenanceConfig drives the maintenance binary
type MaintenanceConfig struct {
	// NormalizeSchedule is a cron expression for the legacy normalization sweep
	NormalizeSchedule string `yaml:"normalize_schedule"`
}

// Default returns the configuration used before any file or environment
// override
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Session: SessionConfig{
			CookieName:             session.DefaultCookieName,
			MaxAge:                 auth.DefaultSessionLifetime,
			RevocationTimeout:      auth.DefaultRevocationTimeout,
			LoginRequestsPerMinute: 10,
			LoginBurst:             5,
		},
		OIDC:    sso.Config{Scopes: sso.DefaultScopes},
		Storage: storage.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "casedesk",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Maintenance: MaintenanceConfig{
			NormalizeSchedule: "0 3 * * *",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CASEDESK_CONFIG_FILE and then environment variables, in that
// order of precedence from lowest to highest
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CASEDESK_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML file at path
func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("CASEDESK_ENV", c.Environment)

	s := &c.Server
	s.Host = getEnv("CASEDESK_HOST", s.Host)
	s.Port = getEnv("CASEDESK_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("CASEDESK_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("CASEDESK_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("CASEDESK_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("CASEDESK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("CASEDESK_HEALTH_PORT", s.HealthPort)
	s.TrustedProxyHops = getEnvInt("CASEDESK_TRUSTED_PROXY_HOPS", s.TrustedProxyHops)

	sess := &c.Session
	sess.Secret = getEnv("CASEDESK_SESSION_SECRET", sess.Secret)
	sess.CookieName = getEnv("CASEDESK_SESSION_COOKIE_NAME", sess.CookieName)
	sess.CookieSecure = getEnvBool("CASEDESK_SESSION_COOKIE_SECURE", sess.CookieSecure)
	sess.MaxAge = getEnvDuration("CASEDESK_SESSION_MAX_AGE", sess.MaxAge)
	sess.RevocationTimeout = getEnvDuration("CASEDESK_SESSION_REVOCATION_TIMEOUT", sess.RevocationTimeout)
	sess.RevokeAllOnLogout = getEnvBool("CASEDESK_SESSION_REVOKE_ALL_ON_LOGOUT", sess.RevokeAllOnLogout)
	sess.LoginRequestsPerMinute = getEnvInt("CASEDESK_LOGIN_RATE_LIMIT", sess.LoginRequestsPerMinute)
	sess.LoginBurst = getEnvInt("CASEDESK_LOGIN_BURST", sess.LoginBurst)
	if c.Environment == EnvProduction {
		sess.CookieSecure = true
	}
	// the issuing authority never signs for longer than this
	sess.MaxAge = auth.ClampLifetime(sess.MaxAge)

	o := &c.OIDC
	o.IssuerURL = getEnv("CASEDESK_OIDC_ISSUER_URL", o.IssuerURL)
	o.ClientID = getEnv("CASEDESK_OIDC_CLIENT_ID", o.ClientID)
	o.ClientSecret = getEnv("CASEDESK_OIDC_CLIENT_SECRET", o.ClientSecret)
	o.RedirectURL = getEnv("CASEDESK_OIDC_REDIRECT_URL", o.RedirectURL)
	if scopes := getEnv("CASEDESK_OIDC_SCOPES", ""); scopes != "" {
		o.Scopes = strings.Split(scopes, ",")
	}
	o.RequireVerifiedEmail = getEnvBool("CASEDESK_OIDC_REQUIRE_VERIFIED_EMAIL", o.RequireVerifiedEmail)

	st := &c.Storage
	st.Type = getEnv("CASEDESK_STORAGE_TYPE", st.Type)
	st.FilesystemRoot = getEnv("CASEDESK_FILESYSTEM_ROOT", st.FilesystemRoot)
	st.PostgresURL = getEnv("CASEDESK_POSTGRES_URL", st.PostgresURL)
	if maxConns := getEnvInt("CASEDESK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		st.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("CASEDESK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		st.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("CASEDESK_POSTGRES_TIMEOUT", 0); timeout > 0 {
		st.PostgresTimeout = timeout
	}
	st.S3Endpoint = getEnv("CASEDESK_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("CASEDESK_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("CASEDESK_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("CASEDESK_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("CASEDESK_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("CASEDESK_S3_USE_PATH_STYLE", st.S3UsePathStyle)
	st.RedisURL = getEnv("CASEDESK_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("CASEDESK_REDIS_PASSWORD", st.RedisPassword)
	if redisDB := getEnvInt("CASEDESK_REDIS_DB", -1); redisDB >= 0 {
		st.RedisDB = redisDB
	}
	if retries := getEnvInt("CASEDESK_REDIS_MAX_RETRIES", 0); retries > 0 {
		st.RedisMaxRetries = retries
	}
	if pool := getEnvInt("CASEDESK_REDIS_POOL_SIZE", 0); pool > 0 {
		st.RedisPoolSize = pool
	}

	ob := &c.Observability
	ob.LogLevel = getEnv("CASEDESK_LOG_LEVEL", ob.LogLevel)
	ob.MetricsEnabled = getEnvBool("CASEDESK_METRICS_ENABLED", ob.MetricsEnabled)
	ob.OTelEnabled = getEnvBool("CASEDESK_OTEL_ENABLED", ob.OTelEnabled)
	ob.OTelEndpoint = getEnv("CASEDESK_OTEL_ENDPOINT", ob.OTelEndpoint)
	ob.OTelServiceName = getEnv("CASEDESK_OTEL_SERVICE_NAME", ob.OTelServiceName)
	ob.OTelServiceVersion = getEnv("CASEDESK_OTEL_SERVICE_VERSION", ob.OTelServiceVersion)
	ob.OTelInsecure = getEnvBool("CASEDESK_OTEL_INSECURE", ob.OTelInsecure)
	ob.OTelSampleRatio = getEnvFloat("CASEDESK_OTEL_SAMPLE_RATIO", ob.OTelSampleRatio)

	c.Maintenance.NormalizeSchedule = getEnv("CASEDESK_NORMALIZE_SCHEDULE", c.Maintenance.NormalizeSchedule)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("invalid environment: %s (must be development or production)", c.Environment)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.MaxAge <= 0 || c.Session.MaxAge > auth.MaxSessionLifetime {
		return fmt.Errorf("session max age must be between 0 and %s", auth.MaxSessionLifetime)
	}
	if c.Server.TrustedProxyHops < 0 {
		return fmt.Errorf("trusted proxy hops must not be negative")
	}
	if c.Session.LoginRequestsPerMinute <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}

	if err := c.OIDC.Validate(); err != nil {
		return fmt.Errorf("oidc: %w", err)
	}

	switch c.Storage.Type {
	case "memory":
		if c.Environment == EnvProduction {
			return fmt.Errorf("memory storage is not allowed in production")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}
	if c.Storage.S3Bucket == "" && c.Storage.FilesystemRoot == "" {
		return fmt.Errorf("either an S3 bucket or a filesystem root is required for attachments")
	}
	// revocations must be visible to every instance
	if c.Environment == EnvProduction && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required in production")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
