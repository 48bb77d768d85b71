// Package config provides configuration management for the MCP gateway
// and control plane.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
	Database    DatabaseConfig    `toml:"database"`
	Security    SecurityConfig    `toml:"security"`
	Embedder    EmbedderConfig    `toml:"embedder"`
	Credentials CredentialsConfig `toml:"credentials"`
	Billing     BillingConfig     `toml:"billing"`
	Catalog     CatalogConfig     `toml:"catalog"`
	GoogleOAuth GoogleOAuthConfig `toml:"google_oauth"`
}

// ServerConfig contains server settings.
type ServerConfig struct {
	HTTPPort       int           `toml:"http_port"`
	BindAddress    string        `toml:"bind_address"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout"`
	MaxRequestSize int64         `toml:"max_request_size"`
	PublicBaseURL  string        `toml:"public_base_url"` // used to build OAuth2 redirect_uri
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	ServiceName    string `toml:"service_name"`
	PrometheusPort int    `toml:"prometheus_port"`
	LogFormat      string `toml:"log_format"` // "json" or "text"
	LogLevel       string `toml:"log_level"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Driver     string        `toml:"driver"` // always "postgres"
	DSN        string        `toml:"dsn"`
	Host       string        `toml:"host"`
	Port       int           `toml:"port"`
	User       string        `toml:"user"`
	Password   string        `toml:"password"`
	Database   string        `toml:"database"`
	SSLMode    string        `toml:"ssl_mode"`
	MaxConns   int           `toml:"max_conns"`
	MaxIdle    int           `toml:"max_idle"`
	ConnMaxAge time.Duration `toml:"conn_max_age"`
}

// GetDSN returns the DSN for the database.
func (d *DatabaseConfig) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// GetBaseDSN returns a DSN with no dbname, used to connect to the
// server itself (e.g. to create the target database if missing).
func (d *DatabaseConfig) GetBaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.SSLMode)
}

// SecurityConfig contains auth/crypto settings.
type SecurityConfig struct {
	JWTSecret            string        `toml:"jwt_secret"`
	JWTAccessTokenTTL    time.Duration `toml:"jwt_access_token_ttl"`
	RefreshTokenTTL      time.Duration `toml:"refresh_token_ttl"`
	EmailVerificationTTL time.Duration `toml:"email_verification_ttl"`
	InvitationTTL        time.Duration `toml:"invitation_ttl"`
	BcryptCost           int           `toml:"bcrypt_cost"`
	EncryptionKeyB64     string        `toml:"encryption_key"` // 32-byte key, base64
}

// EmbedderConfig contains embedder settings for SEARCH_TOOLS.
type EmbedderConfig struct {
	Type    string `toml:"type"` // "openai", "bedrock", "ollama"
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	Region  string `toml:"region"` // bedrock
}

// CredentialsConfig tunes the OAuth2 client manager's refresh behavior.
type CredentialsConfig struct {
	RefreshLookahead time.Duration `toml:"refresh_lookahead"` // default 60s
}

// BillingConfig contains Stripe integration settings.
type BillingConfig struct {
	StripeAPIKey        string `toml:"stripe_api_key"`
	StripeWebhookSecret string `toml:"stripe_webhook_secret"`
}

// CatalogConfig tunes tool-catalog sync behavior.
type CatalogConfig struct {
	MinSyncInterval time.Duration `toml:"min_sync_interval"` // default 60s
}

// GoogleOAuthConfig holds the client credentials for "Sign in with
// Google" (C1), separate from the per-MCP-server OAuth2 client
// registrations oauth2client.Manager tracks.
type GoogleOAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       8080,
			BindAddress:    "0.0.0.0",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxRequestSize: 10 * 1024 * 1024,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "mcpgate",
			PrometheusPort: 9090,
			LogFormat:      "json",
			LogLevel:       "info",
		},
		Database: DatabaseConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       5432,
			User:       "postgres",
			Password:   "postgres",
			Database:   "mcpgate",
			SSLMode:    "disable",
			MaxConns:   20,
			MaxIdle:    5,
			ConnMaxAge: 30 * time.Minute,
		},
		Security: SecurityConfig{
			JWTAccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:      30 * 24 * time.Hour,
			EmailVerificationTTL: 24 * time.Hour,
			InvitationTTL:        7 * 24 * time.Hour,
			BcryptCost:           12,
		},
		Credentials: CredentialsConfig{
			RefreshLookahead: 60 * time.Second,
		},
		Catalog: CatalogConfig{
			MinSyncInterval: 60 * time.Second,
		},
	}
}

// Load loads configuration from a TOML file, falling back to defaults
// for any field the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.substituteEnvVars()
	return cfg, nil
}

// LoadOrDefault loads config from file or returns defaults, logging a
// warning on failure rather than aborting startup.
func LoadOrDefault(path string) *Config {
	if path == "" {
		return Default()
	}

	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("warning: failed to load config from %s: %v\n", path, err)
		return Default()
	}
	return cfg
}

// substituteEnvVars expands ${VAR} patterns and applies direct
// MCPGATE_* environment variable overrides, in that order.
func (c *Config) substituteEnvVars() {
	c.Database.DSN = expandEnv(c.Database.DSN)
	c.Database.Host = expandEnv(c.Database.Host)
	c.Database.User = expandEnv(c.Database.User)
	c.Database.Password = expandEnv(c.Database.Password)
	c.Security.JWTSecret = expandEnv(c.Security.JWTSecret)
	c.Security.EncryptionKeyB64 = expandEnv(c.Security.EncryptionKeyB64)
	c.Embedder.APIKey = expandEnv(c.Embedder.APIKey)
	c.Billing.StripeAPIKey = expandEnv(c.Billing.StripeAPIKey)
	c.Billing.StripeWebhookSecret = expandEnv(c.Billing.StripeWebhookSecret)

	if v := os.Getenv("MCPGATE_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("MCPGATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("MCPGATE_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("MCPGATE_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MCPGATE_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("MCPGATE_DB_SSL_MODE"); v != "" {
		c.Database.SSLMode = v
	}
	if v := os.Getenv("MCPGATE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("MCPGATE_JWT_SECRET"); v != "" {
		c.Security.JWTSecret = v
	}
	if v := os.Getenv("MCPGATE_ENCRYPTION_KEY"); v != "" {
		c.Security.EncryptionKeyB64 = v
	}
	if v := os.Getenv("MCPGATE_EMBEDDER_TYPE"); v != "" {
		c.Embedder.Type = v
	}
	if v := os.Getenv("MCPGATE_EMBEDDER_API_KEY"); v != "" {
		c.Embedder.APIKey = v
	}
	if v := os.Getenv("MCPGATE_STRIPE_API_KEY"); v != "" {
		c.Billing.StripeAPIKey = v
	}
	if v := os.Getenv("MCPGATE_STRIPE_WEBHOOK_SECRET"); v != "" {
		c.Billing.StripeWebhookSecret = v
	}
	if v := os.Getenv("MCPGATE_GOOGLE_CLIENT_ID"); v != "" {
		c.GoogleOAuth.ClientID = v
	}
	if v := os.Getenv("MCPGATE_GOOGLE_CLIENT_SECRET"); v != "" {
		c.GoogleOAuth.ClientSecret = v
	}
}

func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}
