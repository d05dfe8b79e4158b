package tokencli

import (
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DefaultEnvPrefix prefixes every environment variable the CLI reads,
// including the credential configuration loaded by oauth.LoadConfigFromEnv
const DefaultEnvPrefix = "OAUTH_"

// Config holds the CLI settings that are not part of oauth.Config.
type Config struct {
	// EnvPrefix is passed to oauth.LoadConfigFromEnv
	EnvPrefix string `env:"-"`

	// Provider selects the endpoint resolver: static, microsoft, google,
	// github, dex or oidc
	Provider string `env:"PROVIDER" envDefault:"static"`

	// IssuerURL is the issuer for the dex and oidc providers
	IssuerURL string `env:"ISSUER_URL"`

	// AllowPrivateIssuer permits dex and oidc issuers on private networks
	AllowPrivateIssuer bool `env:"ALLOW_PRIVATE_ISSUER"`

	// ConnectorID is the Dex connector to skip the selection screen
	ConnectorID string `env:"DEX_CONNECTOR_ID"`

	// EnterpriseURL is a GitHub Enterprise Server base URL
	EnterpriseURL string `env:"GITHUB_ENTERPRISE_URL"`

	// RotatesRefreshToken requires a new refresh token on every refresh
	RotatesRefreshToken bool `env:"ROTATES_REFRESH_TOKEN"`

	// RefreshToken seeds the refresh_token grant
	RefreshToken string `env:"REFRESH_TOKEN"`

	// CredentialID keys the persisted state
	CredentialID string `env:"CREDENTIAL_ID" envDefault:"default"`

	// Store selects persistence: none, memory, sqlite or valkey
	Store string `env:"STORE" envDefault:"sqlite"`

	// SQLitePath defaults to oauth-token.db in the user config directory
	SQLitePath string `env:"SQLITE_PATH"`

	ValkeyAddr     string `env:"VALKEY_ADDR"`
	ValkeyPassword string `env:"VALKEY_PASSWORD"`

	// EncryptionKey is a base64 encoded 32-byte key for persisted refresh tokens
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// OTelEndpoint enables OTLP/HTTP trace export when set
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
	Audit    bool   `env:"AUDIT"`

	// Revoke revokes and forgets the credential instead of printing a token
	Revoke bool `env:"-"`

	// JSON prints the full token as JSON instead of the bare access token
	JSON bool `env:"-"`
}

// ParseConfig reads the environment, then applies flags from args.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{EnvPrefix: DefaultEnvPrefix}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: cfg.EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	fs.StringVar(&cfg.Provider, "provider", cfg.Provider, "endpoint provider (static, microsoft, google, github, dex, oidc)")
	fs.StringVar(&cfg.CredentialID, "id", cfg.CredentialID, "credential id used for persisted state")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "state store (none, memory, sqlite, valkey)")
	fs.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "sqlite database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Revoke, "revoke", false, "revoke the stored credential and exit")
	fs.BoolVar(&cfg.JSON, "json", false, "print the token as JSON")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	return cfg, nil
}

// logLevel parses the configured level, defaulting to warn
func (c Config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}
