package oauth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"
)

const (
	// DefaultSkewMargin is subtracted from a token's expiry before it is
	// considered valid, so a token never expires mid-request.
	DefaultSkewMargin = 30 * time.Second

	// NoSkewMargin configures a zero skew margin: tokens are used until the
	// announced expiry.
	NoSkewMargin time.Duration = -1

	// DefaultRequestTimeout bounds a single token endpoint round trip
	DefaultRequestTimeout = 30 * time.Second

	// DefaultPollInterval is used for device-code polling when the provider
	// does not announce an interval (RFC 8628 section 3.2)
	DefaultPollInterval = 5 * time.Second

	// DefaultSlowDownIncrement is added to the poll interval on slow_down
	// (RFC 8628 section 3.5)
	DefaultSlowDownIncrement = 5 * time.Second
)

// Config holds the credential configuration
// Structured using composition for better organization and maintainability
type Config struct {
	// ClientID is the OAuth client identifier (required for all grants)
	ClientID string

	// ClientSecret is the OAuth client secret.
	// Required unless the client is public (device-code flow or PKCE).
	ClientSecret string

	// Tenant is the issuer or authority the client is registered with (required).
	// When Endpoints.TokenURL is empty it is interpreted as a Microsoft identity
	// platform tenant ("common", "organizations", a tenant ID or domain).
	Tenant string

	// RedirectURI is where the provider sends the user after consent.
	// Required for the authorization code and OpenID Connect grants.
	RedirectURI string

	// Scopes requested for the token (optional)
	Scopes []string

	// Endpoints of the identity provider
	Endpoints Endpoints

	// ResourceOwner holds resource owner password grant inputs
	ResourceOwner ResourceOwnerConfig

	// OpenID holds OpenID Connect specific inputs
	OpenID OpenIDConfig

	// UsePKCE enables Proof Key for Code Exchange (RFC 7636) on the
	// authorization code and OpenID Connect grants
	UsePKCE bool

	// OfflineAccess requests a refresh token on the initial authorization code
	// exchange; the response is then required to contain one
	OfflineAccess bool

	// Timing controls expiry skew, timeouts and device-code poll pacing
	Timing TimingConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is a custom HTTP client for token endpoint requests
	// If not provided, a client with Timing.RequestTimeout is used
	HTTPClient *http.Client
}

// Endpoints holds the identity provider's endpoint URLs
type Endpoints struct {
	// AuthURL is the authorization endpoint (interactive grants)
	AuthURL string

	// TokenURL is the token endpoint
	TokenURL string

	// DeviceAuthURL is the device authorization endpoint (RFC 8628)
	DeviceAuthURL string

	// RevocationURL is the token revocation endpoint (RFC 7009, optional)
	RevocationURL string

	// AuthStyle selects how client credentials are sent to the token endpoint.
	// AuthStyleAutoDetect is treated as HTTP Basic authentication.
	AuthStyle oauth2.AuthStyle
}

// FromOAuth2Endpoint converts an x/oauth2 endpoint into Endpoints
func FromOAuth2Endpoint(e oauth2.Endpoint) Endpoints {
	return Endpoints{
		AuthURL:       e.AuthURL,
		TokenURL:      e.TokenURL,
		DeviceAuthURL: e.DeviceAuthURL,
		AuthStyle:     e.AuthStyle,
	}
}

// OAuth2Endpoint converts Endpoints into an x/oauth2 endpoint
func (e Endpoints) OAuth2Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:       e.AuthURL,
		TokenURL:      e.TokenURL,
		DeviceAuthURL: e.DeviceAuthURL,
		AuthStyle:     e.AuthStyle,
	}
}

// ResourceOwnerConfig holds resource owner password credentials
type ResourceOwnerConfig struct {
	// Username of the resource owner
	Username string

	// Password of the resource owner. It is moved into the credential's secret
	// store and cleared after the initial exchange.
	Password string
}

// OpenIDConfig holds OpenID Connect request parameters
type OpenIDConfig struct {
	// IDTokenHint is a previously issued ID token passed to the authorization
	// endpoint for silent re-authentication (optional)
	IDTokenHint string

	// Nonce binds the ID token to the authorization request.
	// Generated when empty.
	Nonce string
}

// TimingConfig holds time-related settings. Zero values use defaults.
type TimingConfig struct {
	// SkewMargin is subtracted from token expiry. Zero means the 30s default;
	// any negative value (see NoSkewMargin) means no margin.
	SkewMargin time.Duration

	// RequestTimeout bounds one token endpoint request. Default: 30s
	RequestTimeout time.Duration

	// PollInterval is the device-code poll interval floor. Default: 5s
	PollInterval time.Duration

	// SlowDownIncrement is added to the poll interval on slow_down. Default: 5s
	SlowDownIncrement time.Duration

	// MaxPollDuration caps device-code polling when the provider does not
	// announce an expiry. Zero means no cap beyond the caller's context.
	MaxPollDuration time.Duration
}

// WithDefaults returns a copy of the timing configuration with defaults applied
func (t TimingConfig) WithDefaults() TimingConfig {
	if t.SkewMargin == 0 {
		t.SkewMargin = DefaultSkewMargin
	}
	if t.RequestTimeout <= 0 {
		t.RequestTimeout = DefaultRequestTimeout
	}
	if t.PollInterval <= 0 {
		t.PollInterval = DefaultPollInterval
	}
	if t.SlowDownIncrement <= 0 {
		t.SlowDownIncrement = DefaultSlowDownIncrement
	}
	return t
}

// Identity returns the immutable client identity described by the configuration
func (c *Config) Identity() ClientIdentity {
	return ClientIdentity{
		ClientID:     strings.TrimSpace(c.ClientID),
		Tenant:       strings.TrimSpace(c.Tenant),
		Confidential: c.ClientSecret != "",
	}
}

// envConfig mirrors Config for environment loading.
// Secrets are read like any other value; they are never logged.
type envConfig struct {
	GrantType     string        `env:"GRANT_TYPE" envDefault:"authorization_code"`
	ClientID      string        `env:"CLIENT_ID"`
	ClientSecret  string        `env:"CLIENT_SECRET"`
	Tenant        string        `env:"TENANT"`
	RedirectURI   string        `env:"REDIRECT_URI"`
	Scopes        []string      `env:"SCOPES" envSeparator:" "`
	AuthURL       string        `env:"AUTH_URL"`
	TokenURL      string        `env:"TOKEN_URL"`
	DeviceAuthURL string        `env:"DEVICE_AUTH_URL"`
	RevocationURL string        `env:"REVOCATION_URL"`
	AuthInParams  bool          `env:"AUTH_IN_PARAMS"`
	Username      string        `env:"USERNAME"`
	Password      string        `env:"PASSWORD"`
	UsePKCE       bool          `env:"USE_PKCE"`
	OfflineAccess bool          `env:"OFFLINE_ACCESS"`
	SkewMargin    time.Duration `env:"SKEW_MARGIN"`
	Timeout       time.Duration `env:"REQUEST_TIMEOUT"`
	PollInterval  time.Duration `env:"POLL_INTERVAL"`
}

// LoadConfigFromEnv reads a Config and grant type from environment variables
// with the given prefix (e.g. "OAUTH_" reads OAUTH_CLIENT_ID).
func LoadConfigFromEnv(prefix string) (GrantType, Config, error) {
	var ec envConfig
	if err := env.ParseWithOptions(&ec, env.Options{Prefix: prefix}); err != nil {
		return "", Config{}, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	grantType, err := ParseGrantType(ec.GrantType)
	if err != nil {
		return "", Config{}, err
	}

	authStyle := oauth2.AuthStyleInHeader
	if ec.AuthInParams {
		authStyle = oauth2.AuthStyleInParams
	}

	cfg := Config{
		ClientID:     ec.ClientID,
		ClientSecret: ec.ClientSecret,
		Tenant:       ec.Tenant,
		RedirectURI:  ec.RedirectURI,
		Scopes:       ec.Scopes,
		Endpoints: Endpoints{
			AuthURL:       ec.AuthURL,
			TokenURL:      ec.TokenURL,
			DeviceAuthURL: ec.DeviceAuthURL,
			RevocationURL: ec.RevocationURL,
			AuthStyle:     authStyle,
		},
		ResourceOwner: ResourceOwnerConfig{
			Username: ec.Username,
			Password: ec.Password,
		},
		UsePKCE:       ec.UsePKCE,
		OfflineAccess: ec.OfflineAccess,
		Timing: TimingConfig{
			SkewMargin:     ec.SkewMargin,
			RequestTimeout: ec.Timeout,
			PollInterval:   ec.PollInterval,
		},
	}

	return grantType, cfg, nil
}
