// Package dex resolves credential endpoints for Dex (https://dexidp.io/).
// It uses OIDC discovery and supports the Dex connector_id parameter for
// bypassing the connector selection UI.
package dex

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/providers/oidc"
)

// DefaultRequestTimeout bounds discovery when the caller's context has no
// deadline
const DefaultRequestTimeout = 30 * time.Second

// defaultDexScopes are the default scopes for Dex providers.
var defaultDexScopes = []string{
	"openid",
	"profile",
	"email",
	"groups",         // Dex-specific: required for group membership
	"offline_access", // Required for refresh tokens
}

// Config holds Dex resolver configuration
type Config struct {
	// IssuerURL is the Dex issuer URL (e.g., https://dex.example.com)
	IssuerURL string

	// ConnectorID is the optional Dex connector to use (e.g., "github", "ldap")
	// When set, bypasses the Dex connector selection UI
	ConnectorID string

	// Scopes are optional custom scopes (defaults to Dex-optimized scopes if empty)
	// Default: ["openid", "profile", "email", "groups", "offline_access"]
	Scopes []string

	// HTTPClient is an optional custom HTTP client
	HTTPClient *http.Client

	// RequestTimeout is the timeout for discovery (default: 30s)
	RequestTimeout time.Duration

	// AllowPrivateNetwork permits an in-cluster issuer on a private or
	// loopback address. HTTPS is still required.
	AllowPrivateNetwork bool

	// Logger defaults to slog.Default()
	Logger *slog.Logger

	// Instrumentation records discovery metrics and spans (optional)
	Instrumentation *instrumentation.Instrumentation
}

// Provider resolves Dex endpoints through OIDC discovery
type Provider struct {
	discovery      *oidc.Provider
	connectorID    string
	scopes         []string
	requestTimeout time.Duration
}

// NewProvider validates cfg and creates a Dex resolver. Discovery happens on
// the first Endpoints call.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, oauth.MissingField("issuer_url")
	}

	// SECURITY: Validate connector_id if provided
	if err := oidc.ValidateConnectorID(cfg.ConnectorID); err != nil {
		return nil, oauth.NewConfigurationError("connector_id", err.Error())
	}

	scopes, err := resolveScopes(cfg.Scopes)
	if err != nil {
		return nil, err
	}

	discovery, err := oidc.NewNamedProvider("dex", oidc.Config{
		IssuerURL:           cfg.IssuerURL,
		HTTPClient:          cfg.HTTPClient,
		Logger:              cfg.Logger,
		Instrumentation:     cfg.Instrumentation,
		AllowPrivateNetwork: cfg.AllowPrivateNetwork,
	})
	if err != nil {
		return nil, err
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = DefaultRequestTimeout
	}

	return &Provider{
		discovery:      discovery,
		connectorID:    cfg.ConnectorID,
		scopes:         scopes,
		requestTimeout: requestTimeout,
	}, nil
}

// resolveScopes returns validated scopes, using defaults if none provided.
func resolveScopes(configScopes []string) ([]string, error) {
	scopes := configScopes
	if len(scopes) == 0 {
		scopes = defaultDexScopes
	}

	if err := oidc.ValidateScopes(scopes); err != nil {
		return nil, oauth.NewConfigurationError("scopes", err.Error())
	}

	return slices.Clone(scopes), nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "dex"
}

// DefaultScopes returns the provider's configured default scopes.
// Returns a copy to prevent external modification.
func (p *Provider) DefaultScopes() []string {
	return slices.Clone(p.scopes)
}

// ensureContextTimeout ensures the context has a deadline, adding one if needed.
// If the context already has a deadline, returns the original context with a no-op cancel.
func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

// Endpoints discovers the Dex endpoints. When a connector is configured the
// authorization URL carries connector_id so the selection screen is skipped.
func (p *Provider) Endpoints(ctx context.Context) (oauth.Endpoints, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	e, err := p.discovery.Endpoints(ctx)
	if err != nil {
		return oauth.Endpoints{}, err
	}
	if p.connectorID == "" {
		return e, nil
	}

	authURL, err := withConnectorID(e.AuthURL, p.connectorID)
	if err != nil {
		return oauth.Endpoints{}, err
	}
	e.AuthURL = authURL
	return e, nil
}

// withConnectorID adds the connector_id query parameter to authURL
func withConnectorID(authURL, connectorID string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}
	q := u.Query()
	q.Set("connector_id", connectorID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
