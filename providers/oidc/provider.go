package oidc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
)

// Config configures a discovery-based resolver
type Config struct {
	// IssuerURL is the OIDC issuer (e.g., https://login.example.com)
	IssuerURL string

	// HTTPClient is an optional custom HTTP client
	HTTPClient *http.Client

	// CacheTTL defaults to DefaultCacheTTL
	CacheTTL time.Duration

	// Logger defaults to slog.Default()
	Logger *slog.Logger

	// Instrumentation records discovery metrics and spans (optional)
	Instrumentation *instrumentation.Instrumentation

	// AllowPrivateNetwork permits issuers on loopback and private addresses,
	// such as an in-cluster Dex. HTTPS is still required.
	AllowPrivateNetwork bool
}

// Provider resolves endpoints through OIDC discovery
type Provider struct {
	name      string
	issuerURL string
	client    *DiscoveryClient
}

// NewProvider validates cfg and creates a resolver. Discovery happens on the
// first Endpoints call.
func NewProvider(cfg Config) (*Provider, error) {
	return newProvider("oidc", cfg)
}

// NewNamedProvider is NewProvider reporting name in logs and metrics
func NewNamedProvider(name string, cfg Config) (*Provider, error) {
	return newProvider(name, cfg)
}

func newProvider(name string, cfg Config) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, oauth.MissingField("issuer_url")
	}
	if err := validateIssuer(cfg.IssuerURL, cfg.AllowPrivateNetwork); err != nil {
		return nil, oauth.NewConfigurationError("issuer_url", err.Error())
	}

	client := NewDiscoveryClient(cfg.HTTPClient, cfg.CacheTTL, cfg.Logger)
	client.SetInstrumentation(cfg.Instrumentation)
	client.allowPrivateNetwork = cfg.AllowPrivateNetwork

	return &Provider{name: name, issuerURL: cfg.IssuerURL, client: client}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.name
}

// Document returns the issuer's discovery document
func (p *Provider) Document(ctx context.Context) (*DiscoveryDocument, error) {
	return p.client.discover(ctx, p.name, p.issuerURL)
}

// Endpoints discovers the issuer's endpoints
func (p *Provider) Endpoints(ctx context.Context) (oauth.Endpoints, error) {
	doc, err := p.Document(ctx)
	if err != nil {
		return oauth.Endpoints{}, fmt.Errorf("OIDC discovery failed: %w", err)
	}
	return doc.Endpoints(), nil
}
