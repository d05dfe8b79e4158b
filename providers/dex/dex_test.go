package dex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/credential"
	"github.com/giantswarm/oauth-credentials/providers"
	"github.com/giantswarm/oauth-credentials/providers/oidc"
)

// setupMockDexServer serves a Dex discovery document rooted at the server URL
func setupMockDexServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var discoveries atomic.Int32
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		discoveries.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oidc.DiscoveryDocument{
			Issuer:                            server.URL,
			AuthorizationEndpoint:             server.URL + "/auth",
			TokenEndpoint:                     server.URL + "/token",
			DeviceAuthorizationEndpoint:       server.URL + "/device/code",
			UserInfoEndpoint:                  server.URL + "/userinfo",
			JWKSUri:                           server.URL + "/keys",
			ScopesSupported:                   []string{"openid", "profile", "email", "groups", "offline_access"},
			ResponseTypesSupported:            []string{"code"},
			GrantTypesSupported:               []string{"authorization_code", "refresh_token", "urn:ietf:params:oauth:grant-type:device_code"},
			CodeChallengeMethodsSupported:     []string{"S256"},
			TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		})
	})

	server = httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)
	return server, &discoveries
}

// testConfig creates a resolver config for server
func testConfig(server *httptest.Server, options ...func(*Config)) *Config {
	cfg := &Config{
		IssuerURL:           server.URL,
		HTTPClient:          server.Client(), // trusts the test TLS cert
		AllowPrivateNetwork: true,            // httptest listens on loopback
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

func TestNewProvider(t *testing.T) {
	server, discoveries := setupMockDexServer(t)

	p, err := NewProvider(testConfig(server))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.Name() != "dex" {
		t.Errorf("Name() = %q, want dex", p.Name())
	}
	if p.requestTimeout != DefaultRequestTimeout {
		t.Errorf("requestTimeout = %v, want default", p.requestTimeout)
	}
	if n := discoveries.Load(); n != 0 {
		t.Errorf("NewProvider() performed %d discoveries, want lazy discovery", n)
	}
}

func TestNewProvider_Errors(t *testing.T) {
	server, _ := setupMockDexServer(t)

	tests := []struct {
		name      string
		cfg       *Config
		wantField string
	}{
		{"nil config", nil, "issuer_url"},
		{"missing issuer", &Config{}, "issuer_url"},
		{"HTTP issuer", &Config{IssuerURL: "http://dex.example.com"}, "issuer_url"},
		{"private issuer without opt-in", &Config{IssuerURL: "https://10.0.0.5"}, "issuer_url"},
		{"invalid connector_id", testConfig(server, func(c *Config) { c.ConnectorID = "github&prompt=none" }), "connector_id"},
		{"connector_id too long", testConfig(server, func(c *Config) { c.ConnectorID = strings.Repeat("a", 65) }), "connector_id"},
		{"empty scope", testConfig(server, func(c *Config) { c.Scopes = []string{"openid", ""} }), "scopes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if p != nil {
				t.Error("NewProvider() returned a provider on error")
			}
			var cerr *oauth.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("NewProvider() error = %v, want ConfigurationError", err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.wantField)
			}
		})
	}
}

func TestDefaultScopes(t *testing.T) {
	server, _ := setupMockDexServer(t)

	p, err := NewProvider(testConfig(server))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	scopes := p.DefaultScopes()
	if !slices.Equal(scopes, []string{"openid", "profile", "email", "groups", "offline_access"}) {
		t.Errorf("DefaultScopes() = %v", scopes)
	}

	scopes[0] = "modified"
	if p.DefaultScopes()[0] != "openid" {
		t.Error("DefaultScopes() exposes internal state")
	}
	if defaultDexScopes[0] != "openid" {
		t.Error("defaults modified through provider")
	}

	custom, err := NewProvider(testConfig(server, func(c *Config) { c.Scopes = []string{"openid", "email"} }))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if got := custom.DefaultScopes(); !slices.Equal(got, []string{"openid", "email"}) {
		t.Errorf("DefaultScopes() = %v", got)
	}
}

func TestEndpoints(t *testing.T) {
	server, discoveries := setupMockDexServer(t)

	p, err := NewProvider(testConfig(server))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	e, err := p.Endpoints(context.Background())
	if err != nil {
		t.Fatalf("Endpoints() error = %v", err)
	}
	if e.AuthURL != server.URL+"/auth" {
		t.Errorf("AuthURL = %q", e.AuthURL)
	}
	if e.TokenURL != server.URL+"/token" || e.DeviceAuthURL != server.URL+"/device/code" {
		t.Errorf("Endpoints() = %+v", e)
	}
	if e.RevocationURL != "" {
		t.Errorf("RevocationURL = %q, Dex announces none", e.RevocationURL)
	}

	if _, err := p.Endpoints(context.Background()); err != nil {
		t.Fatalf("second Endpoints() error = %v", err)
	}
	if n := discoveries.Load(); n != 1 {
		t.Errorf("discoveries = %d, want 1 (cached)", n)
	}
}

func TestEndpoints_ConnectorID(t *testing.T) {
	server, _ := setupMockDexServer(t)

	p, err := NewProvider(testConfig(server, func(c *Config) { c.ConnectorID = "github" }))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	e, err := p.Endpoints(context.Background())
	if err != nil {
		t.Fatalf("Endpoints() error = %v", err)
	}
	u, err := url.Parse(e.AuthURL)
	if err != nil {
		t.Fatalf("AuthURL %q does not parse: %v", e.AuthURL, err)
	}
	if got := u.Query().Get("connector_id"); got != "github" {
		t.Errorf("connector_id = %q, want github", got)
	}
	if strings.Contains(e.TokenURL, "connector_id") {
		t.Errorf("TokenURL = %q carries connector_id", e.TokenURL)
	}
}

func TestEndpoints_DiscoveryTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p, err := NewProvider(testConfig(server, func(c *Config) { c.RequestTimeout = 50 * time.Millisecond }))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	start := time.Now()
	if _, err := p.Endpoints(context.Background()); err == nil {
		t.Fatal("Endpoints() succeeded against a hanging server")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Endpoints() took %v, want the request timeout", elapsed)
	}
}

func TestAuthorizationURLWithConnector(t *testing.T) {
	server, _ := setupMockDexServer(t)

	p, err := NewProvider(testConfig(server, func(c *Config) { c.ConnectorID = "ldap" }))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	cfg := oauth.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Tenant:       "dex",
		RedirectURI:  "http://localhost:8080/callback",
		Scopes:       p.DefaultScopes(),
	}
	if err := providers.Apply(context.Background(), p, &cfg); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	c, err := credential.Build(oauth.GrantAuthorizationCode, cfg, credential.WithRefreshTokenRotation())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	raw, ok := c.AuthorizationURL()
	if !ok {
		t.Fatal("AuthorizationURL() not available")
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthorizationURL() = %q: %v", raw, err)
	}
	q := u.Query()
	if q.Get("connector_id") != "ldap" {
		t.Errorf("connector_id = %q, want ldap", q.Get("connector_id"))
	}
	if q.Get("state") == "" || q.Get("client_id") != "test-client" {
		t.Errorf("authorization query = %v", q)
	}
	if !strings.Contains(q.Get("scope"), "groups") {
		t.Errorf("scope = %q, want Dex groups scope", q.Get("scope"))
	}
}
