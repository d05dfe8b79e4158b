package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	oauth "github.com/giantswarm/oauth-credentials"
)

// newTestClient creates a discovery client that accepts httptest servers,
// which listen on loopback addresses.
func newTestClient(httpClient *http.Client, ttl time.Duration) *DiscoveryClient {
	client := NewDiscoveryClient(httpClient, ttl, slog.Default())
	client.allowPrivateNetwork = true
	return client
}

// testDocument returns a valid discovery document rooted at issuer
func testDocument(issuer string) DiscoveryDocument {
	return DiscoveryDocument{
		Issuer:                        issuer,
		AuthorizationEndpoint:         issuer + "/auth",
		TokenEndpoint:                 issuer + "/token",
		DeviceAuthorizationEndpoint:   issuer + "/device/code",
		RevocationEndpoint:            issuer + "/revoke",
		UserInfoEndpoint:              issuer + "/userinfo",
		JWKSUri:                       issuer + "/keys",
		ScopesSupported:               []string{"openid", "profile", "email", "groups"},
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{"authorization_code", "refresh_token", "urn:ietf:params:oauth:grant-type:device_code"},
		CodeChallengeMethodsSupported: []string{"plain", "S256"},
	}
}

// discoveryServer serves the document produced by mutate for the server's
// own URL and counts requests.
func discoveryServer(t *testing.T, mutate func(*DiscoveryDocument)) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var count atomic.Int32
	var server *httptest.Server
	server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wellKnownPath {
			http.NotFound(w, r)
			return
		}
		count.Add(1)
		doc := testDocument(server.URL)
		if mutate != nil {
			mutate(&doc)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(server.Close)
	return server, &count
}

func TestNewDiscoveryClient(t *testing.T) {
	t.Run("with default values", func(t *testing.T) {
		client := NewDiscoveryClient(nil, 0, nil)
		if client == nil {
			t.Fatal("NewDiscoveryClient() returned nil")
		}
		if client.httpClient == nil {
			t.Error("httpClient should be initialized with default")
		}
		if client.cacheTTL != DefaultCacheTTL {
			t.Errorf("cacheTTL = %v, want %v", client.cacheTTL, DefaultCacheTTL)
		}
		if client.logger == nil {
			t.Error("logger should be initialized with default")
		}
		if client.allowPrivateNetwork {
			t.Error("private network issuers allowed by default")
		}
	})

	t.Run("with custom values", func(t *testing.T) {
		customClient := &http.Client{Timeout: 5 * time.Second}
		customLogger := slog.Default()
		customTTL := 30 * time.Minute

		client := NewDiscoveryClient(customClient, customTTL, customLogger)
		if client.httpClient != customClient {
			t.Error("httpClient should use custom value")
		}
		if client.cacheTTL != customTTL {
			t.Errorf("cacheTTL = %v, want %v", client.cacheTTL, customTTL)
		}
		if client.logger != customLogger {
			t.Error("logger should use custom value")
		}
	})
}

func TestDiscoveryClient_Discover(t *testing.T) {
	t.Run("successful discovery", func(t *testing.T) {
		server, _ := discoveryServer(t, nil)
		client := newTestClient(server.Client(), time.Hour)

		doc, err := client.Discover(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if doc.TokenEndpoint != server.URL+"/token" {
			t.Errorf("TokenEndpoint = %q", doc.TokenEndpoint)
		}
		if doc.DeviceAuthorizationEndpoint != server.URL+"/device/code" {
			t.Errorf("DeviceAuthorizationEndpoint = %q", doc.DeviceAuthorizationEndpoint)
		}
	})

	t.Run("trailing slash on issuer", func(t *testing.T) {
		server, _ := discoveryServer(t, nil)
		client := newTestClient(server.Client(), time.Hour)

		if _, err := client.Discover(context.Background(), server.URL+"/"); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*DiscoveryDocument)
		wantErr string
	}{
		{
			name:    "issuer mismatch",
			mutate:  func(d *DiscoveryDocument) { d.Issuer = "https://other.example.com" },
			wantErr: "does not match",
		},
		{
			name:    "missing token endpoint",
			mutate:  func(d *DiscoveryDocument) { d.TokenEndpoint = "" },
			wantErr: "token_endpoint is required",
		},
		{
			name:    "missing jwks_uri",
			mutate:  func(d *DiscoveryDocument) { d.JWKSUri = "" },
			wantErr: "jwks_uri is required",
		},
		{
			name:    "HTTP token endpoint",
			mutate:  func(d *DiscoveryDocument) { d.TokenEndpoint = "http://dex.example.com/token" },
			wantErr: "token_endpoint must use HTTPS",
		},
		{
			name:    "HTTP device endpoint",
			mutate:  func(d *DiscoveryDocument) { d.DeviceAuthorizationEndpoint = "http://dex.example.com/device" },
			wantErr: "device_authorization_endpoint must use HTTPS",
		},
		{
			name:    "HTTP revocation endpoint",
			mutate:  func(d *DiscoveryDocument) { d.RevocationEndpoint = "http://dex.example.com/revoke" },
			wantErr: "revocation_endpoint must use HTTPS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := discoveryServer(t, tt.mutate)
			client := newTestClient(server.Client(), time.Hour)

			_, err := client.Discover(context.Background(), server.URL)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Discover() error = %v, want containing %q", err, tt.wantErr)
			}
			if _, ok := client.cached(server.URL); ok {
				t.Error("rejected document was cached")
			}
		})
	}

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(server.Client(), time.Hour)
		_, err := client.Discover(context.Background(), server.URL)
		if err == nil || !strings.Contains(err.Error(), "status 404") {
			t.Errorf("Discover() error = %v, want status 404", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}))
		defer server.Close()

		client := newTestClient(server.Client(), time.Hour)
		_, err := client.Discover(context.Background(), server.URL)
		if err == nil || !strings.Contains(err.Error(), "failed to decode") {
			t.Errorf("Discover() error = %v, want decode failure", err)
		}
	})
}

func TestDiscoveryClient_SSRFProtection(t *testing.T) {
	client := NewDiscoveryClient(nil, time.Hour, slog.Default())

	tests := []struct {
		name    string
		issuer  string
		wantErr string
	}{
		{"HTTP issuer", "http://dex.example.com", "must use HTTPS"},
		{"loopback hostname", "https://localhost:5556", "loopback"},
		{"loopback IP", "https://127.0.0.1", "loopback"},
		{"private IP", "https://10.0.0.1", "private addresses"},
		{"link-local metadata IP", "https://169.254.169.254", "link_local addresses"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Discover(context.Background(), tt.issuer)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Discover(%q) error = %v, want containing %q", tt.issuer, err, tt.wantErr)
			}
		})
	}

	t.Run("private network allowed still requires HTTPS", func(t *testing.T) {
		private := newTestClient(nil, time.Hour)
		_, err := private.Discover(context.Background(), "http://10.0.0.1")
		if err == nil || !strings.Contains(err.Error(), "must use HTTPS") {
			t.Errorf("Discover() error = %v, want HTTPS error", err)
		}
	})
}

func TestDiscoveryClient_Cache(t *testing.T) {
	t.Run("cache hit avoids a second request", func(t *testing.T) {
		server, count := discoveryServer(t, nil)
		client := newTestClient(server.Client(), time.Hour)

		first, err := client.Discover(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		second, err := client.Discover(context.Background(), server.URL+"/")
		if err != nil {
			t.Fatalf("second Discover() error = %v", err)
		}
		if first != second {
			t.Error("cached document not reused")
		}
		if n := count.Load(); n != 1 {
			t.Errorf("discovery requests = %d, want 1", n)
		}
	})

	t.Run("expired entries are refetched", func(t *testing.T) {
		server, count := discoveryServer(t, nil)
		client := newTestClient(server.Client(), time.Minute)

		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		client.now = func() time.Time { return now }

		if _, err := client.Discover(context.Background(), server.URL); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		now = now.Add(30 * time.Second)
		if _, err := client.Discover(context.Background(), server.URL); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if n := count.Load(); n != 1 {
			t.Fatalf("requests before expiry = %d, want 1", n)
		}

		now = now.Add(time.Minute)
		if _, err := client.Discover(context.Background(), server.URL); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if n := count.Load(); n != 2 {
			t.Errorf("requests after expiry = %d, want 2", n)
		}
	})

	t.Run("ClearCache", func(t *testing.T) {
		server, count := discoveryServer(t, nil)
		client := newTestClient(server.Client(), time.Hour)

		if _, err := client.Discover(context.Background(), server.URL); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if _, ok := client.cache.Load(server.URL); !ok {
			t.Fatal("document not cached under the normalized issuer")
		}

		client.ClearCache()
		if _, ok := client.cache.Load(server.URL); ok {
			t.Error("cache entry survived ClearCache")
		}
		if _, err := client.Discover(context.Background(), server.URL); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if n := count.Load(); n != 2 {
			t.Errorf("requests = %d, want 2", n)
		}
	})

	t.Run("concurrent lookups", func(t *testing.T) {
		server, count := discoveryServer(t, nil)
		client := newTestClient(server.Client(), time.Hour)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := client.Discover(context.Background(), server.URL); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("Discover() error = %v", err)
		}
		// Lookups that start after the first fetch completes hit the cache,
		// so at most one request per overlapping wave is made.
		if n := count.Load(); n < 1 || n > 10 {
			t.Errorf("discovery requests = %d", n)
		}
	})
}

func TestDiscoveryDocument_Endpoints(t *testing.T) {
	tests := []struct {
		name    string
		methods []string
		want    oauth2.AuthStyle
	}{
		{"unadvertised", nil, oauth2.AuthStyleInHeader},
		{"basic only", []string{"client_secret_basic"}, oauth2.AuthStyleInHeader},
		{"both", []string{"client_secret_basic", "client_secret_post"}, oauth2.AuthStyleInHeader},
		{"post only", []string{"client_secret_post"}, oauth2.AuthStyleInParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument("https://dex.example.com")
			doc.TokenEndpointAuthMethodsSupported = tt.methods

			got := doc.Endpoints()
			if got.AuthStyle != tt.want {
				t.Errorf("AuthStyle = %v, want %v", got.AuthStyle, tt.want)
			}
			if got.TokenURL != "https://dex.example.com/token" ||
				got.AuthURL != "https://dex.example.com/auth" ||
				got.DeviceAuthURL != "https://dex.example.com/device/code" ||
				got.RevocationURL != "https://dex.example.com/revoke" {
				t.Errorf("Endpoints() = %+v", got)
			}
		})
	}
}

func TestDiscoveryDocument_Capabilities(t *testing.T) {
	doc := testDocument("https://dex.example.com")
	if !doc.SupportsPKCE() {
		t.Error("SupportsPKCE() = false with S256 advertised")
	}
	if !doc.SupportsGrant(oauth.GrantDeviceCode) {
		t.Error("SupportsGrant(device_code) = false")
	}
	if doc.SupportsGrant(oauth.GrantClientCredentials) {
		t.Error("SupportsGrant(client_credentials) = true")
	}

	doc.CodeChallengeMethodsSupported = []string{"plain"}
	doc.GrantTypesSupported = nil
	if doc.SupportsPKCE() {
		t.Error("SupportsPKCE() = true without S256")
	}
	if !doc.SupportsGrant(oauth.GrantAuthorizationCode) {
		t.Error("authorization_code not supported by default")
	}
	if doc.SupportsGrant(oauth.GrantRefreshToken) {
		t.Error("refresh_token supported by default")
	}
}

func TestProvider(t *testing.T) {
	t.Run("resolves endpoints", func(t *testing.T) {
		server, _ := discoveryServer(t, func(d *DiscoveryDocument) {
			d.TokenEndpointAuthMethodsSupported = []string{"client_secret_post"}
		})

		p, err := NewNamedProvider("keycloak", Config{
			IssuerURL:           server.URL,
			HTTPClient:          server.Client(),
			AllowPrivateNetwork: true,
		})
		if err != nil {
			t.Fatalf("NewNamedProvider() error = %v", err)
		}
		if p.Name() != "keycloak" {
			t.Errorf("Name() = %q", p.Name())
		}

		e, err := p.Endpoints(context.Background())
		if err != nil {
			t.Fatalf("Endpoints() error = %v", err)
		}
		if e.TokenURL != server.URL+"/token" || e.AuthStyle != oauth2.AuthStyleInParams {
			t.Errorf("Endpoints() = %+v", e)
		}
	})

	t.Run("discovery failure", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p, err := NewProvider(Config{IssuerURL: server.URL, HTTPClient: server.Client(), AllowPrivateNetwork: true})
		if err != nil {
			t.Fatalf("NewProvider() error = %v", err)
		}
		if _, err := p.Endpoints(context.Background()); err == nil || !strings.Contains(err.Error(), "OIDC discovery failed") {
			t.Errorf("Endpoints() error = %v", err)
		}
	})

	t.Run("configuration errors", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"missing issuer", Config{}},
			{"loopback issuer", Config{IssuerURL: "https://127.0.0.1:5556"}},
			{"HTTP issuer on private network", Config{IssuerURL: "http://dex.internal", AllowPrivateNetwork: true}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewProvider(tt.cfg)
				var cerr *oauth.ConfigurationError
				if !errors.As(err, &cerr) || cerr.Field != "issuer_url" {
					t.Errorf("NewProvider() error = %v, want issuer_url ConfigurationError", err)
				}
			})
		}
	})
}
