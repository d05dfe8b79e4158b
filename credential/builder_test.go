package credential

import (
	"errors"
	"strings"
	"testing"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/storage"
)

func baseConfig() oauth.Config {
	return oauth.Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Tenant:       "tenant-1",
		RedirectURI:  "http://localhost:8080/callback",
		Endpoints: oauth.Endpoints{
			AuthURL:       "https://idp.example.com/authorize",
			TokenURL:      "https://idp.example.com/token",
			DeviceAuthURL: "https://idp.example.com/devicecode",
		},
		ResourceOwner: oauth.ResourceOwnerConfig{
			Username: "alice",
			Password: "hunter2",
		},
	}
}

func TestBuild_RejectsMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		grantType oauth.GrantType
		mutate    func(*oauth.Config)
		wantField string
	}{
		{"client_id for client_credentials", oauth.GrantClientCredentials, func(c *oauth.Config) { c.ClientID = "" }, "client_id"},
		{"client_id for device_code", oauth.GrantDeviceCode, func(c *oauth.Config) { c.ClientID = "  " }, "client_id"},
		{"tenant for authorization_code", oauth.GrantAuthorizationCode, func(c *oauth.Config) { c.Tenant = "" }, "tenant"},
		{"tenant for refresh_token", oauth.GrantRefreshToken, func(c *oauth.Config) { c.Tenant = "" }, "tenant"},
		{"redirect_uri for authorization_code", oauth.GrantAuthorizationCode, func(c *oauth.Config) { c.RedirectURI = "" }, "redirect_uri"},
		{"redirect_uri for openid_connect", oauth.GrantOpenIDConnect, func(c *oauth.Config) { c.RedirectURI = "" }, "redirect_uri"},
		{"auth_url for authorization_code", oauth.GrantAuthorizationCode, func(c *oauth.Config) { c.Endpoints.AuthURL = "" }, "auth_url"},
		{"client_secret without PKCE", oauth.GrantAuthorizationCode, func(c *oauth.Config) { c.ClientSecret = "" }, "client_secret"},
		{"client_secret for client_credentials", oauth.GrantClientCredentials, func(c *oauth.Config) { c.ClientSecret = "" }, "client_secret"},
		{"client_secret for refresh_token", oauth.GrantRefreshToken, func(c *oauth.Config) { c.ClientSecret = "" }, "client_secret"},
		{"client_secret for password", oauth.GrantResourceOwnerPassword, func(c *oauth.Config) { c.ClientSecret = "" }, "client_secret"},
		{"username for password", oauth.GrantResourceOwnerPassword, func(c *oauth.Config) { c.ResourceOwner.Username = "" }, "username"},
		{"password for password", oauth.GrantResourceOwnerPassword, func(c *oauth.Config) { c.ResourceOwner.Password = "" }, "password"},
		{"device_auth_url for device_code", oauth.GrantDeviceCode, func(c *oauth.Config) { c.Endpoints.DeviceAuthURL = "" }, "device_auth_url"},
		{"relative token_url", oauth.GrantClientCredentials, func(c *oauth.Config) { c.Endpoints.TokenURL = "/token" }, "token_url"},
		{"bad revocation_url", oauth.GrantClientCredentials, func(c *oauth.Config) { c.Endpoints.RevocationURL = "ftp://x" }, "revocation_url"},
		{"unsupported grant", oauth.GrantType("implicit"), func(c *oauth.Config) {}, "grant_type"},
		{"tenant unusable for derived endpoints", oauth.GrantDeviceCode, func(c *oauth.Config) {
			c.Endpoints = oauth.Endpoints{}
			c.Tenant = "a/b"
		}, "tenant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)

			c, err := Build(tt.grantType, cfg)
			if c != nil {
				t.Fatal("Build() returned a credential on error")
			}
			var cerr *oauth.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("Build() error = %v, want ConfigurationError", err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.wantField)
			}
		})
	}
}

func TestBuild_AcceptsEveryGrant(t *testing.T) {
	for _, gt := range []oauth.GrantType{
		oauth.GrantAuthorizationCode,
		oauth.GrantClientCredentials,
		oauth.GrantResourceOwnerPassword,
		oauth.GrantDeviceCode,
		oauth.GrantRefreshToken,
		oauth.GrantOpenIDConnect,
	} {
		t.Run(gt.String(), func(t *testing.T) {
			c, err := Build(gt, baseConfig())
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got := c.State(); got != StateUnauthorized {
				t.Errorf("State() = %v, want unauthorized", got)
			}
			if c.GrantType() != gt {
				t.Errorf("GrantType() = %v, want %v", c.GrantType(), gt)
			}
			if c.ID() == "" {
				t.Error("ID() is empty")
			}
		})
	}
}

func TestBuild_PublicClients(t *testing.T) {
	cfg := baseConfig()
	cfg.ClientSecret = ""

	if _, err := Build(oauth.GrantDeviceCode, cfg); err != nil {
		t.Errorf("device_code without secret: %v", err)
	}

	cfg.UsePKCE = true
	c, err := Build(oauth.GrantAuthorizationCode, cfg)
	if err != nil {
		t.Fatalf("authorization_code with PKCE and no secret: %v", err)
	}
	if c.Identity().Confidential {
		t.Error("Identity().Confidential = true for a public client")
	}
}

func TestBuild_DerivesMicrosoftEndpoints(t *testing.T) {
	cfg := oauth.Config{
		ClientID: "client-1",
		Tenant:   "organizations",
		Endpoints: oauth.Endpoints{
			RevocationURL: "https://idp.example.com/revoke",
		},
	}

	c, err := Build(oauth.GrantDeviceCode, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := "https://login.microsoftonline.com/organizations/oauth2/v2.0/token"; c.endpoints.TokenURL != want {
		t.Errorf("TokenURL = %q, want %q", c.endpoints.TokenURL, want)
	}
	if !strings.HasSuffix(c.endpoints.DeviceAuthURL, "/organizations/oauth2/v2.0/devicecode") {
		t.Errorf("DeviceAuthURL = %q", c.endpoints.DeviceAuthURL)
	}
	if c.endpoints.RevocationURL != "https://idp.example.com/revoke" {
		t.Errorf("RevocationURL = %q, want the configured one", c.endpoints.RevocationURL)
	}
}

func TestBuild_AppliesTimingDefaults(t *testing.T) {
	cfg := baseConfig()
	cfg.Timing.SkewMargin = time.Minute

	c, err := Build(oauth.GrantClientCredentials, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.timing.SkewMargin != time.Minute {
		t.Errorf("SkewMargin = %v, want 1m", c.timing.SkewMargin)
	}
	if c.timing.PollInterval != oauth.DefaultPollInterval {
		t.Errorf("PollInterval = %v, want default", c.timing.PollInterval)
	}
}

func TestBuild_WithID(t *testing.T) {
	c, err := Build(oauth.GrantClientCredentials, baseConfig(), WithID("graph-daemon"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.ID() != "graph-daemon" {
		t.Errorf("ID() = %q", c.ID())
	}

	_, err = Build(oauth.GrantClientCredentials, baseConfig(), WithID(strings.Repeat("x", storage.MaxIDLength+1)))
	var cerr *oauth.ConfigurationError
	if !errors.As(err, &cerr) || cerr.Field != "credential_id" {
		t.Errorf("Build() with long ID error = %v", err)
	}
}

func TestBuild_WithRestoredState(t *testing.T) {
	state := &storage.PersistedState{
		CredentialID: "cred-1",
		GrantType:    oauth.GrantDeviceCode,
		ClientID:     "client-1",
		Tenant:       "tenant-1",
		RefreshToken: "rt-1",
	}

	c, err := Build(oauth.GrantDeviceCode, baseConfig(), WithRestoredState(state))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.ID() != "cred-1" {
		t.Errorf("ID() = %q, want cred-1", c.ID())
	}
	if got := c.State(); got != StateExpired {
		t.Errorf("State() = %v, want expired", got)
	}

	tests := []struct {
		name   string
		gt     oauth.GrantType
		mutate func(*storage.PersistedState)
		opts   []Option
	}{
		{"client mismatch", oauth.GrantDeviceCode, func(s *storage.PersistedState) { s.ClientID = "other" }, nil},
		{"grant mismatch", oauth.GrantAuthorizationCode, func(s *storage.PersistedState) {}, nil},
		{"no refresh token", oauth.GrantDeviceCode, func(s *storage.PersistedState) { s.RefreshToken = "" }, nil},
		{"id mismatch", oauth.GrantDeviceCode, func(s *storage.PersistedState) {}, []Option{WithID("cred-2")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := state.Clone()
			tt.mutate(s)
			opts := append([]Option{WithRestoredState(s)}, tt.opts...)

			_, err := Build(tt.gt, baseConfig(), opts...)
			var cerr *oauth.ConfigurationError
			if !errors.As(err, &cerr) || cerr.Field != "restored_state" {
				t.Errorf("Build() error = %v, want restored_state ConfigurationError", err)
			}
		})
	}
}
