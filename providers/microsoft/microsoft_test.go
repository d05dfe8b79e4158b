package microsoft

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/oauth2"

	oauth "github.com/giantswarm/oauth-credentials"
)

func TestEndpoints(t *testing.T) {
	e, err := Endpoints("organizations")
	if err != nil {
		t.Fatalf("Endpoints() error = %v", err)
	}

	want := "https://login.microsoftonline.com/organizations/oauth2/v2.0/token"
	if e.TokenURL != want {
		t.Errorf("TokenURL = %q, want %q", e.TokenURL, want)
	}
	if e.DeviceAuthURL != "https://login.microsoftonline.com/organizations/oauth2/v2.0/devicecode" {
		t.Errorf("DeviceAuthURL = %q", e.DeviceAuthURL)
	}
	if e.AuthURL != "https://login.microsoftonline.com/organizations/oauth2/v2.0/authorize" {
		t.Errorf("AuthURL = %q", e.AuthURL)
	}
	if e.RevocationURL != "" {
		t.Errorf("RevocationURL = %q, want empty", e.RevocationURL)
	}
	if e.AuthStyle != oauth2.AuthStyleInParams {
		t.Errorf("AuthStyle = %v, want AuthStyleInParams", e.AuthStyle)
	}
}

func TestEndpoints_InvalidTenant(t *testing.T) {
	tests := []string{"", "   ", "a/b", "evil.com?x=", "..", "a#b"}

	for _, tenant := range tests {
		t.Run(tenant, func(t *testing.T) {
			_, err := Endpoints(tenant)
			var cerr *oauth.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("Endpoints(%q) error = %v, want ConfigurationError", tenant, err)
			}
			if cerr.Field != "tenant" {
				t.Errorf("Field = %q, want tenant", cerr.Field)
			}
		})
	}
}

func TestEndpointsForAuthority(t *testing.T) {
	e, err := EndpointsForAuthority("https://login.microsoftonline.us/", "contoso")
	if err != nil {
		t.Fatalf("EndpointsForAuthority() error = %v", err)
	}
	if e.TokenURL != "https://login.microsoftonline.us/contoso/oauth2/v2.0/token" {
		t.Errorf("TokenURL = %q", e.TokenURL)
	}

	for _, authority := range []string{"http://login.example.com", "https://login.example.com/path", "://bad"} {
		if _, err := EndpointsForAuthority(authority, "contoso"); err == nil {
			t.Errorf("EndpointsForAuthority(%q) expected error", authority)
		}
	}
}

func TestProvider(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != "microsoft" {
		t.Errorf("Name() = %q", p.Name())
	}

	e, err := p.Endpoints(context.Background())
	if err != nil {
		t.Fatalf("Endpoints() error = %v", err)
	}
	if e.TokenURL != "https://login.microsoftonline.com/common/oauth2/v2.0/token" {
		t.Errorf("TokenURL = %q", e.TokenURL)
	}
}
