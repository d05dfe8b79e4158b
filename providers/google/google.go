package google

import (
	"context"
	"slices"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	oauth "github.com/giantswarm/oauth-credentials"
)

// RevocationURL is Google's RFC 7009 revocation endpoint
const RevocationURL = "https://oauth2.googleapis.com/revoke"

// DefaultScopes are requested when a Google credential is configured without
// scopes
var DefaultScopes = []string{"openid", "email", "profile"}

// Provider resolves Google's OAuth 2.0 endpoints
type Provider struct{}

// NewProvider creates a Google resolver
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "google"
}

// Endpoints returns Google's endpoints
func (p *Provider) Endpoints(_ context.Context) (oauth.Endpoints, error) {
	return Endpoints(), nil
}

// Endpoints returns Google's authorization, token, device authorization and
// revocation endpoints. Google expects client credentials in the form body.
func Endpoints() oauth.Endpoints {
	e := oauth.FromOAuth2Endpoint(google.Endpoint)
	e.RevocationURL = RevocationURL
	e.AuthStyle = oauth2.AuthStyleInParams
	return e
}

// Scopes returns scopes, or DefaultScopes when none are given
func Scopes(scopes []string) []string {
	if len(scopes) == 0 {
		return slices.Clone(DefaultScopes)
	}
	return scopes
}
