package github

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/internal/util"
	"github.com/giantswarm/oauth-credentials/providers/oidc"
)

// providerName is the name returned by Provider.Name().
const providerName = "github"

// DefaultScopes are requested when a GitHub credential is configured without
// scopes
var DefaultScopes = []string{"read:user", "user:email"}

// Config holds GitHub endpoint configuration.
type Config struct {
	// EnterpriseURL is the base URL of a GitHub Enterprise Server instance
	// (e.g., https://github.example.com). Empty selects github.com.
	EnterpriseURL string
}

// Provider resolves GitHub OAuth App endpoints. GitHub has no RFC 7009
// revocation endpoint; revoking a GitHub credential only drops it locally.
type Provider struct {
	endpoints oauth.Endpoints
}

// NewProvider validates cfg and builds the resolver.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.EnterpriseURL == "" {
		return &Provider{endpoints: Endpoints()}, nil
	}

	e, err := EnterpriseEndpoints(cfg.EnterpriseURL)
	if err != nil {
		return nil, err
	}
	return &Provider{endpoints: e}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// Endpoints returns the resolved endpoints
func (p *Provider) Endpoints(_ context.Context) (oauth.Endpoints, error) {
	return p.endpoints, nil
}

// Endpoints returns the github.com endpoints
func Endpoints() oauth.Endpoints {
	e := oauth.FromOAuth2Endpoint(oauthgithub.Endpoint)
	e.AuthStyle = oauth2.AuthStyleInParams
	return e
}

// EnterpriseEndpoints returns the endpoints of a GitHub Enterprise Server
// instance. The base URL must be public https.
func EnterpriseEndpoints(baseURL string) (oauth.Endpoints, error) {
	if err := oidc.ValidateIssuerURL(baseURL); err != nil {
		return oauth.Endpoints{}, oauth.NewConfigurationError("enterprise_url", err.Error())
	}
	u, err := url.Parse(util.NormalizeURL(baseURL))
	if err != nil {
		return oauth.Endpoints{}, oauth.NewConfigurationError("enterprise_url", err.Error())
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return oauth.Endpoints{}, oauth.NewConfigurationError("enterprise_url", "must not carry a query or fragment")
	}

	base := fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)
	return oauth.Endpoints{
		AuthURL:       base + "/login/oauth/authorize",
		TokenURL:      base + "/login/oauth/access_token",
		DeviceAuthURL: base + "/login/device/code",
		AuthStyle:     oauth2.AuthStyleInParams,
	}, nil
}

// Scopes returns scopes, or DefaultScopes when none are given
func Scopes(scopes []string) []string {
	if len(scopes) == 0 {
		return slices.Clone(DefaultScopes)
	}
	return scopes
}
