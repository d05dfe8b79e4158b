package microsoft

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	msendpoint "golang.org/x/oauth2/microsoft"

	oauth "github.com/giantswarm/oauth-credentials"
)

const (
	// DefaultAuthority is the public cloud authority host
	DefaultAuthority = "https://login.microsoftonline.com"

	// DefaultTenant accepts both work and personal accounts
	DefaultTenant = "common"

	providerName = "microsoft"
)

// Config holds the tenant and authority to resolve
type Config struct {
	// Tenant defaults to DefaultTenant
	Tenant string

	// Authority defaults to DefaultAuthority
	Authority string
}

// Provider resolves identity platform endpoints without network I/O
type Provider struct {
	endpoints oauth.Endpoints
}

// New validates cfg and builds the provider
func New(cfg Config) (*Provider, error) {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}
	authority := cfg.Authority
	if authority == "" {
		authority = DefaultAuthority
	}

	endpoints, err := EndpointsForAuthority(authority, tenant)
	if err != nil {
		return nil, err
	}
	return &Provider{endpoints: endpoints}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// Endpoints returns the resolved endpoints
func (p *Provider) Endpoints(_ context.Context) (oauth.Endpoints, error) {
	return p.endpoints, nil
}

// Endpoints returns the public cloud endpoints of tenant
func Endpoints(tenant string) (oauth.Endpoints, error) {
	if err := validateTenant(tenant); err != nil {
		return oauth.Endpoints{}, err
	}
	e := msendpoint.AzureADEndpoint(tenant)
	if e.DeviceAuthURL == "" {
		e.DeviceAuthURL = endpointURL(DefaultAuthority, tenant, "devicecode")
	}
	// The identity platform accepts client_secret in the body for every grant
	e.AuthStyle = oauth2.AuthStyleInParams
	return oauth.FromOAuth2Endpoint(e), nil
}

// EndpointsForAuthority returns the endpoints of tenant on authority, which
// must be an https URL without a path.
func EndpointsForAuthority(authority, tenant string) (oauth.Endpoints, error) {
	authority = strings.TrimRight(authority, "/")
	if authority == DefaultAuthority {
		return Endpoints(tenant)
	}
	if err := validateTenant(tenant); err != nil {
		return oauth.Endpoints{}, err
	}

	u, err := url.Parse(authority)
	if err != nil || u.Scheme != "https" || u.Host == "" || (u.Path != "" && u.Path != "/") {
		return oauth.Endpoints{}, oauth.NewConfigurationError("authority", "must be an https URL without a path")
	}

	return oauth.Endpoints{
		AuthURL:       endpointURL(authority, tenant, "authorize"),
		TokenURL:      endpointURL(authority, tenant, "token"),
		DeviceAuthURL: endpointURL(authority, tenant, "devicecode"),
		AuthStyle:     oauth2.AuthStyleInParams,
	}, nil
}

func endpointURL(authority, tenant, name string) string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/%s", authority, tenant, name)
}

// validateTenant rejects tenants that would change the endpoint path
func validateTenant(tenant string) error {
	if strings.TrimSpace(tenant) == "" {
		return oauth.MissingField("tenant")
	}
	if strings.ContainsAny(tenant, "/?#%@ \t\r\n") || tenant == "." || tenant == ".." {
		return oauth.NewConfigurationError("tenant", "contains characters not allowed in a tenant name")
	}
	return nil
}
