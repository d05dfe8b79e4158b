package tokencli

import (
	"fmt"
	"log/slog"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/providers"
	"github.com/giantswarm/oauth-credentials/providers/dex"
	"github.com/giantswarm/oauth-credentials/providers/github"
	"github.com/giantswarm/oauth-credentials/providers/google"
	"github.com/giantswarm/oauth-credentials/providers/microsoft"
	"github.com/giantswarm/oauth-credentials/providers/oidc"
)

// newResolver selects the endpoint resolver named by cfg.Provider. It returns
// the scopes to request when oc has none. The static provider returns a nil
// resolver: oc.Endpoints is used as configured.
func newResolver(cfg Config, oc *oauth.Config, logger *slog.Logger, inst *instrumentation.Instrumentation) (providers.Resolver, []string, error) {
	switch cfg.Provider {
	case "", "static":
		return nil, nil, nil

	case "microsoft":
		p, err := microsoft.New(microsoft.Config{Tenant: oc.Tenant})
		return p, nil, err

	case "google":
		return google.NewProvider(), google.Scopes(nil), nil

	case "github":
		p, err := github.NewProvider(github.Config{EnterpriseURL: cfg.EnterpriseURL})
		return p, github.Scopes(nil), err

	case "dex":
		p, err := dex.NewProvider(&dex.Config{
			IssuerURL:           cfg.IssuerURL,
			ConnectorID:         cfg.ConnectorID,
			HTTPClient:          oc.HTTPClient,
			AllowPrivateNetwork: cfg.AllowPrivateIssuer,
			Logger:              logger,
			Instrumentation:     inst,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p.DefaultScopes(), nil

	case "oidc":
		p, err := oidc.NewProvider(oidc.Config{
			IssuerURL:           cfg.IssuerURL,
			HTTPClient:          oc.HTTPClient,
			Logger:              logger,
			Instrumentation:     inst,
			AllowPrivateNetwork: cfg.AllowPrivateIssuer,
		})
		return p, []string{"openid"}, err
	}

	return nil, nil, oauth.NewConfigurationError("provider", fmt.Sprintf("unknown provider %q", cfg.Provider))
}
