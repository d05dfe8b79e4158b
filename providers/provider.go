package providers

import (
	"context"
	"fmt"

	oauth "github.com/giantswarm/oauth-credentials"
)

// Resolver yields the endpoints of an identity provider. Static presets
// resolve without I/O; discovery-based resolvers fetch provider metadata and
// honor ctx.
type Resolver interface {
	// Name returns the provider name (e.g., "google", "microsoft", "dex")
	Name() string

	// Endpoints returns the provider's endpoints
	Endpoints(ctx context.Context) (oauth.Endpoints, error)
}

// Static is a Resolver for endpoints known up front
type Static struct {
	name      string
	endpoints oauth.Endpoints
}

// NewStatic creates a resolver that always returns e
func NewStatic(name string, e oauth.Endpoints) *Static {
	return &Static{name: name, endpoints: e}
}

// Name returns the provider name
func (s *Static) Name() string {
	return s.name
}

// Endpoints returns the configured endpoints
func (s *Static) Endpoints(_ context.Context) (oauth.Endpoints, error) {
	return s.endpoints, nil
}

// Apply resolves r and stores the result in cfg.Endpoints. A revocation URL
// already present in cfg is kept when the provider does not announce one.
func Apply(ctx context.Context, r Resolver, cfg *oauth.Config) error {
	e, err := r.Endpoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve %s endpoints: %w", r.Name(), err)
	}
	if e.RevocationURL == "" {
		e.RevocationURL = cfg.Endpoints.RevocationURL
	}
	cfg.Endpoints = e
	return nil
}
