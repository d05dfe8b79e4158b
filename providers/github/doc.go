// Package github resolves GitHub OAuth App endpoints.
//
// GitHub differs from OIDC providers in several ways:
//   - No OIDC discovery: endpoints are fixed per host
//   - Non-expiring tokens: OAuth Apps issue tokens without expires_in, which
//     credentials treat as valid until revoked
//   - Refresh tokens only when token expiration is enabled for the app
//   - No RFC 7009 revocation endpoint
//   - Errors are reported with a 200 status, which the token endpoint client
//     handles
//
// GitHub Enterprise Server instances are supported through EnterpriseURL.
//
// # Example Usage
//
//	resolver, err := github.NewProvider(github.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Scopes = github.Scopes(cfg.Scopes)
//	if err := providers.Apply(ctx, resolver, &cfg); err != nil {
//	    log.Fatal(err)
//	}
package github
