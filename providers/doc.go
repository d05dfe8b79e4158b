// Package providers resolves identity provider endpoints for credentials.
//
// A Resolver returns the authorization, token, device authorization and
// revocation endpoints of a provider together with the client authentication
// style its token endpoint expects. Resolution happens before a credential is
// built: credential.Build never performs network I/O.
//
// Implementations are provided in subpackages:
//   - providers/microsoft: Microsoft identity platform by tenant
//   - providers/google: Google OAuth 2.0
//   - providers/github: GitHub and GitHub Enterprise Server
//   - providers/oidc: generic OpenID Connect discovery with SSRF protection
//   - providers/dex: Dex discovery with connector_id support
//
// Example usage:
//
//	grantType, cfg, _ := oauth.LoadConfigFromEnv("OAUTH_")
//	resolver, err := oidc.NewProvider(oidc.Config{IssuerURL: "https://login.example.com"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := providers.Apply(ctx, resolver, &cfg); err != nil {
//	    log.Fatal(err)
//	}
//	cred, err := credential.Build(grantType, cfg)
package providers
