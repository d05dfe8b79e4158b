// Package oidc resolves endpoints through OpenID Connect discovery.
//
// A Provider fetches /.well-known/openid-configuration from the issuer and
// maps the authorization, token, device authorization and revocation
// endpoints into credential endpoints. The client authentication style is
// derived from token_endpoint_auth_methods_supported.
//
// # Security
//
//   - SSRF Protection: issuer URLs must be https and must not name loopback,
//     private, link-local or unspecified IP addresses
//   - HTTPS Enforcement: every discovered endpoint must use HTTPS
//   - Issuer Match: the document's issuer must equal the configured issuer
//   - Discovery Caching: documents are cached with a TTL and concurrent
//     lookups share one request
//
// Example:
//
//	resolver, err := oidc.NewProvider(oidc.Config{IssuerURL: "https://login.example.com"})
//	if err != nil {
//	    return err
//	}
//	endpoints, err := resolver.Endpoints(ctx)
package oidc
