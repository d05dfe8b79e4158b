// Dex (https://dexidp.io/) is an identity service that uses OpenID Connect to drive
// authentication for other apps. It acts as a portal to other identity providers through
// "connectors" like LDAP, SAML, GitHub, GitLab, Google, etc.
//
// # Features
//
//   - connector_id Support: Bypass Dex's connector selection UI by specifying a connector
//   - Groups Claim: The default scopes include 'groups' for group memberships
//   - OIDC Discovery: Endpoints are fetched lazily and cached, with SSRF protection
//
// # Security Features
//
//   - SSRF Protection: Issuer URLs on private IPs and localhost are rejected
//     unless AllowPrivateNetwork is set for an in-cluster Dex
//   - HTTPS Enforcement: The issuer and all discovered endpoints must use HTTPS
//   - Input Validation: connector_id and scopes are validated
//
// # Example Usage
//
//	dexProvider, err := dex.NewProvider(&dex.Config{
//	    IssuerURL:   "https://dex.example.com",
//	    ConnectorID: "github", // Optional: skip connector selection
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg.Scopes = dexProvider.DefaultScopes()
//	if err := providers.Apply(ctx, dexProvider, &cfg); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Dex rotates refresh tokens on every refresh
//	cred, err := credential.Build(oauth.GrantAuthorizationCode, cfg,
//	    credential.WithRefreshTokenRotation())
//
// # Refresh Token Rotation
//
// Dex implements strict refresh token rotation: each refresh returns a NEW
// refresh token and invalidates the old one. Build credentials for Dex with
// credential.WithRefreshTokenRotation so a refresh response without a new
// refresh token is treated as an error.
//
// Reference: https://dexidp.io/docs/configuration/custom-scopes-claims-clients/
//
// # Default Scopes
//
//   - openid: Required for OIDC authentication
//   - profile: User profile information (name, picture, etc.)
//   - email: User email address
//   - groups: User group memberships (Dex-specific)
//   - offline_access: Refresh token support
//
// You can override these by providing custom Scopes in the Config.
package dex
