// Package google resolves Google OAuth 2.0 endpoints.
//
// Google supports the authorization code flow with PKCE, the device
// authorization grant for limited-input devices, refresh tokens (requested
// with access_type=offline, which credentials send when offline access is
// enabled) and RFC 7009 revocation.
//
// Example usage:
//
//	cfg.Scopes = google.Scopes(cfg.Scopes)
//	if err := providers.Apply(ctx, google.NewProvider(), &cfg); err != nil {
//	    log.Fatal(err)
//	}
package google
