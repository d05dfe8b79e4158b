// Package credential implements the OAuth 2.0 credential lifecycle: building
// a credential for one grant type, driving its initial grant-specific
// exchange, and handing out valid access tokens that are refreshed
// transparently.
//
// # Building
//
// Build validates the configuration for the selected grant type without any
// network I/O and returns an Unauthorized credential:
//
//	cred, err := credential.Build(oauth.GrantDeviceCode, oauth.Config{
//	    ClientID: "my-client",
//	    Tenant:   "organizations",
//	    Scopes:   []string{"offline_access", "User.Read"},
//	})
//
// When Config.Endpoints.TokenURL is empty the Microsoft identity platform
// endpoints of Config.Tenant are used.
//
// # Lifecycle
//
//	Unauthorized -> PendingExchange -> Authorized -> Expired -> (refresh) -> Authorized
//	                       |                             |
//	                       +-> Failed                    +-> Unauthorized (invalid_grant)
//
// Acquire returns the cached access token while it is valid beyond the skew
// margin, refreshes it when a refresh token is held, and otherwise fails with
// an error wrapping oauth.ErrReauthorizationRequired. Concurrent Acquire calls
// share a single refresh exchange.
//
// Interactive grants start with AuthorizationURL (authorization code, OpenID
// Connect) or StartDeviceAuthorization (device code) and complete with
// ExchangeInitial, ExchangeInitialWithState, PollDevice or
// AwaitDeviceAuthorization. Every blocking operation takes a context; none of
// them sleeps beyond the provider's poll interval.
//
// # Persistence
//
// With WithStore, the refresh token is saved after every exchange that yields
// one and deleted when the provider rejects it or it is revoked. Access tokens
// are never persisted. Restore (or WithRestoredState) seeds a new process
// with the saved refresh token; the next Acquire refreshes.
//
// # Ownership
//
// A Credential owns its secrets and zeroes them on Close. Registry is an
// optional explicit map of credentials for applications managing several.
package credential
