package security

// Event type constants for credential audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when an initial grant exchange yields a token
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is refreshed using a refresh token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked at the provider
	EventTokenRevoked = "token_revoked"

	// EventRefreshTokenInvalidated is logged when the provider answers invalid_grant
	// to a refresh attempt and the cached refresh token is dropped
	EventRefreshTokenInvalidated = "refresh_token_invalidated" //nolint:gosec // G101: False positive - this is an event type name, not a credential

	// EventReauthorizationRequired is logged when a credential loses its last usable token
	EventReauthorizationRequired = "reauthorization_required"

	// EventCredentialDestroyed is logged when a credential's secrets are cleared
	EventCredentialDestroyed = "credential_destroyed"

	// EventCredentialRestored is logged when persisted state is loaded into a credential
	EventCredentialRestored = "credential_restored"

	// Authorization flow events

	// EventAuthorizationFlowStarted is logged when an authorization URL is issued
	EventAuthorizationFlowStarted = "authorization_flow_started"

	// EventDeviceAuthorizationStarted is logged when a device code is obtained
	EventDeviceAuthorizationStarted = "device_authorization_started"

	// EventDeviceAuthorizationDenied is logged when the user denies a device authorization
	EventDeviceAuthorizationDenied = "device_authorization_denied"

	// Security violation events

	// EventStateMismatch is logged when the callback state does not match the issued state
	EventStateMismatch = "state_mismatch"

	// EventNonceMismatch is logged when an ID token's nonce does not match the request
	EventNonceMismatch = "nonce_mismatch"

	// EventExchangeFailed is logged when a token exchange is rejected by the provider
	EventExchangeFailed = "exchange_failed"
)
