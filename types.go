package oauth

import (
	"fmt"
	"strings"
)

// GrantType identifies an OAuth 2.0 grant (the value of the grant_type form field
// for most variants).
type GrantType string

// Supported grant types
const (
	GrantAuthorizationCode     GrantType = "authorization_code"
	GrantClientCredentials     GrantType = "client_credentials"
	GrantResourceOwnerPassword GrantType = "password"
	GrantDeviceCode            GrantType = "urn:ietf:params:oauth:grant-type:device_code"
	GrantRefreshToken          GrantType = "refresh_token"

	// GrantOpenIDConnect is the authorization code grant with an openid scope,
	// nonce binding and a mandatory id_token in the response. It is sent on the
	// wire as authorization_code.
	GrantOpenIDConnect GrantType = "openid_connect"
)

// grantTypeAliases maps short names accepted in configuration to grant types
var grantTypeAliases = map[string]GrantType{
	"authorization_code": GrantAuthorizationCode,
	"code":               GrantAuthorizationCode,
	"client_credentials": GrantClientCredentials,
	"password":           GrantResourceOwnerPassword,
	"device_code":        GrantDeviceCode,
	"refresh_token":      GrantRefreshToken,
	"openid_connect":     GrantOpenIDConnect,
	"oidc":               GrantOpenIDConnect,
}

// ParseGrantType converts a configuration string into a GrantType
func ParseGrantType(s string) (GrantType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == string(GrantDeviceCode) {
		return GrantDeviceCode, nil
	}
	if gt, ok := grantTypeAliases[name]; ok {
		return gt, nil
	}
	return "", NewConfigurationError("grant_type", fmt.Sprintf("unsupported grant type %q", s))
}

// WireValue returns the grant_type value sent to the token endpoint
func (g GrantType) WireValue() string {
	if g == GrantOpenIDConnect {
		return string(GrantAuthorizationCode)
	}
	return string(g)
}

// Interactive reports whether the grant needs a user to act before the first
// token can be issued.
func (g GrantType) Interactive() bool {
	switch g {
	case GrantAuthorizationCode, GrantOpenIDConnect, GrantDeviceCode:
		return true
	}
	return false
}

// String returns the grant type name
func (g GrantType) String() string {
	return string(g)
}

// TokenResponse represents an OAuth 2.0 token response (RFC 6749 section 5.1)
type TokenResponse struct {
	// AccessToken is always present on success; absence is a protocol error
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// ExpiryKnown reports whether the provider announced expires_in. An
	// announced 0 means the token is already expired; an omitted lifetime
	// means the token does not expire locally.
	ExpiryKnown bool `json:"-"`

	// RefreshToken is present for offline access and on rotation
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the granted scope when it differs from the requested one
	Scope string `json:"scope,omitempty"`

	// IDToken is the OpenID Connect ID token
	IDToken string `json:"id_token,omitempty"`
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`

	// ErrorURI points to error documentation
	ErrorURI string `json:"error_uri,omitempty"`
}

// ClientIdentity identifies the OAuth client towards the provider.
// It is immutable after construction; the client secret lives in the
// credential's secret store, not here.
type ClientIdentity struct {
	// ClientID is the public client identifier
	ClientID string

	// Tenant is the issuer or authority (e.g. an Entra ID tenant, an issuer URL)
	Tenant string

	// Confidential is true when a client secret is held for this client
	Confidential bool
}
