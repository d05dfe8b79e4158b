// Package grant implements the OAuth 2.0 grant strategies: one parameter
// variant per grant type, each knowing how to build its token request form
// and which token response fields it requires.
//
// Variants are constructed through their New* functions, which reject missing
// fields up front. A Params value that exists is always complete.
package grant

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/security"
)

// Params is the sealed set of grant parameter variants. It is the single
// polymorphic strategy through which token requests are built.
type Params interface {
	// GrantType returns the grant this variant belongs to
	GrantType() oauth.GrantType

	// Form returns the variant-specific request fields including grant_type.
	// Client authentication is added by BuildRequest.
	Form() url.Values

	// Requirements declares which optional response fields this variant needs
	Requirements() Requirements

	sealed()
}

// Request is a fully built form POST to the provider
type Request struct {
	// GrantType is empty for device authorization and revocation requests
	GrantType    oauth.GrantType
	Form         url.Values
	Header       http.Header
	Requirements Requirements
}

// BuildRequest assembles the token request for p, authenticating the client
// according to style. Public clients (empty secret) always send client_id in
// the body.
func BuildRequest(identity oauth.ClientIdentity, clientSecret *security.Secret, style oauth2.AuthStyle, p Params) *Request {
	req := newRequest(identity, clientSecret, style, p.Form())
	req.GrantType = p.GrantType()
	req.Requirements = p.Requirements()
	return req
}

// DeviceAuthorizationRequest builds the device authorization request
// (RFC 8628 section 3.1).
func DeviceAuthorizationRequest(identity oauth.ClientIdentity, clientSecret *security.Secret, style oauth2.AuthStyle, scopes []string) *Request {
	form := url.Values{}
	if scope := scopeString(scopes); scope != "" {
		form.Set("scope", scope)
	}
	return newRequest(identity, clientSecret, style, form)
}

// Token type hints for revocation (RFC 7009 section 2.1)
const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// RevocationRequest builds a token revocation request (RFC 7009 section 2.1)
func RevocationRequest(identity oauth.ClientIdentity, clientSecret *security.Secret, style oauth2.AuthStyle, token *security.Secret, hint string) *Request {
	form := url.Values{"token": {token.Reveal()}}
	if hint != "" {
		form.Set("token_type_hint", hint)
	}
	return newRequest(identity, clientSecret, style, form)
}

func newRequest(identity oauth.ClientIdentity, clientSecret *security.Secret, style oauth2.AuthStyle, form url.Values) *Request {
	header := make(http.Header)
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "application/json")

	switch {
	case clientSecret.IsEmpty():
		form.Set("client_id", identity.ClientID)
	case style == oauth2.AuthStyleInParams:
		form.Set("client_id", identity.ClientID)
		form.Set("client_secret", clientSecret.Reveal())
	default:
		header.Set("Authorization", basicAuth(identity.ClientID, clientSecret.Reveal()))
	}

	return &Request{Form: form, Header: header}
}

// basicAuth encodes client credentials per RFC 6749 section 2.3.1
// (form-urlencoded before base64).
func basicAuth(clientID, secret string) string {
	raw := url.QueryEscape(clientID) + ":" + url.QueryEscape(secret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// scopeString joins and normalizes scopes
func scopeString(scopes []string) string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		for _, part := range strings.Fields(s) {
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return strings.Join(out, " ")
}

// requireField returns a ConfigurationError when value is blank
func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return oauth.MissingField(field)
	}
	return nil
}
