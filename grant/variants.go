package grant

import (
	"net/url"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/security"
)

// AuthorizationCode exchanges an authorization code (RFC 6749 section 4.1.3)
type AuthorizationCode struct {
	code          string
	redirectURI   string
	codeVerifier  *security.Secret
	offlineAccess bool
}

// NewAuthorizationCode builds the authorization code variant. verifier is the
// PKCE code verifier, owned by the caller, and may be nil when PKCE was not
// used. offlineAccess makes
// a refresh_token mandatory in the response.
func NewAuthorizationCode(code, redirectURI string, verifier *security.Secret, offlineAccess bool) (*AuthorizationCode, error) {
	if err := requireField("code", code); err != nil {
		return nil, err
	}
	if err := requireField("redirect_uri", redirectURI); err != nil {
		return nil, err
	}
	return &AuthorizationCode{
		code:          code,
		redirectURI:   redirectURI,
		codeVerifier:  verifier,
		offlineAccess: offlineAccess,
	}, nil
}

func (p *AuthorizationCode) GrantType() oauth.GrantType { return oauth.GrantAuthorizationCode }

func (p *AuthorizationCode) Form() url.Values {
	form := url.Values{
		"grant_type":   {oauth.GrantAuthorizationCode.WireValue()},
		"code":         {p.code},
		"redirect_uri": {p.redirectURI},
	}
	if !p.codeVerifier.IsEmpty() {
		form.Set("code_verifier", p.codeVerifier.Reveal())
	}
	return form
}

func (p *AuthorizationCode) Requirements() Requirements {
	return Requirements{RefreshToken: p.offlineAccess}
}

func (*AuthorizationCode) sealed() {}

// ClientCredentials obtains a token for the client itself (RFC 6749 section 4.4)
type ClientCredentials struct {
	scope string
}

// NewClientCredentials builds the client credentials variant. Scope is optional.
func NewClientCredentials(scopes []string) *ClientCredentials {
	return &ClientCredentials{scope: scopeString(scopes)}
}

func (p *ClientCredentials) GrantType() oauth.GrantType { return oauth.GrantClientCredentials }

func (p *ClientCredentials) Form() url.Values {
	form := url.Values{"grant_type": {oauth.GrantClientCredentials.WireValue()}}
	if p.scope != "" {
		form.Set("scope", p.scope)
	}
	return form
}

func (p *ClientCredentials) Requirements() Requirements { return Requirements{} }

func (*ClientCredentials) sealed() {}

// ResourceOwnerPassword exchanges resource owner credentials (RFC 6749 section 4.3)
type ResourceOwnerPassword struct {
	username string
	password *security.Secret
	scope    string
}

// NewResourceOwnerPassword builds the password variant. The password is
// referenced, not copied; the caller owns it and zeroes it once the exchange
// is done.
func NewResourceOwnerPassword(username string, password *security.Secret, scopes []string) (*ResourceOwnerPassword, error) {
	if err := requireField("username", username); err != nil {
		return nil, err
	}
	if password.IsEmpty() {
		return nil, oauth.MissingField("password")
	}
	return &ResourceOwnerPassword{
		username: username,
		password: password,
		scope:    scopeString(scopes),
	}, nil
}

func (p *ResourceOwnerPassword) GrantType() oauth.GrantType {
	return oauth.GrantResourceOwnerPassword
}

func (p *ResourceOwnerPassword) Form() url.Values {
	form := url.Values{
		"grant_type": {oauth.GrantResourceOwnerPassword.WireValue()},
		"username":   {p.username},
		"password":   {p.password.Reveal()},
	}
	if p.scope != "" {
		form.Set("scope", p.scope)
	}
	return form
}

func (p *ResourceOwnerPassword) Requirements() Requirements { return Requirements{} }

func (*ResourceOwnerPassword) sealed() {}

// DeviceCode polls the token endpoint for a device authorization (RFC 8628 section 3.4)
type DeviceCode struct {
	deviceCode *security.Secret
}

// NewDeviceCode builds the device code variant
func NewDeviceCode(deviceCode *security.Secret) (*DeviceCode, error) {
	if deviceCode.IsEmpty() {
		return nil, oauth.MissingField("device_code")
	}
	return &DeviceCode{deviceCode: deviceCode}, nil
}

func (p *DeviceCode) GrantType() oauth.GrantType { return oauth.GrantDeviceCode }

func (p *DeviceCode) Form() url.Values {
	return url.Values{
		"grant_type":  {oauth.GrantDeviceCode.WireValue()},
		"device_code": {p.deviceCode.Reveal()},
	}
}

func (p *DeviceCode) Requirements() Requirements { return Requirements{} }

func (*DeviceCode) sealed() {}

// RefreshToken renews an access token (RFC 6749 section 6)
type RefreshToken struct {
	refreshToken *security.Secret
	scope        string
	rotation     bool
}

// NewRefreshToken builds the refresh variant. When rotation is true the
// provider is known to rotate refresh tokens and the response must carry a new
// one.
func NewRefreshToken(refreshToken *security.Secret, scopes []string, rotation bool) (*RefreshToken, error) {
	if refreshToken.IsEmpty() {
		return nil, oauth.MissingField("refresh_token")
	}
	return &RefreshToken{
		refreshToken: refreshToken,
		scope:        scopeString(scopes),
		rotation:     rotation,
	}, nil
}

func (p *RefreshToken) GrantType() oauth.GrantType { return oauth.GrantRefreshToken }

func (p *RefreshToken) Form() url.Values {
	form := url.Values{
		"grant_type":    {oauth.GrantRefreshToken.WireValue()},
		"refresh_token": {p.refreshToken.Reveal()},
	}
	if p.scope != "" {
		form.Set("scope", p.scope)
	}
	return form
}

func (p *RefreshToken) Requirements() Requirements {
	return Requirements{RefreshToken: p.rotation}
}

func (*RefreshToken) sealed() {}

// OpenIDConnect is the authorization code exchange of an OpenID Connect
// authentication request. The response must carry an id_token whose nonce
// matches the one sent in the authorization request.
type OpenIDConnect struct {
	code         string
	redirectURI  string
	codeVerifier *security.Secret
	nonce        string
}

// NewOpenIDConnect builds the OpenID Connect variant. verifier may be nil when
// PKCE was not used.
func NewOpenIDConnect(code, redirectURI, nonce string, verifier *security.Secret) (*OpenIDConnect, error) {
	if err := requireField("code", code); err != nil {
		return nil, err
	}
	if err := requireField("redirect_uri", redirectURI); err != nil {
		return nil, err
	}
	if err := requireField("nonce", nonce); err != nil {
		return nil, err
	}
	return &OpenIDConnect{
		code:         code,
		redirectURI:  redirectURI,
		codeVerifier: verifier,
		nonce:        nonce,
	}, nil
}

func (p *OpenIDConnect) GrantType() oauth.GrantType { return oauth.GrantOpenIDConnect }

func (p *OpenIDConnect) Form() url.Values {
	form := url.Values{
		"grant_type":   {oauth.GrantOpenIDConnect.WireValue()},
		"code":         {p.code},
		"redirect_uri": {p.redirectURI},
	}
	if !p.codeVerifier.IsEmpty() {
		form.Set("code_verifier", p.codeVerifier.Reveal())
	}
	return form
}

func (p *OpenIDConnect) Requirements() Requirements {
	return Requirements{IDToken: true, Nonce: p.nonce}
}

func (*OpenIDConnect) sealed() {}
