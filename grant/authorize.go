package grant

import (
	"slices"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/security"
)

// ScopeOpenID is added to OpenID Connect authorization requests
const ScopeOpenID = "openid"

// AuthorizationOptions describes one authorization request
type AuthorizationOptions struct {
	ClientID    string
	Endpoint    oauth2.Endpoint
	RedirectURI string
	Scopes      []string

	// UsePKCE generates a fresh S256 code verifier
	UsePKCE bool

	// OfflineAccess asks the provider for a refresh token
	OfflineAccess bool

	// OpenID makes this an OpenID Connect authentication request
	OpenID      bool
	Nonce       string // generated when empty
	IDTokenHint string
}

// AuthorizationRequest is a built authorization URL plus the values that must
// be kept until the code comes back.
type AuthorizationRequest struct {
	URL      string
	State    string
	Nonce    string           // empty unless OpenID
	Verifier *security.Secret // nil unless PKCE
}

// NewAuthorizationRequest builds the URL the user has to visit. A random state
// is generated for every request.
func NewAuthorizationRequest(opts AuthorizationOptions) (*AuthorizationRequest, error) {
	if opts.Endpoint.AuthURL == "" {
		return nil, oauth.MissingField("auth_url")
	}
	if opts.ClientID == "" {
		return nil, oauth.MissingField("client_id")
	}

	scopes := slices.Clone(opts.Scopes)
	if opts.OpenID && !slices.Contains(scopes, ScopeOpenID) {
		scopes = append([]string{ScopeOpenID}, scopes...)
	}

	cfg := &oauth2.Config{
		ClientID:    opts.ClientID,
		Endpoint:    opts.Endpoint,
		RedirectURL: opts.RedirectURI,
		Scopes:      scopes,
	}

	req := &AuthorizationRequest{State: uuid.NewString()}

	var params []oauth2.AuthCodeOption
	if opts.UsePKCE {
		verifier := oauth2.GenerateVerifier()
		req.Verifier = security.NewSecret(verifier)
		params = append(params, oauth2.S256ChallengeOption(verifier))
	}
	if opts.OfflineAccess {
		params = append(params, oauth2.AccessTypeOffline)
	}
	if opts.OpenID {
		req.Nonce = opts.Nonce
		if req.Nonce == "" {
			req.Nonce = uuid.NewString()
		}
		params = append(params, oauth2.SetAuthURLParam("nonce", req.Nonce))
		if opts.IDTokenHint != "" {
			params = append(params, oauth2.SetAuthURLParam("id_token_hint", opts.IDTokenHint))
		}
	}

	req.URL = cfg.AuthCodeURL(req.State, params...)
	return req, nil
}
