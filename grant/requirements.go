package grant

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	oauth "github.com/giantswarm/oauth-credentials"
)

// ErrNonceMismatch is wrapped by the MalformedResponse error returned when an
// id_token's nonce claim differs from the one sent in the authorization request
var ErrNonceMismatch = errors.New("id_token nonce mismatch")

// Requirements lists the optional token response fields a variant needs
type Requirements struct {
	// RefreshToken requires a refresh_token in the response
	RefreshToken bool

	// IDToken requires an id_token in the response
	IDToken bool

	// Nonce, when set, must equal the id_token's nonce claim
	Nonce string
}

// idTokenClaims are the ID token claims checked on the client side
type idTokenClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// Check validates a successful token response against the requirements.
// Every violation is a MalformedResponse protocol error.
func (r Requirements) Check(resp *oauth.TokenResponse) error {
	if resp == nil || resp.AccessToken == "" {
		return oauth.NewMalformedError(http.StatusOK, "response has no access_token", nil)
	}
	if resp.ExpiresIn < 0 {
		return oauth.NewMalformedError(http.StatusOK, fmt.Sprintf("negative expires_in %d", resp.ExpiresIn), nil)
	}
	if r.RefreshToken && resp.RefreshToken == "" {
		return oauth.NewMalformedError(http.StatusOK, "response has no refresh_token", nil)
	}
	if r.IDToken && resp.IDToken == "" {
		return oauth.NewMalformedError(http.StatusOK, "response has no id_token", nil)
	}
	if r.Nonce != "" {
		return checkNonce(resp.IDToken, r.Nonce)
	}
	return nil
}

// checkNonce decodes the id_token without verifying its signature and compares
// the nonce claim. Signature verification is the relying party's concern; the
// nonce check binds the token to this authorization request.
func checkNonce(idToken, want string) error {
	claims := &idTokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return oauth.NewMalformedError(http.StatusOK, "id_token is not a JWT", err)
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(want)) != 1 {
		return oauth.NewMalformedError(http.StatusOK, "", ErrNonceMismatch)
	}
	return nil
}
