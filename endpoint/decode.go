package endpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	oauth "github.com/giantswarm/oauth-credentials"
)

var errEmptyBody = errors.New("empty response body")

// wireResponse is the union of the token response and error payload shapes
type wireResponse struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    json.RawMessage `json:"expires_in"`
	RefreshToken string          `json:"refresh_token"`
	Scope        string          `json:"scope"`
	IDToken      string          `json:"id_token"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorURI         string `json:"error_uri"`
}

// lifetime is a decoded expires_in. announced is false when the field was
// absent, null or empty, which is distinct from an explicit 0.
type lifetime struct {
	seconds   int64
	announced bool
}

// decodeBody parses a JSON body, or a form-encoded one as some providers
// (GitHub without an Accept header) still send.
func decodeBody(body []byte) (*wireResponse, lifetime, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, lifetime{}, errEmptyBody
	}

	if trimmed[0] == '{' {
		var w wireResponse
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, lifetime{}, fmt.Errorf("invalid JSON: %w", err)
		}
		lt, err := parseExpiresIn(w.ExpiresIn)
		if err != nil {
			return nil, lifetime{}, err
		}
		return &w, lt, nil
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, lifetime{}, fmt.Errorf("invalid form body: %w", err)
	}
	w := &wireResponse{
		AccessToken:      values.Get("access_token"),
		TokenType:        values.Get("token_type"),
		RefreshToken:     values.Get("refresh_token"),
		Scope:            values.Get("scope"),
		IDToken:          values.Get("id_token"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
		ErrorURI:         values.Get("error_uri"),
	}
	var lt lifetime
	if v := values.Get("expires_in"); v != "" {
		lt.seconds, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, lifetime{}, fmt.Errorf("invalid expires_in %q", v)
		}
		lt.announced = true
	}
	return w, lt, nil
}

// parseExpiresIn accepts a JSON number or a quoted number (older Entra ID
// endpoints quote it).
func parseExpiresIn(raw json.RawMessage) (lifetime, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return lifetime{}, nil
	}

	s := string(raw)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return lifetime{}, fmt.Errorf("invalid expires_in: %w", err)
		}
	}
	if s == "" {
		return lifetime{}, nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return lifetime{seconds: n, announced: true}, nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil {
		return lifetime{}, fmt.Errorf("invalid expires_in %q", s)
	}
	return lifetime{seconds: int64(f), announced: true}, nil
}

func (w *wireResponse) tokenResponse(lt lifetime) *oauth.TokenResponse {
	return &oauth.TokenResponse{
		AccessToken:  w.AccessToken,
		TokenType:    w.TokenType,
		ExpiresIn:    lt.seconds,
		ExpiryKnown:  lt.announced,
		RefreshToken: w.RefreshToken,
		Scope:        w.Scope,
		IDToken:      w.IDToken,
	}
}

func (w *wireResponse) rejected(status int) *oauth.ProtocolError {
	perr := oauth.NewRejectedError(w.Error, w.ErrorDescription, status)
	perr.URI = w.ErrorURI
	return perr
}
