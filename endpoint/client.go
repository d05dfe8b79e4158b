// Package endpoint implements the client side of the provider's token,
// device authorization and revocation endpoints.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/grant"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/internal/util"
)

// Operation names used in errors, logs and metrics
const (
	OpToken               = "token"
	OpDeviceAuthorization = "device_authorization"
	OpRevoke              = "revoke"
)

// maxLoggedDescription bounds provider error descriptions in logs and spans
const maxLoggedDescription = 256

// Config configures a Client
type Config struct {
	// Transport defaults to NewHTTPTransport(nil)
	Transport Transport

	// Timeout bounds one request. Default: oauth.DefaultRequestTimeout
	Timeout time.Duration

	// Logger defaults to slog.Default()
	Logger *slog.Logger

	// Instrumentation defaults to disabled instrumentation
	Instrumentation *instrumentation.Instrumentation
}

// Client exchanges built requests with the provider. It holds no credential
// state and is safe for concurrent use.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *instrumentation.Metrics
}

// New creates a Client
func New(cfg Config) *Client {
	if cfg.Transport == nil {
		cfg.Transport = NewHTTPTransport(nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = oauth.DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Instrumentation == nil {
		cfg.Instrumentation = instrumentation.NewNoop()
	}
	return &Client{
		transport: cfg.Transport,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		tracer:    cfg.Instrumentation.Tracer("endpoint"),
		metrics:   cfg.Instrumentation.Metrics(),
	}
}

// Exchange posts req to tokenURL and returns the validated token response.
//
// Errors: *oauth.TransportError for network failures (one immediate retry is
// made when the failure happened before the request was sent),
// *oauth.ProtocolError with Kind MalformedResponse for unparseable bodies or
// missing required fields, and Kind Rejected for provider error payloads.
func (c *Client) Exchange(ctx context.Context, tokenURL string, req *grant.Request) (*oauth.TokenResponse, error) {
	grantType := req.GrantType.String()
	ctx, span := c.tracer.Start(ctx, "endpoint.exchange")
	defer span.End()
	instrumentation.AddExchangeAttributes(span, grantType, req.Form.Get("client_id"), tokenURL)

	start := time.Now()
	resp, err := c.exchange(ctx, tokenURL, req)
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0

	c.metrics.RecordTokenExchange(ctx, grantType, resultOf(err), durationMs)
	if err != nil {
		var description string
		var perr *oauth.ProtocolError
		if errors.As(err, &perr) {
			description = util.SafeTruncate(perr.Description, maxLoggedDescription)
			instrumentation.AddOAuthErrorAttributes(span, perr.Code, description)
		}
		instrumentation.RecordError(span, err)
		c.logger.Debug("Token exchange failed",
			"grant_type", grantType,
			"error_code", oauth.ErrorCode(err),
			"error_description", description)
		return nil, err
	}

	instrumentation.SetSpanAttributes(span,
		attribute.Int64(instrumentation.AttrExpiresIn, resp.ExpiresIn),
		attribute.String(instrumentation.AttrTokenType, resp.TokenType),
	)
	instrumentation.SetSpanSuccess(span)
	c.logger.Debug("Token exchange succeeded",
		"grant_type", grantType,
		"expires_in", resp.ExpiresIn,
		"has_refresh_token", resp.RefreshToken != "",
		"has_id_token", resp.IDToken != "")
	return resp, nil
}

func (c *Client) exchange(ctx context.Context, tokenURL string, req *grant.Request) (*oauth.TokenResponse, error) {
	status, body, err := c.send(ctx, OpToken, tokenURL, req)
	if err != nil {
		if errors.Is(err, ErrResponseTooLarge) {
			return nil, oauth.NewMalformedError(status, "", err)
		}
		return nil, err
	}

	w, lt, derr := decodeBody(body)

	if status < 200 || status > 299 {
		if derr != nil || w.Error == "" {
			return nil, oauth.NewRejectedError("", http.StatusText(status), status)
		}
		return nil, w.rejected(status)
	}

	if derr != nil {
		return nil, oauth.NewMalformedError(status, "", derr)
	}
	// Some providers report errors with a 200 status
	if w.Error != "" {
		return nil, w.rejected(status)
	}

	resp := w.tokenResponse(lt)
	if err := req.Requirements.Check(resp); err != nil {
		var perr *oauth.ProtocolError
		if errors.As(err, &perr) {
			perr.Status = status
		}
		return nil, err
	}
	return resp, nil
}

// DeviceAuthorize starts a device authorization (RFC 8628 section 3.1)
func (c *Client) DeviceAuthorize(ctx context.Context, deviceAuthURL string, req *grant.Request) (*oauth2.DeviceAuthResponse, error) {
	ctx, span := c.tracer.Start(ctx, "endpoint.device_authorization")
	defer span.End()

	da, err := c.deviceAuthorize(ctx, deviceAuthURL, req)
	c.metrics.RecordDeviceAuthorization(ctx, err == nil)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return da, nil
}

func (c *Client) deviceAuthorize(ctx context.Context, deviceAuthURL string, req *grant.Request) (*oauth2.DeviceAuthResponse, error) {
	status, body, err := c.send(ctx, OpDeviceAuthorization, deviceAuthURL, req)
	if err != nil {
		if errors.Is(err, ErrResponseTooLarge) {
			return nil, oauth.NewMalformedError(status, "", err)
		}
		return nil, err
	}

	if status < 200 || status > 299 {
		return nil, rejection(status, body)
	}

	da := &oauth2.DeviceAuthResponse{}
	if err := json.Unmarshal(body, da); err != nil {
		return nil, oauth.NewMalformedError(status, "invalid device authorization response", err)
	}
	if da.DeviceCode == "" || da.UserCode == "" || da.VerificationURI == "" {
		return nil, oauth.NewMalformedError(status, "device authorization response is missing device_code, user_code or verification_uri", nil)
	}
	return da, nil
}

// Revoke revokes a token (RFC 7009). A 200 response means the token is no
// longer valid, including when it was already invalid.
func (c *Client) Revoke(ctx context.Context, revocationURL string, req *grant.Request) error {
	ctx, span := c.tracer.Start(ctx, "endpoint.revoke")
	defer span.End()

	status, body, err := c.send(ctx, OpRevoke, revocationURL, req)
	if err != nil {
		instrumentation.RecordError(span, err)
		return err
	}
	if status != http.StatusOK {
		err := rejection(status, body)
		instrumentation.RecordError(span, err)
		return err
	}

	c.metrics.RecordTokenRevocation(ctx, req.Form.Get("token_type_hint"))
	instrumentation.SetSpanSuccess(span)
	return nil
}

// send performs the POST, retrying once when the request never left the client
func (c *Client) send(ctx context.Context, op, endpoint string, req *grant.Request) (int, []byte, error) {
	status, body, err := c.transport.SendFormPost(ctx, endpoint, req.Header, req.Form, c.timeout)

	var terr *oauth.TransportError
	if errors.As(err, &terr) && terr.PreSend && ctx.Err() == nil {
		c.metrics.RecordTransportRetry(ctx, op)
		c.logger.Debug("Retrying request after pre-send transport failure",
			"operation", op,
			"endpoint", endpoint,
			"error", terr.Err)
		status, body, err = c.transport.SendFormPost(ctx, endpoint, req.Header, req.Form, c.timeout)
	}

	if errors.As(err, &terr) {
		terr.Op = op
		if terr.URL == "" {
			terr.URL = endpoint
		}
		return status, nil, terr
	}
	if err != nil && !errors.Is(err, ErrResponseTooLarge) {
		return status, nil, &oauth.TransportError{Op: op, URL: endpoint, Err: err}
	}
	return status, body, err
}

// rejection converts an error response body into a Rejected error
func rejection(status int, body []byte) error {
	w, _, err := decodeBody(body)
	if err != nil || w.Error == "" {
		return oauth.NewRejectedError("", http.StatusText(status), status)
	}
	return w.rejected(status)
}

// resultOf maps an exchange error to a metric result label
func resultOf(err error) string {
	if err == nil {
		return instrumentation.ResultSuccess
	}
	var perr *oauth.ProtocolError
	if errors.As(err, &perr) {
		if perr.Kind == oauth.MalformedResponse {
			return instrumentation.ResultMalformed
		}
		return instrumentation.ResultRejected
	}
	return instrumentation.ResultTransport
}
