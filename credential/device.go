package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/grant"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
)

// Device poll outcomes recorded for terminal failures
const (
	pollOutcomeDenied  = "access_denied"
	pollOutcomeExpired = "expired_token"
	pollOutcomeError   = "error"
)

// deviceFlow is a device authorization awaiting user action
type deviceFlow struct {
	poller *grant.Poller
}

// StartDeviceAuthorization requests a device code and user code (RFC 8628
// section 3.1). The returned values must be shown to the user; then call
// PollDevice or AwaitDeviceAuthorization. A new call supersedes a previous
// device authorization.
func (c *Credential) StartDeviceAuthorization(ctx context.Context) (*DeviceAuthorization, error) {
	if c.grantType != oauth.GrantDeviceCode {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, c.grantType)
	}
	if c.isClosed() {
		return nil, ErrClosed
	}

	secret := c.secrets.ClientSecret()
	req := grant.DeviceAuthorizationRequest(c.identity, secret, c.endpoints.AuthStyle, c.scopes)
	secret.Zero()

	da, err := c.client.DeviceAuthorize(ctx, c.endpoints.DeviceAuthURL, req)
	if err != nil {
		return nil, err
	}

	interval := grant.EffectiveInterval(time.Duration(da.Interval)*time.Second, c.timing.PollInterval)
	var deadline time.Time
	switch {
	case !da.Expiry.IsZero():
		// x/oauth2 stamps Expiry with the wall clock; rebase it on ours
		deadline = c.now().Add(time.Until(da.Expiry).Round(time.Second))
	case c.timing.MaxPollDuration > 0:
		deadline = c.now().Add(c.timing.MaxPollDuration)
	}

	c.secrets.SetDeviceCode(da.DeviceCode)
	c.mu.Lock()
	c.device = &deviceFlow{
		poller: grant.NewPoller(interval, c.timing.SlowDownIncrement, deadline, c.now),
	}
	c.mu.Unlock()

	c.auditor.LogEvent(security.Event{
		Type:         security.EventDeviceAuthorizationStarted,
		CredentialID: c.id,
		ClientID:     c.identity.ClientID,
		GrantType:    c.grantType.String(),
		Details:      map[string]any{"interval_seconds": interval.Seconds()},
	})
	c.logger.Info("Device authorization started",
		"verification_uri", da.VerificationURI,
		"interval", interval,
		"expires_at", deadline)

	return &DeviceAuthorization{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		ExpiresAt:               deadline,
		Interval:                interval,
	}, nil
}

// PollDevice waits for the next allowed poll time and performs one device
// code exchange. PollPending and PollSlowDown mean the caller should poll
// again; slow_down has already widened the interval. access_denied and
// expired_token end the device authorization and are returned as errors.
// Transport errors leave the authorization in place.
func (c *Credential) PollDevice(ctx context.Context) (PollOutcome, error) {
	c.mu.Lock()
	flow := c.device
	c.mu.Unlock()
	if flow == nil {
		return 0, ErrNoDeviceAuthorization
	}

	ctx, span := c.tracer.Start(ctx, "credential.device_poll")
	defer span.End()
	instrumentation.AddCredentialAttributes(span, c.id, c.grantType.String())

	if err := flow.poller.Wait(ctx); err != nil {
		if errors.Is(err, grant.ErrPollDeadline) {
			c.endDeviceFlow(flow)
			c.metrics.RecordDevicePoll(ctx, pollOutcomeExpired)
			instrumentation.RecordError(span, ErrDeviceCodeExpired)
			return 0, ErrDeviceCodeExpired
		}
		return 0, err
	}

	outcome, err := c.pollOnce(ctx, flow)
	label := outcome.String()
	if err != nil {
		switch oauth.ErrorCode(err) {
		case oauth.ErrorCodeAccessDenied:
			label = pollOutcomeDenied
		case oauth.ErrorCodeExpiredToken:
			label = pollOutcomeExpired
		default:
			label = pollOutcomeError
		}
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordDevicePoll(ctx, label)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrPollOutcome, label))
	return outcome, err
}

// pollOnce performs one device code exchange
func (c *Credential) pollOnce(ctx context.Context, flow *deviceFlow) (PollOutcome, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	if c.isClosed() {
		return 0, ErrClosed
	}
	deviceCode := c.secrets.DeviceCode()
	if deviceCode.IsEmpty() {
		return 0, ErrNoDeviceAuthorization
	}
	defer deviceCode.Zero()

	params, err := grant.NewDeviceCode(deviceCode)
	if err != nil {
		return 0, err
	}

	tok, _, err := c.exchange(ctx, params)
	switch oauth.ErrorCode(err) {
	case oauth.ErrorCodeAuthorizationPending:
		return PollPending, nil

	case oauth.ErrorCodeSlowDown:
		interval := flow.poller.SlowDown()
		c.logger.Debug("Provider asked to slow down device polling", "interval", interval)
		return PollSlowDown, nil

	case oauth.ErrorCodeAccessDenied:
		c.endDeviceFlow(flow)
		c.auditor.LogEvent(security.Event{
			Type:         security.EventDeviceAuthorizationDenied,
			CredentialID: c.id,
			ClientID:     c.identity.ClientID,
			GrantType:    c.grantType.String(),
		})
		return 0, err

	case oauth.ErrorCodeExpiredToken:
		c.endDeviceFlow(flow)
		return 0, fmt.Errorf("%w: %w", ErrDeviceCodeExpired, err)
	}
	if err != nil {
		return 0, err
	}

	if _, err := c.commit(ctx, tok); err != nil {
		return 0, err
	}
	c.endDeviceFlow(flow)

	c.auditor.LogTokenIssued(c.id, c.identity.ClientID, c.grantType.String(), tok.Scope, !tok.RefreshToken.IsEmpty())
	c.logger.Info("Device authorization completed", "has_refresh_token", !tok.RefreshToken.IsEmpty())
	return PollAuthorized, nil
}

// AwaitDeviceAuthorization polls until the user completes the device
// authorization, it fails terminally, the device code expires or ctx is done
func (c *Credential) AwaitDeviceAuthorization(ctx context.Context) error {
	for {
		outcome, err := c.PollDevice(ctx)
		if err != nil {
			return err
		}
		if outcome == PollAuthorized {
			return nil
		}
	}
}

// endDeviceFlow forgets flow and its device code unless a newer device
// authorization replaced it
func (c *Credential) endDeviceFlow(flow *deviceFlow) {
	c.mu.Lock()
	current := c.device == flow
	if current {
		c.device = nil
	}
	c.mu.Unlock()
	if current {
		c.secrets.ClearPending()
	}
}
