package credential

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/endpoint"
	"github.com/giantswarm/oauth-credentials/grant"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
)

const (
	// renewKey is the single singleflight key: a credential renews one token
	renewKey = "renew"

	// persistTimeout bounds state store writes, which outlive the caller's
	// context
	persistTimeout = 5 * time.Second
)

// Credential is the token lifecycle state machine of one client identity and
// grant type. It is safe for concurrent use; token endpoint exchanges are
// serialized and concurrent renewals share one exchange.
type Credential struct {
	id            string
	grantType     oauth.GrantType
	identity      oauth.ClientIdentity
	endpoints     oauth.Endpoints
	scopes        []string
	redirectURI   string
	usePKCE       bool
	offlineAccess bool
	openID        oauth.OpenIDConfig
	username      string
	timing        oauth.TimingConfig
	rotation      bool

	secrets *security.SecretStore
	client  *endpoint.Client
	store   storage.StateStore
	auditor *security.Auditor
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instrumentation.Metrics
	now     func() time.Time

	group singleflight.Group

	// exchangeMu serializes token endpoint exchanges
	exchangeMu sync.Mutex

	mu       sync.Mutex
	inflight int
	failed   bool
	lastErr  error
	pending  *pendingAuthorization
	device   *deviceFlow
	closed   bool
}

// pendingAuthorization holds the public values of the last issued
// authorization URL; the PKCE verifier lives in the secret store
type pendingAuthorization struct {
	state string
	nonce string
}

// renewal is the shared result of one renewal
type renewal struct {
	accessToken string
	refreshed   bool
}

// leaderCancelledError marks a renewal aborted by the context of the caller
// that started it. Callers sharing that renewal retry with their own context.
type leaderCancelledError struct {
	err error
}

func (e *leaderCancelledError) Error() string { return e.err.Error() }
func (e *leaderCancelledError) Unwrap() error { return e.err }

// ID returns the credential ID
func (c *Credential) ID() string {
	return c.id
}

// GrantType returns the grant type the credential was built for
func (c *Credential) GrantType() oauth.GrantType {
	return c.grantType
}

// Identity returns the client identity
func (c *Credential) Identity() oauth.ClientIdentity {
	return c.identity
}

// State returns the current lifecycle state
func (c *Credential) State() State {
	c.mu.Lock()
	inflight, failed := c.inflight, c.failed
	c.mu.Unlock()

	if inflight > 0 {
		return StatePendingExchange
	}
	if failed {
		return StateFailed
	}

	state := StateUnauthorized
	now := c.now()
	c.secrets.View(func(t *security.CachedToken) {
		switch {
		case t == nil:
			state = StateUnauthorized
		case c.valid(t, now):
			state = StateAuthorized
		default:
			state = StateExpired
		}
	})
	return state
}

// LastError returns the error of the last failed exchange, or nil
func (c *Credential) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Acquire returns a valid access token. A cached token valid beyond the skew
// margin is returned without I/O. Otherwise the refresh token is exchanged
// (client_credentials re-runs its own grant); concurrent callers share that
// exchange and observe the same token.
//
// Errors wrapping oauth.ErrReauthorizationRequired mean the caller must drive
// the grant-specific flow again (AuthorizationURL, StartDeviceAuthorization,
// ExchangeInitial).
func (c *Credential) Acquire(ctx context.Context) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	if token, ok := c.validAccessToken(); ok {
		c.metrics.RecordAcquire(ctx, c.grantType.String(), instrumentation.AcquireCacheHit)
		return token, nil
	}

	ctx, span := c.tracer.Start(ctx, "credential.acquire")
	defer span.End()
	instrumentation.AddCredentialAttributes(span, c.id, c.grantType.String())

	r, err := c.sharedRenew(ctx)
	if err != nil {
		result := instrumentation.AcquireError
		if errors.Is(err, oauth.ErrReauthorizationRequired) {
			result = instrumentation.AcquireReauthRequired
		}
		c.metrics.RecordAcquire(ctx, c.grantType.String(), result)
		instrumentation.RecordError(span, err)
		return "", err
	}

	result := instrumentation.AcquireCacheHit
	if r.refreshed {
		result = instrumentation.AcquireRefreshed
	}
	c.metrics.RecordAcquire(ctx, c.grantType.String(), result)
	instrumentation.SetSpanSuccess(span)
	return r.accessToken, nil
}

// sharedRenew joins the in-flight renewal or starts one
func (c *Credential) sharedRenew(ctx context.Context) (renewal, error) {
	for {
		ch := c.group.DoChan(renewKey, func() (any, error) {
			r, err := c.renew(ctx)
			if err != nil && ctx.Err() != nil {
				return r, &leaderCancelledError{err: err}
			}
			return r, err
		})

		select {
		case <-ctx.Done():
			return renewal{}, ctx.Err()
		case res := <-ch:
			var lerr *leaderCancelledError
			if errors.As(res.Err, &lerr) {
				if ctx.Err() == nil {
					// Started by a caller that gave up; try again with ours
					continue
				}
				return renewal{}, lerr.err
			}
			if res.Err != nil {
				return renewal{}, res.Err
			}
			return res.Val.(renewal), nil
		}
	}
}

// renew obtains a new access token through the credential's renewal path
func (c *Credential) renew(ctx context.Context) (renewal, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	if c.isClosed() {
		return renewal{}, ErrClosed
	}
	// A previous holder of exchangeMu may have renewed already
	if token, ok := c.validAccessToken(); ok {
		return renewal{accessToken: token}, nil
	}

	if rt := c.secrets.RefreshToken(); rt != nil {
		token, err := c.refresh(ctx, rt)
		if err != nil {
			return renewal{}, err
		}
		return renewal{accessToken: token, refreshed: true}, nil
	}

	if c.grantType == oauth.GrantClientCredentials {
		tok, _, err := c.exchange(ctx, grant.NewClientCredentials(c.scopes))
		if err != nil {
			return renewal{}, err
		}
		token, err := c.commit(ctx, tok)
		if err != nil {
			return renewal{}, err
		}
		c.auditor.LogTokenIssued(c.id, c.identity.ClientID, c.grantType.String(), tok.Scope, false)
		return renewal{accessToken: token, refreshed: true}, nil
	}

	reason := "no token has been obtained"
	if c.secrets.Token() != nil {
		reason = "access token expired and no refresh token is held"
		c.secrets.DropToken()
		c.auditReauthorization(reason)
	}
	return renewal{}, oauth.NewReauthorizationError(reason, nil)
}

// refresh exchanges rt, which the caller hands over. Callers hold exchangeMu.
func (c *Credential) refresh(ctx context.Context, rt *security.Secret) (string, error) {
	ctx, span := c.tracer.Start(ctx, "credential.refresh")
	defer span.End()
	instrumentation.AddCredentialAttributes(span, c.id, c.grantType.String())

	params, err := grant.NewRefreshToken(rt, c.scopes, c.rotation)
	if err != nil {
		rt.Zero()
		return "", err
	}

	tok, resp, err := c.exchange(ctx, params)
	if err != nil {
		rt.Zero()
		if oauth.IsInvalidGrant(err) {
			c.invalidate(ctx, err)
			reauth := oauth.NewReauthorizationError("refresh token rejected", err)
			instrumentation.RecordError(span, reauth)
			return "", reauth
		}
		instrumentation.RecordError(span, err)
		return "", err
	}

	rotated := resp.RefreshToken != ""
	if rotated {
		rt.Zero()
	} else {
		tok.RefreshToken = rt
	}

	token, err := c.commit(ctx, tok)
	if err != nil {
		return "", err
	}

	c.metrics.RecordTokenRefresh(ctx, c.grantType.String(), rotated)
	c.auditor.LogTokenRefreshed(c.id, c.identity.ClientID, rotated)
	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrTokenRotated, rotated))
	instrumentation.SetSpanSuccess(span)
	c.logger.Debug("Access token refreshed", "rotated", rotated)
	return token, nil
}

// invalidate drops a refresh token the provider rejected with invalid_grant.
// The credential becomes Unauthorized.
func (c *Credential) invalidate(ctx context.Context, cause error) {
	c.secrets.DropToken()

	c.mu.Lock()
	c.failed = false
	c.lastErr = cause
	c.mu.Unlock()

	var description string
	var perr *oauth.ProtocolError
	if errors.As(cause, &perr) {
		description = perr.Description
	}
	c.auditor.LogRefreshTokenInvalidated(c.id, c.identity.ClientID, description)
	c.auditReauthorization("refresh token rejected")
	c.logger.Warn("Refresh token rejected by provider, reauthorization required")
	c.deleteState(ctx)
}

// exchange sends one token request built from p and converts the response into
// a cached token. It does not touch the cached token. Callers hold exchangeMu.
func (c *Credential) exchange(ctx context.Context, p grant.Params) (*security.CachedToken, *oauth.TokenResponse, error) {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight--
		c.mu.Unlock()
	}()

	secret := c.secrets.ClientSecret()
	defer secret.Zero()

	sentAt := c.now()
	req := grant.BuildRequest(c.identity, secret, c.endpoints.AuthStyle, p)
	resp, err := c.client.Exchange(ctx, c.endpoints.TokenURL, req)
	if err != nil {
		c.recordFailure(ctx, p.GrantType(), err)
		return nil, nil, err
	}

	scope := resp.Scope
	if scope == "" {
		scope = strings.Join(c.scopes, " ")
	}
	tok := &security.CachedToken{
		AccessToken: security.NewSecret(resp.AccessToken),
		TokenType:   resp.TokenType,
		Scope:       scope,
		ExpiresIn:   time.Duration(resp.ExpiresIn) * time.Second,
		ExpiryKnown: resp.ExpiryKnown,
		ObtainedAt:  sentAt,
	}
	if resp.RefreshToken != "" {
		tok.RefreshToken = security.NewSecret(resp.RefreshToken)
	}
	if resp.IDToken != "" {
		tok.IDToken = security.NewSecret(resp.IDToken)
	}
	return tok, resp, nil
}

// recordFailure moves the credential to Failed unless err is a polling signal
// or the caller gave up
func (c *Credential) recordFailure(ctx context.Context, grantType oauth.GrantType, err error) {
	code := oauth.ErrorCode(err)
	switch {
	case code == oauth.ErrorCodeAuthorizationPending, code == oauth.ErrorCodeSlowDown:
		return
	case ctx.Err() != nil:
		return
	}

	c.mu.Lock()
	c.failed = true
	c.lastErr = err
	c.mu.Unlock()

	if code != "" {
		c.auditor.LogExchangeFailure(c.id, c.identity.ClientID, grantType.String(), code)
	}
	if errors.Is(err, grant.ErrNonceMismatch) {
		c.auditor.LogEvent(security.Event{
			Type:         security.EventNonceMismatch,
			CredentialID: c.id,
			ClientID:     c.identity.ClientID,
			GrantType:    grantType.String(),
		})
	}
}

// commit installs tok as the cached token and persists the refresh token.
// It returns the access token.
func (c *Credential) commit(ctx context.Context, tok *security.CachedToken) (string, error) {
	accessToken := tok.AccessToken.Reveal()
	c.secrets.SwapToken(tok)
	if c.secrets.Cleared() {
		return "", ErrClosed
	}

	c.mu.Lock()
	c.failed = false
	c.lastErr = nil
	c.mu.Unlock()

	c.persist(ctx)
	return accessToken, nil
}

// persist saves the refresh token. Failures are logged: the exchange already
// succeeded and the token stays usable in memory.
func (c *Credential) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	state := c.Snapshot()
	if state == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.store.SaveState(ctx, state); err != nil {
		c.logger.Warn("Failed to persist credential state", "error", err)
	}
}

// deleteState removes persisted state after the refresh token became unusable
func (c *Credential) deleteState(ctx context.Context) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.store.DeleteState(ctx, c.id); err != nil {
		c.logger.Warn("Failed to delete persisted credential state", "error", err)
	}
}

// AuthorizationURL returns the URL the user must visit for the authorization
// code and OpenID Connect grants. Every call issues a new state, nonce and
// PKCE verifier and supersedes the previous URL. It returns false for other
// grants and for closed credentials.
func (c *Credential) AuthorizationURL() (string, bool) {
	if c.grantType != oauth.GrantAuthorizationCode && c.grantType != oauth.GrantOpenIDConnect {
		return "", false
	}
	if c.isClosed() {
		return "", false
	}

	ar, err := grant.NewAuthorizationRequest(grant.AuthorizationOptions{
		ClientID:      c.identity.ClientID,
		Endpoint:      c.endpoints.OAuth2Endpoint(),
		RedirectURI:   c.redirectURI,
		Scopes:        c.scopes,
		UsePKCE:       c.usePKCE,
		OfflineAccess: c.offlineAccess,
		OpenID:        c.grantType == oauth.GrantOpenIDConnect,
		Nonce:         c.openID.Nonce,
		IDTokenHint:   c.openID.IDTokenHint,
	})
	if err != nil {
		c.logger.Error("Failed to build authorization URL", "error", err)
		return "", false
	}

	if ar.Verifier != nil {
		c.secrets.SetCodeVerifier(ar.Verifier.Reveal())
		ar.Verifier.Zero()
	}

	c.mu.Lock()
	c.pending = &pendingAuthorization{state: ar.State, nonce: ar.Nonce}
	c.mu.Unlock()

	c.auditor.LogEvent(security.Event{
		Type:         security.EventAuthorizationFlowStarted,
		CredentialID: c.id,
		ClientID:     c.identity.ClientID,
		GrantType:    c.grantType.String(),
		Details:      map[string]any{"pkce": c.usePKCE},
	})
	return ar.URL, true
}

// ExchangeInitialWithState checks state against the last issued authorization
// URL in constant time, then exchanges code
func (c *Credential) ExchangeInitialWithState(ctx context.Context, code, state string) error {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	if pending == nil {
		return ErrNoPendingAuthorization
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(pending.state)) != 1 {
		c.auditor.LogEvent(security.Event{
			Type:         security.EventStateMismatch,
			CredentialID: c.id,
			ClientID:     c.identity.ClientID,
			GrantType:    c.grantType.String(),
		})
		return ErrStateMismatch
	}
	return c.ExchangeInitial(ctx, code)
}

// ExchangeInitial runs the grant-specific first exchange. code is:
//   - the authorization code for authorization_code and openid_connect
//   - the password for password (empty uses the configured one)
//   - the refresh token for refresh_token
//   - ignored for client_credentials and device_code
//
// device_code polls until the user completes the authorization started by
// StartDeviceAuthorization.
func (c *Credential) ExchangeInitial(ctx context.Context, code string) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.grantType == oauth.GrantDeviceCode {
		return c.AwaitDeviceAuthorization(ctx)
	}

	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "credential.exchange_initial")
	defer span.End()
	instrumentation.AddCredentialAttributes(span, c.id, c.grantType.String())

	in, err := c.initialParams(code)
	if err != nil {
		instrumentation.RecordError(span, err)
		return err
	}
	if err := c.exchangeInitial(ctx, in); err != nil {
		instrumentation.RecordError(span, err)
		return err
	}

	instrumentation.SetSpanSuccess(span)
	return nil
}

// initialExchange is a built first-exchange request. keep is a refresh token
// to hold on to when the response does not carry a new one. copies are secret
// store clones referenced by params.
type initialExchange struct {
	params grant.Params
	keep   *security.Secret
	copies []*security.Secret
}

func (in *initialExchange) wipe() {
	for _, s := range in.copies {
		s.Zero()
	}
}

// exchangeInitial performs and commits the first exchange. Callers hold
// exchangeMu.
func (c *Credential) exchangeInitial(ctx context.Context, in *initialExchange) error {
	defer in.wipe()

	tok, resp, err := c.exchange(ctx, in.params)
	if c.grantType == oauth.GrantResourceOwnerPassword && !oauth.IsRetryable(err) {
		c.secrets.ClearPassword()
	}
	if err != nil {
		in.keep.Zero()
		return err
	}

	if resp.RefreshToken == "" && in.keep != nil {
		tok.RefreshToken = in.keep
	} else {
		in.keep.Zero()
	}

	if _, err := c.commit(ctx, tok); err != nil {
		return err
	}

	c.secrets.ClearPending()
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	c.auditor.LogTokenIssued(c.id, c.identity.ClientID, c.grantType.String(), tok.Scope, !tok.RefreshToken.IsEmpty())
	c.logger.Info("Initial token exchange succeeded", "has_refresh_token", !tok.RefreshToken.IsEmpty())
	return nil
}

// initialParams builds the first-exchange request for the configured grant
func (c *Credential) initialParams(code string) (*initialExchange, error) {
	switch c.grantType {
	case oauth.GrantAuthorizationCode:
		verifier := c.secrets.CodeVerifier()
		p, err := grant.NewAuthorizationCode(code, c.redirectURI, verifier, c.offlineAccess)
		return built(p, nil, err, verifier)

	case oauth.GrantOpenIDConnect:
		nonce := c.openID.Nonce
		c.mu.Lock()
		if c.pending != nil && c.pending.nonce != "" {
			nonce = c.pending.nonce
		}
		c.mu.Unlock()
		if nonce == "" {
			return nil, oauth.NewConfigurationError("nonce", "no authorization URL was issued and no nonce is configured")
		}
		verifier := c.secrets.CodeVerifier()
		p, err := grant.NewOpenIDConnect(code, c.redirectURI, nonce, verifier)
		return built(p, nil, err, verifier)

	case oauth.GrantResourceOwnerPassword:
		if code != "" {
			c.secrets.SetPassword(code)
		}
		password := c.secrets.Password()
		if password.IsEmpty() {
			return nil, oauth.NewReauthorizationError("resource owner password was cleared after the initial exchange", nil)
		}
		p, err := grant.NewResourceOwnerPassword(c.username, password, c.scopes)
		return built(p, nil, err, password)

	case oauth.GrantClientCredentials:
		return built(grant.NewClientCredentials(c.scopes), nil, nil)

	case oauth.GrantRefreshToken:
		rt := security.NewSecret(code)
		p, err := grant.NewRefreshToken(rt, c.scopes, c.rotation)
		if err != nil {
			rt.Zero()
			return nil, err
		}
		return built(p, rt, nil)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, c.grantType)
}

// built wraps a variant constructor result, zeroing copies when it failed
func built(p grant.Params, keep *security.Secret, err error, copies ...*security.Secret) (*initialExchange, error) {
	in := &initialExchange{params: p, keep: keep, copies: copies}
	if err != nil {
		in.wipe()
		return nil, err
	}
	return in, nil
}

// Revoke revokes the refresh token (or the access token when no refresh token
// is held) at the revocation endpoint, then drops the cached token and the
// persisted state. Without a revocation endpoint the token is dropped locally.
func (c *Credential) Revoke(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}

	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	token, hint := c.secrets.RefreshToken(), grant.HintRefreshToken
	if token == nil {
		hint = grant.HintAccessToken
		c.secrets.View(func(t *security.CachedToken) {
			if t != nil {
				token = t.AccessToken.Clone()
			}
		})
	}
	defer token.Zero()

	if !token.IsEmpty() && c.endpoints.RevocationURL != "" {
		secret := c.secrets.ClientSecret()
		req := grant.RevocationRequest(c.identity, secret, c.endpoints.AuthStyle, token, hint)
		secret.Zero()
		if err := c.client.Revoke(ctx, c.endpoints.RevocationURL, req); err != nil {
			return err
		}
	}

	c.secrets.DropToken()
	c.deleteState(ctx)
	c.mu.Lock()
	c.failed = false
	c.lastErr = nil
	c.mu.Unlock()

	if !token.IsEmpty() {
		c.auditor.LogTokenRevoked(c.id, c.identity.ClientID, hint)
	}
	return nil
}

// Close zeroes every secret the credential holds. Persisted state is kept so
// a later process can restore the credential. Close is idempotent.
func (c *Credential) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.pending = nil
	c.device = nil
	c.mu.Unlock()

	c.secrets.Clear()
	c.auditor.LogCredentialDestroyed(c.id, c.identity.ClientID)
	c.logger.Debug("Credential closed")
	return nil
}

// Token returns a snapshot of the cached token for x/oauth2 consumers, or nil
// when no access token is cached. The snapshot is not refreshed; use
// TokenSource for that.
func (c *Credential) Token() *oauth2.Token {
	var out *oauth2.Token
	c.secrets.View(func(t *security.CachedToken) {
		if t == nil || t.AccessToken.IsEmpty() {
			return
		}
		out = &oauth2.Token{
			AccessToken:  t.AccessToken.Reveal(),
			TokenType:    t.TokenType,
			RefreshToken: t.RefreshToken.Reveal(),
			Expiry:       t.ExpiresAt(),
			ExpiresIn:    int64(t.ExpiresIn / time.Second),
		}
		extra := map[string]any{}
		if t.Scope != "" {
			extra["scope"] = t.Scope
		}
		if !t.IDToken.IsEmpty() {
			extra["id_token"] = t.IDToken.Reveal()
		}
		if len(extra) > 0 {
			out = out.WithExtra(extra)
		}
	})
	return out
}

// TokenSource returns an oauth2.TokenSource backed by Acquire. ctx is used for
// every renewal the source performs.
func (c *Credential) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c}
}

type tokenSource struct {
	ctx context.Context
	c   *Credential
}

// Token implements oauth2.TokenSource
func (s *tokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := s.c.Acquire(s.ctx)
	if err != nil {
		return nil, err
	}
	tok := s.c.Token()
	if tok == nil || tok.AccessToken != accessToken {
		// Replaced or dropped since Acquire returned
		tok = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	}
	return tok, nil
}

// Snapshot returns the persistable state, or nil when no refresh token is held.
// Access tokens are never persisted.
func (c *Credential) Snapshot() *storage.PersistedState {
	var state *storage.PersistedState
	c.secrets.View(func(t *security.CachedToken) {
		if t == nil || t.RefreshToken.IsEmpty() {
			return
		}
		state = &storage.PersistedState{
			CredentialID: c.id,
			GrantType:    c.grantType,
			ClientID:     c.identity.ClientID,
			Tenant:       c.identity.Tenant,
			Scope:        t.Scope,
			RefreshToken: t.RefreshToken.Reveal(),
			ExpiresAt:    t.ExpiresAt(),
		}
	})
	return state
}

// Restore loads the credential's persisted state from the configured store.
// It reports whether a refresh token was restored; nothing is restored when
// no store is configured, no state exists or a token is already cached.
func (c *Credential) Restore(ctx context.Context) (bool, error) {
	if c.isClosed() {
		return false, ErrClosed
	}
	if c.store == nil || c.secrets.Token() != nil {
		return false, nil
	}

	state, err := c.store.LoadState(ctx, c.id)
	if errors.Is(err, storage.ErrStateNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load credential state: %w", err)
	}
	if err := checkRestored(state, c.grantType, c.identity); err != nil {
		return false, err
	}

	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()
	if c.secrets.Token() != nil {
		return false, nil
	}
	c.seed(state)
	return true, nil
}

// seed installs a persisted refresh token without an access token, leaving the
// credential Expired so the next Acquire refreshes
func (c *Credential) seed(state *storage.PersistedState) {
	c.secrets.SwapToken(&security.CachedToken{
		RefreshToken: security.NewSecret(state.RefreshToken),
		Scope:        state.Scope,
		ObtainedAt:   c.now(),
	})
	c.auditor.LogEvent(security.Event{
		Type:         security.EventCredentialRestored,
		CredentialID: c.id,
		ClientID:     c.identity.ClientID,
		GrantType:    c.grantType.String(),
	})
	c.logger.Debug("Restored persisted credential state", "state", state)
}

// validAccessToken returns the cached access token when it is still valid
func (c *Credential) validAccessToken() (string, bool) {
	var token string
	var ok bool
	now := c.now()
	c.secrets.View(func(t *security.CachedToken) {
		if c.valid(t, now) {
			token, ok = t.AccessToken.Reveal(), true
		}
	})
	return token, ok
}

// valid reports whether t holds an access token usable at now
func (c *Credential) valid(t *security.CachedToken, now time.Time) bool {
	return t != nil &&
		!t.AccessToken.IsEmpty() &&
		!security.IsTokenExpiredWithMargin(t.ExpiresAt(), now, c.timing.SkewMargin)
}

func (c *Credential) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Credential) auditReauthorization(reason string) {
	c.auditor.LogEvent(security.Event{
		Type:         security.EventReauthorizationRequired,
		CredentialID: c.id,
		ClientID:     c.identity.ClientID,
		GrantType:    c.grantType.String(),
		Details:      map[string]any{"reason": reason},
	})
}
