package credential

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/endpoint"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/providers/microsoft"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
)

// Option customizes a Credential built by Build
type Option func(*options)

type options struct {
	now       func() time.Time
	transport endpoint.Transport
	store     storage.StateStore
	inst      *instrumentation.Instrumentation
	auditor   *security.Auditor
	logger    *slog.Logger
	restored  *storage.PersistedState
	id        string
	rotation  bool
}

// WithClock overrides the wall clock used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTransport replaces the HTTP transport built from Config.HTTPClient
func WithTransport(t endpoint.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithStore saves the refresh token after every successful exchange and
// deletes it when the provider invalidates it or it is revoked
func WithStore(store storage.StateStore) Option {
	return func(o *options) { o.store = store }
}

// WithInstrumentation enables metrics and tracing
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(o *options) { o.inst = inst }
}

// WithAuditor enables security audit events
func WithAuditor(a *security.Auditor) Option {
	return func(o *options) { o.auditor = a }
}

// WithLogger overrides Config.Logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRestoredState seeds the credential with a previously persisted refresh
// token. The credential takes the state's ID; its client ID and grant type
// must match the configuration.
func WithRestoredState(state *storage.PersistedState) Option {
	return func(o *options) { o.restored = state }
}

// WithID sets the credential ID used for persistence, logs and metrics.
// A random UUID is used otherwise.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithRefreshTokenRotation declares that the provider rotates refresh tokens,
// making a new refresh_token mandatory in every refresh response
func WithRefreshTokenRotation() Option {
	return func(o *options) { o.rotation = true }
}

// Build validates cfg for grantType and assembles an Unauthorized credential
// (or Expired, when restored from persisted state). It performs no network
// I/O. Every validation failure is an *oauth.ConfigurationError naming the
// offending field.
func Build(grantType oauth.GrantType, cfg oauth.Config, opts ...Option) (*Credential, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	identity := cfg.Identity()
	if identity.ClientID == "" {
		return nil, oauth.MissingField("client_id")
	}
	if identity.Tenant == "" {
		return nil, oauth.MissingField("tenant")
	}

	endpoints := cfg.Endpoints
	if strings.TrimSpace(endpoints.TokenURL) == "" {
		derived, err := microsoft.Endpoints(identity.Tenant)
		if err != nil {
			return nil, err
		}
		derived.RevocationURL = endpoints.RevocationURL
		endpoints = derived
	}

	if err := validateGrant(grantType, &cfg, endpoints); err != nil {
		return nil, err
	}

	id := o.id
	if o.restored != nil {
		if err := checkRestored(o.restored, grantType, identity); err != nil {
			return nil, err
		}
		if id == "" {
			id = o.restored.CredentialID
		} else if id != o.restored.CredentialID {
			return nil, oauth.NewConfigurationError("restored_state", "credential ID does not match")
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > storage.MaxIDLength {
		return nil, oauth.NewConfigurationError("credential_id", fmt.Sprintf("exceeds %d bytes", storage.MaxIDLength))
	}

	logger := o.logger
	if logger == nil {
		logger = cfg.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("credential_id", id, "grant_type", grantType.String())

	inst := o.inst
	if inst == nil {
		inst = instrumentation.NewNoop()
	}

	timing := cfg.Timing.WithDefaults()

	transport := o.transport
	if transport == nil {
		transport = endpoint.NewHTTPTransport(cfg.HTTPClient)
	}

	now := o.now
	if now == nil {
		now = time.Now
	}

	c := &Credential{
		id:            id,
		grantType:     grantType,
		identity:      identity,
		endpoints:     endpoints,
		scopes:        slices.Clone(cfg.Scopes),
		redirectURI:   strings.TrimSpace(cfg.RedirectURI),
		usePKCE:       cfg.UsePKCE,
		offlineAccess: cfg.OfflineAccess,
		openID:        cfg.OpenID,
		username:      cfg.ResourceOwner.Username,
		timing:        timing,
		rotation:      o.rotation,
		secrets:       security.NewSecretStore(cfg.ClientSecret),
		client: endpoint.New(endpoint.Config{
			Transport:       transport,
			Timeout:         timing.RequestTimeout,
			Logger:          logger,
			Instrumentation: inst,
		}),
		store:   o.store,
		auditor: o.auditor,
		logger:  logger,
		tracer:  inst.Tracer("credential"),
		metrics: inst.Metrics(),
		now:     now,
	}

	if grantType == oauth.GrantResourceOwnerPassword {
		c.secrets.SetPassword(cfg.ResourceOwner.Password)
	}
	if o.restored != nil {
		c.seed(o.restored)
	}

	logger.Debug("Credential built",
		"client_id", identity.ClientID,
		"tenant", identity.Tenant,
		"confidential", identity.Confidential,
		"restored", o.restored != nil)
	return c, nil
}

// validateGrant checks the fields required by grantType
func validateGrant(grantType oauth.GrantType, cfg *oauth.Config, e oauth.Endpoints) error {
	if err := requireURL("token_url", e.TokenURL); err != nil {
		return err
	}
	if e.RevocationURL != "" {
		if err := requireURL("revocation_url", e.RevocationURL); err != nil {
			return err
		}
	}

	confidential := cfg.ClientSecret != ""

	switch grantType {
	case oauth.GrantAuthorizationCode, oauth.GrantOpenIDConnect:
		if strings.TrimSpace(cfg.RedirectURI) == "" {
			return oauth.MissingField("redirect_uri")
		}
		if err := requireURL("auth_url", e.AuthURL); err != nil {
			return err
		}
		if !confidential && !cfg.UsePKCE {
			return oauth.NewConfigurationError("client_secret", "is required unless PKCE is enabled")
		}

	case oauth.GrantClientCredentials, oauth.GrantRefreshToken:
		if !confidential {
			return oauth.MissingField("client_secret")
		}

	case oauth.GrantResourceOwnerPassword:
		if strings.TrimSpace(cfg.ResourceOwner.Username) == "" {
			return oauth.MissingField("username")
		}
		if cfg.ResourceOwner.Password == "" {
			return oauth.MissingField("password")
		}
		if !confidential {
			return oauth.MissingField("client_secret")
		}

	case oauth.GrantDeviceCode:
		if err := requireURL("device_auth_url", e.DeviceAuthURL); err != nil {
			return err
		}

	default:
		return oauth.NewConfigurationError("grant_type", fmt.Sprintf("unsupported grant type %q", grantType))
	}

	return nil
}

// requireURL checks that raw is an absolute http(s) URL
func requireURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return oauth.MissingField(field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return oauth.NewConfigurationError(field, "must be an absolute http(s) URL")
	}
	return nil
}

// checkRestored verifies that state belongs to this configuration
func checkRestored(state *storage.PersistedState, grantType oauth.GrantType, identity oauth.ClientIdentity) error {
	if err := state.Validate(); err != nil {
		return oauth.NewConfigurationError("restored_state", err.Error())
	}
	if state.ClientID != identity.ClientID {
		return oauth.NewConfigurationError("restored_state", "client ID does not match")
	}
	if state.GrantType != grantType {
		return oauth.NewConfigurationError("restored_state", "grant type does not match")
	}
	return nil
}
