package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/internal/util"
)

const (
	// DefaultCacheTTL is how long discovery documents are reused
	DefaultCacheTTL = time.Hour

	// maxDocumentSize caps discovery responses (1 MiB)
	maxDocumentSize = 1 << 20

	wellKnownPath = "/.well-known/openid-configuration"
)

// DiscoveryDocument represents an OIDC discovery document.
// It contains the OpenID Connect provider metadata as defined in RFC 8414.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint       string   `json:"device_authorization_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	JWKSUri                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// Endpoints converts the document into credential endpoints. Client
// credentials go in the Authorization header unless the provider only
// advertises client_secret_post.
func (d *DiscoveryDocument) Endpoints() oauth.Endpoints {
	style := oauth2.AuthStyleInHeader
	methods := d.TokenEndpointAuthMethodsSupported
	if slices.Contains(methods, "client_secret_post") && !slices.Contains(methods, "client_secret_basic") {
		style = oauth2.AuthStyleInParams
	}
	return oauth.Endpoints{
		AuthURL:       d.AuthorizationEndpoint,
		TokenURL:      d.TokenEndpoint,
		DeviceAuthURL: d.DeviceAuthorizationEndpoint,
		RevocationURL: d.RevocationEndpoint,
		AuthStyle:     style,
	}
}

// SupportsPKCE reports whether the provider advertises the S256 challenge
// method
func (d *DiscoveryDocument) SupportsPKCE() bool {
	return slices.Contains(d.CodeChallengeMethodsSupported, "S256")
}

// SupportsGrant reports whether the provider advertises grantType. Providers
// that omit grant_types_supported default to authorization_code and implicit.
func (d *DiscoveryDocument) SupportsGrant(grantType oauth.GrantType) bool {
	supported := d.GrantTypesSupported
	if len(supported) == 0 {
		supported = []string{"authorization_code", "implicit"}
	}
	return slices.Contains(supported, grantType.WireValue())
}

// cachedDocument holds a discovery document with its fetch timestamp.
type cachedDocument struct {
	document  *DiscoveryDocument
	fetchedAt time.Time
}

// DiscoveryClient fetches and caches OIDC discovery documents.
// It provides SSRF protection and HTTPS enforcement for all discovered endpoints.
//
// The client is thread-safe and can be used concurrently from multiple goroutines.
// Concurrent lookups of the same issuer share one request.
type DiscoveryClient struct {
	httpClient *http.Client
	cache      sync.Map // issuerURL -> *cachedDocument
	group      singleflight.Group
	cacheTTL   time.Duration
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	tracer     trace.Tracer
	now        func() time.Time

	// allowPrivateNetwork permits issuers on loopback and private
	// addresses. HTTPS is still enforced.
	allowPrivateNetwork bool
}

// NewDiscoveryClient creates a new OIDC discovery client with default configuration.
//
// Parameters:
//   - httpClient: HTTP client to use for requests (nil uses default with 10s timeout)
//   - cacheTTL: Time-to-live for cached discovery documents (0 uses DefaultCacheTTL)
//   - logger: Logger for debug/info messages (nil uses default logger)
//
// Example:
//
//	client := oidc.NewDiscoveryClient(nil, time.Hour, slog.Default())
//	doc, err := client.Discover(ctx, "https://dex.example.com")
func NewDiscoveryClient(httpClient *http.Client, cacheTTL time.Duration, logger *slog.Logger) *DiscoveryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTTL == 0 {
		cacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	inst := instrumentation.NewNoop()
	return &DiscoveryClient{
		httpClient: httpClient,
		cacheTTL:   cacheTTL,
		logger:     logger,
		metrics:    inst.Metrics(),
		tracer:     inst.Tracer("providers/oidc"),
		now:        time.Now,
	}
}

// SetInstrumentation records discovery metrics and spans on inst
func (c *DiscoveryClient) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	c.metrics = inst.Metrics()
	c.tracer = inst.Tracer("providers/oidc")
}

// Discover fetches the OIDC discovery document for an issuer.
// It validates the issuer URL for security (SSRF protection) and caches results.
//
// Security Features:
//   - SSRF protection via ValidateIssuerURL
//   - HTTPS enforcement for issuer and all discovered endpoints
//   - Issuer match: the document's issuer must equal the requested issuer
//   - Response size limit
func (c *DiscoveryClient) Discover(ctx context.Context, issuerURL string) (*DiscoveryDocument, error) {
	return c.discover(ctx, "oidc", issuerURL)
}

func (c *DiscoveryClient) discover(ctx context.Context, provider, issuerURL string) (_ *DiscoveryDocument, err error) {
	ctx, span := c.tracer.Start(ctx, "oidc.discover")
	defer span.End()
	instrumentation.AddProviderAttributes(span, provider, "discover")

	cached := false
	defer func() {
		c.metrics.RecordProviderDiscovery(ctx, provider, cached, err)
		if err != nil {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
	}()

	// SECURITY: Validate issuer URL before making request
	if err := validateIssuer(issuerURL, c.allowPrivateNetwork); err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}

	key := util.NormalizeURL(issuerURL)
	if doc, ok := c.cached(key); ok {
		cached = true
		c.logger.Debug("OIDC discovery cache hit", "issuer", issuerURL)
		return doc, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetch(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DiscoveryDocument), nil
}

// cached returns a document fetched less than cacheTTL ago
func (c *DiscoveryClient) cached(key string) (*DiscoveryDocument, bool) {
	v, ok := c.cache.Load(key)
	if !ok {
		return nil, false
	}
	doc := v.(*cachedDocument)
	if c.now().Sub(doc.fetchedAt) >= c.cacheTTL {
		c.logger.Debug("OIDC discovery cache expired", "issuer", key)
		return nil, false
	}
	return doc.document, true
}

func (c *DiscoveryClient) fetch(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	discoveryURL := issuer + wellKnownPath
	c.logger.Debug("Fetching OIDC discovery document", "url", discoveryURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OIDC discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC discovery failed with status %d", resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if util.NormalizeURL(doc.Issuer) != issuer {
		return nil, fmt.Errorf("discovery document issuer %q does not match %q", doc.Issuer, issuer)
	}

	// SECURITY: Validate all endpoints use HTTPS
	if err := c.validateDocument(&doc); err != nil {
		return nil, fmt.Errorf("invalid discovery document: %w", err)
	}

	c.cache.Store(issuer, &cachedDocument{
		document:  &doc,
		fetchedAt: c.now(),
	})

	c.logger.Info("OIDC discovery successful",
		"issuer", issuer,
		"token_endpoint", doc.TokenEndpoint,
		"device_authorization_endpoint", doc.DeviceAuthorizationEndpoint)

	return &doc, nil
}

// validateDocument validates security properties of discovery document.
// All endpoints must use HTTPS to prevent credential leakage.
func (c *DiscoveryClient) validateDocument(doc *DiscoveryDocument) error {
	required := []struct {
		name string
		url  string
	}{
		{"issuer", doc.Issuer},
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
		{"jwks_uri", doc.JWKSUri},
	}

	for _, endpoint := range required {
		if endpoint.url == "" {
			return fmt.Errorf("%s is required but missing", endpoint.name)
		}
		if !strings.HasPrefix(endpoint.url, "https://") {
			return fmt.Errorf("%s must use HTTPS: %s", endpoint.name, endpoint.url)
		}
	}

	// Optional endpoints that must be HTTPS if present
	optional := []struct {
		name string
		url  string
	}{
		{"device_authorization_endpoint", doc.DeviceAuthorizationEndpoint},
		{"revocation_endpoint", doc.RevocationEndpoint},
		{"userinfo_endpoint", doc.UserInfoEndpoint},
	}

	for _, endpoint := range optional {
		if endpoint.url != "" && !strings.HasPrefix(endpoint.url, "https://") {
			return fmt.Errorf("%s must use HTTPS if present: %s", endpoint.name, endpoint.url)
		}
	}

	return nil
}

// ClearCache clears the discovery document cache.
// This is useful for forcing a refresh of all cached documents.
func (c *DiscoveryClient) ClearCache() {
	count := 0
	c.cache.Range(func(key, _ any) bool {
		c.cache.Delete(key)
		count++
		return true
	})
	c.logger.Debug("OIDC discovery cache cleared", "entries_removed", count)
}
