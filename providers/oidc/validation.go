package oidc

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/giantswarm/oauth-credentials/internal/util"
)

// connectorIDPattern restricts Dex connector IDs to a safe character set
var connectorIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateIssuerURL validates an OIDC issuer URL with SSRF protection.
// It enforces HTTPS and blocks non-public IP literals to prevent Server-Side
// Request Forgery attacks.
//
// Security Considerations:
//   - HTTPS Enforcement: Prevents credential interception
//   - Private IP Blocking: Prevents SSRF against internal services
//   - Loopback Blocking: Prevents attacks against localhost services
//   - Link-local Blocking: Prevents metadata service attacks (169.254.169.254)
//
// Example:
//
//	if err := ValidateIssuerURL("https://dex.example.com"); err != nil {
//	    return fmt.Errorf("invalid issuer: %w", err)
//	}
func ValidateIssuerURL(issuerURL string) error {
	return validateIssuer(issuerURL, false)
}

// validateIssuer applies ValidateIssuerURL, skipping the address checks when
// allowPrivateNetwork is set. HTTPS is always required.
func validateIssuer(issuerURL string, allowPrivateNetwork bool) error {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	// SECURITY: Enforce HTTPS to prevent credential leakage
	if u.Scheme != "https" {
		return fmt.Errorf("issuer URL must use HTTPS, got %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("issuer URL must have a hostname")
	}
	if allowPrivateNetwork {
		return nil
	}
	if util.IsLoopbackHost(host) {
		return fmt.Errorf("issuer URL must not point to loopback addresses")
	}

	// SECURITY: Block non-public IP literals to prevent SSRF
	if addr, ok := util.ParseHostIP(host); ok {
		if class := util.Classify(addr); class != util.AddressPublic {
			return fmt.Errorf("issuer URL must not point to %s addresses", class)
		}
	}

	return nil
}

// ValidateConnectorID validates a Dex connector_id parameter.
// Connector IDs should be alphanumeric with hyphens/underscores only.
//
// Security Considerations:
//   - Character Whitelist: Prevents injection into the authorization URL
//   - Length Limit: Prevents DoS via extremely long values
func ValidateConnectorID(connectorID string) error {
	if connectorID == "" {
		return nil // Optional parameter
	}

	if !connectorIDPattern.MatchString(connectorID) {
		return fmt.Errorf("connector_id contains invalid characters (allowed: a-z, A-Z, 0-9, _, -)")
	}

	// SECURITY: Prevent DoS via extremely long values
	if len(connectorID) > 64 {
		return fmt.Errorf("connector_id exceeds maximum length of 64 characters")
	}

	return nil
}

// ValidateScopes validates OAuth scopes.
//
// Security Considerations:
//   - Array Size Limit: Prevents DoS from excessive scopes
//   - String Length Limit: Prevents memory exhaustion
//   - Empty Scope Detection: Prevents malformed requests
func ValidateScopes(scopes []string) error {
	if len(scopes) > 50 {
		return fmt.Errorf("too many scopes (max 50, got %d)", len(scopes))
	}

	for i, scope := range scopes {
		if scope == "" {
			return fmt.Errorf("scope at index %d is empty", i)
		}
		if len(scope) > 256 {
			return fmt.Errorf("scope at index %d exceeds maximum length of 256 characters", i)
		}
	}

	return nil
}
