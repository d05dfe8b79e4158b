// Package security provides the secret store, expiry checks, encryption at
// rest and audit logging used by credentials.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Event represents a security audit event
type Event struct {
	Type         string
	CredentialID string
	ClientID     string
	GrantType    string
	Details      map[string]any
	Timestamp    time.Time
}

// LogEvent logs a security event with hashed identifiers
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"credential_id", event.CredentialID,
		"client_id_hash", hashForLogging(event.ClientID),
		"grant_type", event.GrantType,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs when a token is issued by an initial grant exchange
func (a *Auditor) LogTokenIssued(credentialID, clientID, grantType, scope string, hasRefreshToken bool) {
	a.LogEvent(Event{
		Type:         EventTokenIssued,
		CredentialID: credentialID,
		ClientID:     clientID,
		GrantType:    grantType,
		Details: map[string]any{
			"scope":             scope,
			"has_refresh_token": hasRefreshToken,
		},
	})
}

// LogTokenRefreshed logs when a token is refreshed
func (a *Auditor) LogTokenRefreshed(credentialID, clientID string, rotated bool) {
	a.LogEvent(Event{
		Type:         EventTokenRefreshed,
		CredentialID: credentialID,
		ClientID:     clientID,
		GrantType:    "refresh_token",
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogTokenRevoked logs when a token is revoked
func (a *Auditor) LogTokenRevoked(credentialID, clientID, tokenTypeHint string) {
	a.LogEvent(Event{
		Type:         EventTokenRevoked,
		CredentialID: credentialID,
		ClientID:     clientID,
		Details: map[string]any{
			"token_type_hint": tokenTypeHint,
		},
	})
}

// LogRefreshTokenInvalidated logs when a refresh token is rejected with invalid_grant
func (a *Auditor) LogRefreshTokenInvalidated(credentialID, clientID, description string) {
	a.LogEvent(Event{
		Type:         EventRefreshTokenInvalidated,
		CredentialID: credentialID,
		ClientID:     clientID,
		GrantType:    "refresh_token",
		Details: map[string]any{
			"description": description,
		},
	})
}

// LogExchangeFailure logs a rejected exchange
func (a *Auditor) LogExchangeFailure(credentialID, clientID, grantType, code string) {
	a.LogEvent(Event{
		Type:         EventExchangeFailed,
		CredentialID: credentialID,
		ClientID:     clientID,
		GrantType:    grantType,
		Details: map[string]any{
			"error": code,
		},
	})
}

// LogCredentialDestroyed logs when a credential's secrets are cleared
func (a *Auditor) LogCredentialDestroyed(credentialID, clientID string) {
	a.LogEvent(Event{
		Type:         EventCredentialDestroyed,
		CredentialID: credentialID,
		ClientID:     clientID,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
