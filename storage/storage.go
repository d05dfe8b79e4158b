package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
)

// Storage errors
var (
	// ErrStateNotFound is returned when no state is stored for a credential
	ErrStateNotFound = errors.New("persisted state not found")

	// ErrInvalidState is returned when a record is missing required fields
	ErrInvalidState = errors.New("invalid persisted state")
)

// MaxIDLength bounds credential and client identifiers accepted by stores
const MaxIDLength = 256

// PersistedState is the record a credential leaves behind across process
// restarts. Access tokens are never part of it; a restored credential always
// re-derives its access token through the refresh token.
type PersistedState struct {
	// CredentialID is the storage key
	CredentialID string `json:"credential_id"`

	GrantType oauth.GrantType `json:"grant_type"`
	ClientID  string          `json:"client_id"`
	Tenant    string          `json:"tenant,omitempty"`
	Scope     string          `json:"scope,omitempty"`

	// RefreshToken is secret. Stores encrypt it when an Encryptor is set.
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is the expiry of the access token that was held when the
	// state was saved (zero when unknown)
	ExpiresAt time.Time `json:"expires_at"`

	// UpdatedAt is set by the store on save
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the record can be stored and restored
func (s *PersistedState) Validate() error {
	if s == nil {
		return ErrInvalidState
	}
	switch {
	case strings.TrimSpace(s.CredentialID) == "":
		return errors.Join(ErrInvalidState, errors.New("credential_id is empty"))
	case len(s.CredentialID) > MaxIDLength:
		return errors.Join(ErrInvalidState, errors.New("credential_id is too long"))
	case s.GrantType == "":
		return errors.Join(ErrInvalidState, errors.New("grant_type is empty"))
	case strings.TrimSpace(s.ClientID) == "":
		return errors.Join(ErrInvalidState, errors.New("client_id is empty"))
	case len(s.ClientID) > MaxIDLength:
		return errors.Join(ErrInvalidState, errors.New("client_id is too long"))
	case s.RefreshToken == "":
		return errors.Join(ErrInvalidState, errors.New("refresh_token is empty"))
	}
	return nil
}

// Clone returns a copy of the record
func (s *PersistedState) Clone() *PersistedState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// LogValue implements slog.LogValuer; the refresh token is never logged
func (s *PersistedState) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("credential_id", s.CredentialID),
		slog.String("grant_type", s.GrantType.String()),
		slog.String("client_id", s.ClientID),
		slog.Bool("has_refresh_token", s.RefreshToken != ""),
		slog.Time("expires_at", s.ExpiresAt),
	)
}

// StateStore persists credential state keyed by credential ID.
// Implementations must be safe for concurrent use.
type StateStore interface {
	// SaveState stores or replaces the state of state.CredentialID
	SaveState(ctx context.Context, state *PersistedState) error

	// LoadState returns the state of credentialID or ErrStateNotFound
	LoadState(ctx context.Context, credentialID string) (*PersistedState, error)

	// DeleteState removes the state of credentialID. Deleting a missing
	// record is not an error.
	DeleteState(ctx context.Context, credentialID string) error
}
