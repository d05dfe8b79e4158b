package security

import (
	"log/slog"
	"sync"
	"time"
)

// redacted is printed in place of any secret value
const redacted = "[REDACTED]"

// Secret is a byte buffer holding credential material (client secrets,
// passwords, access and refresh tokens). It never prints its contents and can
// be zeroed in place.
//
// A Secret must not be copied after first use; pass *Secret around.
type Secret struct {
	b []byte
}

// NewSecret copies s into a new Secret. An empty string yields an empty Secret.
func NewSecret(s string) *Secret {
	if s == "" {
		return &Secret{}
	}
	b := make([]byte, len(s))
	copy(b, s)
	return &Secret{b: b}
}

// Reveal returns the secret value. The returned string is a copy and is not
// cleared by Zero; keep its lifetime short.
func (s *Secret) Reveal() string {
	if s == nil {
		return ""
	}
	return string(s.b)
}

// Clone returns an independent copy, or nil for a nil secret
func (s *Secret) Clone() *Secret {
	if s == nil {
		return nil
	}
	b := make([]byte, len(s.b))
	copy(b, s.b)
	return &Secret{b: b}
}

// IsEmpty reports whether the secret holds no value
func (s *Secret) IsEmpty() bool {
	return s == nil || len(s.b) == 0
}

// Zero overwrites the secret's bytes and releases the buffer
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	clear(s.b)
	s.b = nil
}

// String implements fmt.Stringer without exposing the value
func (s *Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer without exposing the value
func (s *Secret) GoString() string {
	return redacted
}

// LogValue implements slog.LogValuer so secrets are redacted in structured logs
func (s *Secret) LogValue() slog.Value {
	if s.IsEmpty() {
		return slog.StringValue("<empty>")
	}
	return slog.StringValue(redacted)
}

// MarshalText refuses to serialize the value; persisted state must go through
// an Encryptor explicitly.
func (s *Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// CachedToken is the token material held by a SecretStore.
// ObtainedAt is the wall-clock instant the token endpoint answered.
type CachedToken struct {
	AccessToken  *Secret
	RefreshToken *Secret
	IDToken      *Secret
	TokenType    string
	Scope        string
	ExpiresIn    time.Duration
	// ExpiryKnown marks an announced lifetime. A positive ExpiresIn implies
	// it; set it explicitly for an announced lifetime of 0.
	ExpiryKnown bool
	ObtainedAt  time.Time
}

// ExpiresAt returns the absolute expiry, or the zero time when the provider
// announced no lifetime. An announced lifetime of 0 expires at ObtainedAt.
func (t *CachedToken) ExpiresAt() time.Time {
	if t == nil || (t.ExpiresIn <= 0 && !t.ExpiryKnown) {
		return time.Time{}
	}
	if t.ExpiresIn < 0 {
		return t.ObtainedAt
	}
	return t.ObtainedAt.Add(t.ExpiresIn)
}

// zero clears all secrets held by the token
func (t *CachedToken) zero() {
	if t == nil {
		return
	}
	t.AccessToken.Zero()
	t.RefreshToken.Zero()
	t.IDToken.Zero()
}

// SecretStore holds the client secret, interactive-flow secrets and the cached
// token of a single credential. It is exclusively owned by that credential.
//
// Token updates replace the whole CachedToken in one step, so readers always
// see either the previous token or the new one, never a mix.
//
// Secret accessors return copies owned by the caller, who should Zero them
// after use; the store may zero its own copies at any time.
type SecretStore struct {
	mu sync.RWMutex

	clientSecret *Secret
	password     *Secret // resource owner password, cleared after first use
	codeVerifier *Secret // PKCE verifier of the pending authorization request
	deviceCode   *Secret // device code of the pending device authorization

	token *CachedToken

	cleared bool
}

// NewSecretStore creates a store holding the given client secret (may be empty)
func NewSecretStore(clientSecret string) *SecretStore {
	return &SecretStore{clientSecret: NewSecret(clientSecret)}
}

// ClientSecret returns a copy of the client secret
func (s *SecretStore) ClientSecret() *Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientSecret.Clone()
}

// SetPassword stores the resource owner password
func (s *SecretStore) SetPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password.Zero()
	s.password = NewSecret(password)
}

// Password returns a copy of the resource owner password, or nil
func (s *SecretStore) Password() *Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password.Clone()
}

// ClearPassword zeroes the resource owner password
func (s *SecretStore) ClearPassword() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password.Zero()
	s.password = nil
}

// SetCodeVerifier stores the PKCE verifier of the pending authorization request
func (s *SecretStore) SetCodeVerifier(verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeVerifier.Zero()
	s.codeVerifier = NewSecret(verifier)
}

// CodeVerifier returns a copy of the PKCE verifier, or nil
func (s *SecretStore) CodeVerifier() *Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codeVerifier.Clone()
}

// SetDeviceCode stores the device code of the pending device authorization
func (s *SecretStore) SetDeviceCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceCode.Zero()
	s.deviceCode = NewSecret(code)
}

// DeviceCode returns a copy of the pending device code, or nil
func (s *SecretStore) DeviceCode() *Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceCode.Clone()
}

// ClearPending zeroes the PKCE verifier and device code once a flow completes
func (s *SecretStore) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeVerifier.Zero()
	s.codeVerifier = nil
	s.deviceCode.Zero()
	s.deviceCode = nil
}

// Token returns the cached token, or nil
func (s *SecretStore) Token() *CachedToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// RefreshToken returns a copy of the cached refresh token, or nil
func (s *SecretStore) RefreshToken() *Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil || s.token.RefreshToken.IsEmpty() {
		return nil
	}
	return s.token.RefreshToken.Clone()
}

// View calls fn with the cached token (possibly nil) under the read lock.
// fn must not retain the token or its secrets.
func (s *SecretStore) View(fn func(t *CachedToken)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.token)
}

// SwapToken atomically replaces the cached token. The previous token's
// secrets are zeroed unless they are shared with the new token (a refresh
// response without a rotated refresh token keeps the old one).
func (s *SecretStore) SwapToken(next *CachedToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		next.zero()
		return
	}

	prev := s.token
	s.token = next
	if prev == nil {
		return
	}
	if next == nil {
		prev.zero()
		return
	}
	if prev.AccessToken != next.AccessToken {
		prev.AccessToken.Zero()
	}
	if prev.RefreshToken != next.RefreshToken {
		prev.RefreshToken.Zero()
	}
	if prev.IDToken != next.IDToken {
		prev.IDToken.Zero()
	}
}

// DropToken zeroes and removes the cached token
func (s *SecretStore) DropToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token.zero()
	s.token = nil
}

// Clear synchronously zeroes every secret in the store. The store rejects
// further tokens afterwards.
func (s *SecretStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientSecret.Zero()
	s.password.Zero()
	s.codeVerifier.Zero()
	s.deviceCode.Zero()
	s.token.zero()
	s.password = nil
	s.codeVerifier = nil
	s.deviceCode = nil
	s.token = nil
	s.cleared = true
}

// Cleared reports whether Clear has been called
func (s *SecretStore) Cleared() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cleared
}
