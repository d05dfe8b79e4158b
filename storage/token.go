package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
)

// SealState returns a copy of state with the refresh token encrypted for
// its record. The credential ID is bound to the ciphertext, so a sealed token
// cannot be replayed under another credential.
// If encryptor is nil or disabled, the copy is returned unchanged.
func SealState(ctx context.Context, state *PersistedState, encryptor *security.Encryptor, metrics *instrumentation.Metrics) (*PersistedState, error) {
	sealed := state.Clone()
	if encryptor == nil || !encryptor.IsEnabled() || sealed.RefreshToken == "" {
		return sealed, nil
	}

	start := time.Now()
	ct, err := encryptor.Encrypt(sealed.CredentialID, sealed.RefreshToken)
	if metrics != nil {
		metrics.RecordEncryptionOperation(ctx, "encrypt", float64(time.Since(start).Microseconds())/1000.0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	sealed.RefreshToken = ct
	return sealed, nil
}

// OpenState reverses SealState, returning a copy with the plaintext refresh token
func OpenState(ctx context.Context, state *PersistedState, encryptor *security.Encryptor, metrics *instrumentation.Metrics) (*PersistedState, error) {
	opened := state.Clone()
	if encryptor == nil || !encryptor.IsEnabled() || opened.RefreshToken == "" {
		return opened, nil
	}

	start := time.Now()
	pt, err := encryptor.Decrypt(opened.CredentialID, opened.RefreshToken)
	if metrics != nil {
		metrics.RecordEncryptionOperation(ctx, "decrypt", float64(time.Since(start).Microseconds())/1000.0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	opened.RefreshToken = pt
	return opened, nil
}
