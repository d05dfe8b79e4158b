package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
)

// Test constants for consistent naming
const (
	testCredentialID = "test-credential"
	testRefreshToken = "test-refresh-token"
)

// testStore creates a test store connected to a local Valkey instance.
// Tests will be skipped if the connection fails.
// Each test gets a unique prefix to ensure test isolation.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	// Generate a unique prefix for this test to ensure isolation
	prefix := fmt.Sprintf("oauthcredtest:%s:", t.Name())

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	// Clean up test keys before and after test
	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	cleanupTestKeys(t, store)
	return store
}

// cleanupTestKeys removes all test keys from Valkey
func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	pattern := s.prefix + "*"

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}

		for _, key := range result.Elements {
			_ = s.client.Do(ctx, s.client.B().Del().Key(key).Build())
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
}

func testState() *storage.PersistedState {
	return &storage.PersistedState{
		CredentialID: testCredentialID,
		GrantType:    oauth.GrantAuthorizationCode,
		ClientID:     "client-1",
		Tenant:       "common",
		RefreshToken: testRefreshToken,
		ExpiresAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ============================================================
// Config Tests
// ============================================================

func TestNew_MissingAddress(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNew_InvalidAddress(t *testing.T) {
	_, err := New(Config{Address: "invalid:99999"})
	require.Error(t, err)
}

// ============================================================
// Record Encoding Tests (no server required)
// ============================================================

func TestDecodeState(t *testing.T) {
	data, err := json.Marshal(testState())
	require.NoError(t, err)

	got, err := decodeState(data)
	require.NoError(t, err)
	assert.Equal(t, testCredentialID, got.CredentialID)
	assert.Equal(t, oauth.GrantAuthorizationCode, got.GrantType)
	assert.Equal(t, testRefreshToken, got.RefreshToken)
	assert.True(t, got.ExpiresAt.Equal(testState().ExpiresAt))
}

func TestDecodeState_Invalid(t *testing.T) {
	_, err := decodeState([]byte("{not json"))
	assert.Error(t, err)

	_, err = decodeState([]byte(strings.Repeat("x", MaxStateDataSize+1)))
	assert.ErrorIs(t, err, errInputTooLarge)
}

func TestStateKey(t *testing.T) {
	s := &Store{prefix: "p:"}
	assert.Equal(t, "p:state:abc", s.stateKey("abc"))
}

// ============================================================
// StateStore Tests
// ============================================================

func TestStateStore_SaveAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, testState()))

	got, err := s.LoadState(ctx, testCredentialID)
	require.NoError(t, err)
	assert.Equal(t, testRefreshToken, got.RefreshToken)
	assert.Equal(t, "client-1", got.ClientID)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestStateStore_LoadState_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.LoadState(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrStateNotFound)
}

func TestStateStore_SaveState_Invalid(t *testing.T) {
	s := testStore(t)

	state := testState()
	state.ClientID = ""
	assert.ErrorIs(t, s.SaveState(context.Background(), state), storage.ErrInvalidState)
}

func TestStateStore_DeleteState(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, testState()))
	require.NoError(t, s.DeleteState(ctx, testCredentialID))

	_, err := s.LoadState(ctx, testCredentialID)
	assert.ErrorIs(t, err, storage.ErrStateNotFound)

	// Deleting a missing record is not an error
	assert.NoError(t, s.DeleteState(ctx, testCredentialID))
}

func TestStateStore_TTL(t *testing.T) {
	s := testStore(t)
	s.stateTTL = time.Hour
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, testState()))

	ttl, err := s.client.Do(ctx, s.client.B().Ttl().Key(s.stateKey(testCredentialID)).Build()).AsInt64()
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))
	assert.LessOrEqual(t, ttl, int64(3600))
}

func TestStateStore_Encryption(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)
	s.SetEncryptor(enc)
	s.SetInstrumentation(instrumentation.NewNoop())

	require.NoError(t, s.SaveState(ctx, testState()))

	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.stateKey(testCredentialID)).Build()).ToString()
	require.NoError(t, err)
	assert.NotContains(t, raw, testRefreshToken, "refresh token must be encrypted at rest")

	got, err := s.LoadState(ctx, testCredentialID)
	require.NoError(t, err)
	assert.Equal(t, testRefreshToken, got.RefreshToken)
}
