package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
)

const (
	testCredentialID = "cred-1"
	testRefreshToken = "test-refresh-token"
)

func testState(id string) *storage.PersistedState {
	return &storage.PersistedState{
		CredentialID: id,
		GrantType:    oauth.GrantAuthorizationCode,
		ClientID:     "client-1",
		Tenant:       "common",
		RefreshToken: testRefreshToken,
		ExpiresAt:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_SaveLoadState(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	if err := store.SaveState(ctx, testState(testCredentialID)); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	got, err := store.LoadState(ctx, testCredentialID)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if got.RefreshToken != testRefreshToken {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, testRefreshToken)
	}
	if got.GrantType != oauth.GrantAuthorizationCode {
		t.Errorf("GrantType = %q, want %q", got.GrantType, oauth.GrantAuthorizationCode)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set on save")
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestStore_LoadState_ReturnsCopy(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	state := testState(testCredentialID)
	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	state.RefreshToken = "mutated-after-save"

	got, _ := store.LoadState(ctx, testCredentialID)
	got.RefreshToken = "mutated-after-load"

	again, _ := store.LoadState(ctx, testCredentialID)
	if again.RefreshToken != testRefreshToken {
		t.Errorf("stored state was mutated through a caller copy: %q", again.RefreshToken)
	}
}

func TestStore_LoadState_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.LoadState(context.Background(), "missing")
	if !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("LoadState() error = %v, want ErrStateNotFound", err)
	}
}

func TestStore_SaveState_Invalid(t *testing.T) {
	store := New()
	defer store.Stop()

	tests := []struct {
		name  string
		state *storage.PersistedState
	}{
		{name: "nil", state: nil},
		{name: "empty credential id", state: &storage.PersistedState{GrantType: oauth.GrantRefreshToken, ClientID: "c", RefreshToken: "r"}},
		{name: "empty refresh token", state: &storage.PersistedState{CredentialID: "x", GrantType: oauth.GrantRefreshToken, ClientID: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SaveState(context.Background(), tt.state)
			if !errors.Is(err, storage.ErrInvalidState) {
				t.Errorf("SaveState() error = %v, want ErrInvalidState", err)
			}
		})
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
}

func TestStore_DeleteState(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	_ = store.SaveState(ctx, testState(testCredentialID))
	if err := store.DeleteState(ctx, testCredentialID); err != nil {
		t.Fatalf("DeleteState() error = %v", err)
	}
	if _, err := store.LoadState(ctx, testCredentialID); !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("LoadState() after delete error = %v, want ErrStateNotFound", err)
	}

	// Deleting again is not an error
	if err := store.DeleteState(ctx, testCredentialID); err != nil {
		t.Errorf("DeleteState() of missing state error = %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
}

func TestStore_Encryption(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	store := New()
	defer store.Stop()
	store.SetEncryptor(enc)
	store.SetInstrumentation(instrumentation.NewNoop())
	ctx := context.Background()

	if err := store.SaveState(ctx, testState(testCredentialID)); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	store.mu.RLock()
	raw := store.states[testCredentialID].RefreshToken
	store.mu.RUnlock()
	if raw == testRefreshToken {
		t.Error("refresh token should be encrypted at rest")
	}

	got, err := store.LoadState(ctx, testCredentialID)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if got.RefreshToken != testRefreshToken {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, testRefreshToken)
	}
}

func TestStore_Cleanup(t *testing.T) {
	store := New()
	defer store.Stop()
	store.retention = time.Hour

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	_ = store.SaveState(ctx, testState("old"))
	now = now.Add(2 * time.Hour)
	_ = store.SaveState(ctx, testState("fresh"))

	store.cleanup()

	if _, err := store.LoadState(ctx, "old"); !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("stale state should be cleaned up, got err = %v", err)
	}
	if _, err := store.LoadState(ctx, "fresh"); err != nil {
		t.Errorf("fresh state should survive cleanup, got err = %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.SaveState(ctx, testState(testCredentialID))
			_, _ = store.LoadState(ctx, testCredentialID)
		}()
	}
	wg.Wait()

	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestNewWithRetention_Stop(t *testing.T) {
	store := NewWithRetention(time.Hour, 10*time.Millisecond)
	store.Stop()
	store.Stop() // idempotent
}
