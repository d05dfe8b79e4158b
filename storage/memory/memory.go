// Package memory provides an in-memory implementation of storage.StateStore.
// It is suitable for development, testing, and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
)

// storageType labels spans and metrics
const storageType = "memory"

// Store is an in-memory implementation of storage.StateStore.
type Store struct {
	mu sync.RWMutex

	// Persisted states (refresh token sealed if encryptor is set)
	states map[string]*storage.PersistedState

	// Security
	encryptor *security.Encryptor // Refresh token encryption (optional)

	// Instrumentation
	telemetry *storage.Telemetry

	// Atomic counter for metrics (lock-free access during metric collection)
	statesCountAtomic atomic.Int64

	// Retention of states not updated for this long. Zero disables cleanup.
	retention       time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	now    func() time.Time
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.StateStore = (*Store)(nil)

// New creates a new in-memory store without background cleanup
func New() *Store {
	return &Store{
		states:      make(map[string]*storage.PersistedState),
		stopCleanup: make(chan struct{}),
		now:         time.Now,
		logger:      slog.Default(),
	}
}

// NewWithRetention creates a store that drops states not saved for longer
// than retention, checking every cleanupInterval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithRetention(retention, cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := New()
	s.retention = retention
	s.cleanupInterval = cleanupInterval

	if retention > 0 {
		// Start background cleanup
		go s.cleanupLoop()
	}

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetEncryptor sets the encryptor for refresh tokens held by the store
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Refresh token encryption enabled for memory storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = storage.NewTelemetry(inst, storageType)
	s.statesCountAtomic.Store(int64(len(s.states)))
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// Count returns the number of stored states
func (s *Store) Count() int64 {
	return s.statesCountAtomic.Load()
}

// SaveState stores a copy of state, sealing its refresh token
func (s *Store) SaveState(ctx context.Context, state *storage.PersistedState) (err error) {
	s.mu.RLock()
	telemetry, encryptor := s.telemetry, s.encryptor
	s.mu.RUnlock()

	ctx, span := telemetry.Start(ctx, "save_state")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Finish(ctx, span, "save_state", err, start) }()

	if err = state.Validate(); err != nil {
		return err
	}

	sealed, err := storage.SealState(ctx, state, encryptor, telemetry.Metrics())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sealed.UpdatedAt = s.now()
	if _, existed := s.states[sealed.CredentialID]; !existed {
		s.statesCountAtomic.Add(1)
	}
	s.states[sealed.CredentialID] = sealed

	s.logger.Debug("Saved credential state", "state", sealed)
	return nil
}

// LoadState returns a copy of the state of credentialID
func (s *Store) LoadState(ctx context.Context, credentialID string) (_ *storage.PersistedState, err error) {
	s.mu.RLock()
	telemetry, encryptor := s.telemetry, s.encryptor
	stored, ok := s.states[credentialID]
	s.mu.RUnlock()

	ctx, span := telemetry.Start(ctx, "load_state")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Finish(ctx, span, "load_state", err, start) }()

	if !ok {
		return nil, storage.ErrStateNotFound
	}

	state, err := storage.OpenState(ctx, stored, encryptor, telemetry.Metrics())
	if err != nil {
		return nil, fmt.Errorf("failed to load state for credential %s: %w", credentialID, err)
	}
	return state, nil
}

// DeleteState removes the state of credentialID
func (s *Store) DeleteState(ctx context.Context, credentialID string) error {
	s.mu.Lock()
	telemetry := s.telemetry
	_, existed := s.states[credentialID]
	delete(s.states, credentialID)
	if existed {
		s.statesCountAtomic.Add(-1)
	}
	s.mu.Unlock()

	ctx, span := telemetry.Start(ctx, "delete_state")
	defer span.End()
	telemetry.Finish(ctx, span, "delete_state", nil, time.Now())

	if existed {
		s.logger.Debug("Deleted credential state", "credential_id", credentialID)
	}
	return nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	cleaned := 0
	for id, state := range s.states {
		if state.UpdatedAt.Before(cutoff) {
			delete(s.states, id)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.statesCountAtomic.Add(int64(-cleaned))
		s.logger.Debug("Cleaned up stale credential states", "count", cleaned)
	}
}
