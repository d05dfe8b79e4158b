package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauthcred:"

	// storageType labels spans and metrics
	storageType = "valkey"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxStateDataSize is the maximum size of a serialized state record (64KB)
	// This prevents memory exhaustion from large payloads
	MaxStateDataSize = 64 * 1024
)

// errInputTooLarge is generic to prevent information leakage
var errInputTooLarge = errors.New("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauthcred:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// StateTTL expires records not saved again within this period.
	// Set it to the provider's refresh token lifetime. Zero keeps records
	// until deleted.
	StateTTL time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.StateStore.
type Store struct {
	client   valkeygo.Client
	prefix   string
	stateTTL time.Duration
	logger   *slog.Logger

	// encryptor and telemetry are optional
	// Access must be synchronized via mu
	mu        sync.RWMutex
	encryptor *security.Encryptor
	telemetry *storage.Telemetry
}

// Compile-time interface check
var _ storage.StateStore = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Build client options
	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return NewWithClient(client, prefix, cfg.StateTTL, logger), nil
}

// NewWithClient wraps an existing client, e.g. one shared with other
// components of the application.
func NewWithClient(client valkeygo.Client, prefix string, stateTTL time.Duration, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:   client,
		prefix:   prefix,
		stateTTL: stateTTL,
		logger:   logger,
	}
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetEncryptor sets the encryptor for refresh tokens.
// When set, refresh tokens are encrypted before storing in Valkey and
// decrypted when retrieved.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Refresh token encryption enabled for Valkey storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = storage.NewTelemetry(inst, storageType)
}

func (s *Store) deps() (*storage.Telemetry, *security.Encryptor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.telemetry, s.encryptor
}

// SaveState stores the state of state.CredentialID, replacing any previous one
func (s *Store) SaveState(ctx context.Context, state *storage.PersistedState) (err error) {
	telemetry, encryptor := s.deps()
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
	sealed.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Validate serialized size
	if len(data) > MaxStateDataSize {
		return errInputTooLarge
	}

	key := s.stateKey(sealed.CredentialID)

	if s.stateTTL > 0 {
		err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Ex(s.stateTTL).Build()).Error()
	} else {
		err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	if encryptor != nil && encryptor.IsEnabled() {
		s.logger.Debug("Saved encrypted credential state", "credential_id", sealed.CredentialID)
	} else {
		s.logger.Debug("Saved credential state", "credential_id", sealed.CredentialID)
	}
	return nil
}

// LoadState returns the state of credentialID
func (s *Store) LoadState(ctx context.Context, credentialID string) (_ *storage.PersistedState, err error) {
	telemetry, encryptor := s.deps()
	ctx, span := telemetry.Start(ctx, "load_state")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Finish(ctx, span, "load_state", err, start) }()

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.stateKey(credentialID)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	state, err := decodeState([]byte(data))
	if err != nil {
		return nil, err
	}
	return storage.OpenState(ctx, state, encryptor, telemetry.Metrics())
}

// DeleteState removes the state of credentialID
func (s *Store) DeleteState(ctx context.Context, credentialID string) (err error) {
	telemetry, _ := s.deps()
	ctx, span := telemetry.Start(ctx, "delete_state")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Finish(ctx, span, "delete_state", err, start) }()

	if err = s.client.Do(ctx, s.client.B().Del().Key(s.stateKey(credentialID)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	s.logger.Debug("Deleted credential state", "credential_id", credentialID)
	return nil
}

// stateKey returns the key for a credential's state: {prefix}state:{credentialID}
func (s *Store) stateKey(credentialID string) string {
	return fmt.Sprintf("%sstate:%s", s.prefix, credentialID)
}

// decodeState unmarshals a stored record
func decodeState(data []byte) (*storage.PersistedState, error) {
	if len(data) > MaxStateDataSize {
		return nil, errInputTooLarge
	}
	var state storage.PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// isNilError reports whether err is a Valkey nil reply (missing key)
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
