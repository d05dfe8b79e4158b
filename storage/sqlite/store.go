// Package sqlite provides a SQLite-backed implementation of storage.StateStore
// for CLIs and single-host services that resume credentials across restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
	"github.com/giantswarm/oauth-credentials/storage/sqlite/migrations"
)

const (
	storageType    = "sqlite"
	migrationTable = "schema_migrations"

	// fileMode restricts the database (and its journal, which SQLite creates
	// with the same mode) to the owner
	fileMode = 0o600
)

// Store persists credential state in SQLite.
type Store struct {
	sqlDB *sql.DB

	mu        sync.RWMutex
	encryptor *security.Encryptor
	telemetry *storage.Telemetry
	logger    *slog.Logger
	now       func() time.Time
}

// Compile-time interface check
var _ storage.StateStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite state store at path and applies the embedded schema.
// The database file is created owner-readable only.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)

	f, err := os.OpenFile(cleanPath, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return nil, fmt.Errorf("create sqlite file: %w", err)
	}
	_ = f.Close()
	if err := os.Chmod(cleanPath, fileMode); err != nil {
		return nil, fmt.Errorf("restrict sqlite file permissions: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		sqlDB:  sqlDB,
		logger: slog.Default(),
		now:    time.Now,
	}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetEncryptor enables encryption of stored refresh tokens
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Refresh token encryption enabled for SQLite storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = storage.NewTelemetry(inst, storageType)
}

func (s *Store) deps() (*storage.Telemetry, *security.Encryptor, *slog.Logger) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.telemetry, s.encryptor, s.logger
}

// SaveState inserts or replaces the state of state.CredentialID
func (s *Store) SaveState(ctx context.Context, state *storage.PersistedState) (err error) {
	telemetry, encryptor, logger := s.deps()
	ctx, span := telemetry.Start(ctx, "save_state")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Finish(ctx, span, "save_state", err, start) }()

	if err = ctx.Err(); err != nil {
		return err
	}
	if err = state.Validate(); err != nil {
		return err
	}

	sealed, err := storage.SealState(ctx, state, encryptor, telemetry.Metrics())
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO credential_state (
		   credential_id,
		   grant_type,
		   client_id,
		   tenant,
		   scope,
		   refresh_token,
		   expires_at,
		   updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(credential_id) DO UPDATE SET
		   grant_type = excluded.grant_type,
		   client_id = excluded.client_id,
		   tenant = excluded.tenant,
		   scope = excluded.scope,
		   refresh_token = excluded.refresh_token,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		sealed.CredentialID,
		sealed.GrantType.String(),
		sealed.ClientID,
		sealed.Tenant,
		sealed.Scope,
		sealed.RefreshToken,
		toMillis(sealed.ExpiresAt),
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save credential state: %w", err)
	}

	logger.Debug("Saved credential state", "state", state)
	return nil
}

// LoadState returns the state of credentialID
func (s *Store) LoadState(ctx context.Context, credentialID string) (_ *storage.PersistedState, err error) {
	telemetry, encryptor, _ := s.deps()
	ctx, span := telemetry.Start(ctx, "load_state")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Finish(ctx, span, "load_state", err, start) }()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	var (
		state     storage.PersistedState
		grantType string
		expiresAt int64
		updatedAt int64
	)
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT credential_id, grant_type, client_id, tenant, scope, refresh_token, expires_at, updated_at
		 FROM credential_state WHERE credential_id = ?`,
		credentialID,
	)
	err = row.Scan(
		&state.CredentialID,
		&grantType,
		&state.ClientID,
		&state.Tenant,
		&state.Scope,
		&state.RefreshToken,
		&expiresAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrStateNotFound
		}
		return nil, fmt.Errorf("load credential state: %w", err)
	}
	state.GrantType = oauth.GrantType(grantType)
	state.ExpiresAt = fromMillis(expiresAt)
	state.UpdatedAt = fromMillis(updatedAt)

	return storage.OpenState(ctx, &state, encryptor, telemetry.Metrics())
}

// DeleteState removes the state of credentialID
func (s *Store) DeleteState(ctx context.Context, credentialID string) (err error) {
	telemetry, _, logger := s.deps()
	ctx, span := telemetry.Start(ctx, "delete_state")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Finish(ctx, span, "delete_state", err, start) }()

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM credential_state WHERE credential_id = ?`, credentialID)
	if err != nil {
		return fmt.Errorf("delete credential state: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Debug("Deleted credential state", "credential_id", credentialID)
	}
	return nil
}

// applyMigrations executes embedded migrations at most once per file
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`, migrationTable)
	if _, err := sqlDB.Exec(createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		var found int
		err := sqlDB.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.Exec(upMigration(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}

	return nil
}

// upMigration returns the SQL in the -- +migrate Up section
func upMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, down)
	if downIdx == -1 {
		return content[upIdx+len(up):]
	}
	return content[upIdx+len(up) : downIdx]
}
