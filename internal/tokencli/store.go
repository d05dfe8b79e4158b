package tokencli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
	"github.com/giantswarm/oauth-credentials/security"
	"github.com/giantswarm/oauth-credentials/storage"
	"github.com/giantswarm/oauth-credentials/storage/memory"
	"github.com/giantswarm/oauth-credentials/storage/sqlite"
	"github.com/giantswarm/oauth-credentials/storage/valkey"
)

// openStore opens the configured state store. A nil store disables
// persistence; close is always safe to call.
func openStore(cfg Config, logger *slog.Logger, inst *instrumentation.Instrumentation) (storage.StateStore, func(), error) {
	noop := func() {}

	var enc *security.Encryptor
	if cfg.EncryptionKey != "" {
		key, err := security.KeyFromBase64(cfg.EncryptionKey)
		if err != nil {
			return nil, noop, oauth.NewConfigurationError("encryption_key", err.Error())
		}
		enc, err = security.NewEncryptor(key)
		if err != nil {
			return nil, noop, oauth.NewConfigurationError("encryption_key", err.Error())
		}
	}

	switch cfg.Store {
	case "none":
		return nil, noop, nil

	case "memory":
		s := memory.New()
		s.SetLogger(logger)
		s.SetEncryptor(enc)
		s.SetInstrumentation(inst)
		return s, s.Stop, nil

	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			var err error
			if path, err = defaultDBPath(); err != nil {
				return nil, noop, err
			}
		}
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, noop, fmt.Errorf("open state store: %w", err)
		}
		s.SetLogger(logger)
		s.SetEncryptor(enc)
		s.SetInstrumentation(inst)
		logger.Debug("Using sqlite state store", "path", path)
		return s, func() { _ = s.Close() }, nil

	case "valkey":
		s, err := valkey.New(valkey.Config{
			Address:  cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			Logger:   logger,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open state store: %w", err)
		}
		s.SetEncryptor(enc)
		s.SetInstrumentation(inst)
		return s, s.Close, nil
	}

	return nil, noop, oauth.NewConfigurationError("store", fmt.Sprintf("unknown store %q", cfg.Store))
}

// defaultDBPath places the database in the user configuration directory
func defaultDBPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	dir = filepath.Join(dir, "oauth-token")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return filepath.Join(dir, "oauth-token.db"), nil
}
