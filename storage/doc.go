// Package storage defines the persisted credential state and the StateStore
// interface used to keep it across process restarts.
//
// Only what is needed to resume a credential without user interaction is
// persisted: grant type, client ID, the refresh token and the expiry of the
// last access token. Access tokens are never written.
//
// This package also provides helpers shared by store implementations: sealing
// and opening the refresh token with a security.Encryptor, and tracing and
// metrics for storage operations.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for tests and single-process use
//   - storage/sqlite: SQLite file storage for CLIs and single-host services
//   - storage/valkey: Valkey/Redis-compatible distributed storage
package storage
