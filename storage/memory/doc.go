// Package memory provides an in-memory implementation of the credential state store.
//
// This package implements storage.StateStore using a Go map with mutex
// protection for thread safety. It is suitable for development, testing, and
// single-process deployments where persistence across restarts is not required.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Optional cleanup of states not saved within a retention period
//   - Refresh token encryption support via Encryptor
//   - Storage metrics and spans via instrumentation
//
// For persistence across restarts use storage/sqlite, and for state shared by
// several processes use storage/valkey.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	cred, _ := credential.Build(oauth.GrantAuthorizationCode, cfg, credential.WithStore(store))
package memory
