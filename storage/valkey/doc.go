// Package valkey provides a Valkey storage backend for persisted credential state.
//
// Valkey is a high-performance key-value store that is wire-compatible with Redis.
// This package implements [storage.StateStore], making it suitable for
// deployments where several processes resume the same credentials:
//
//   - Shared state for horizontally scaled workers
//   - Persistence across restarts
//   - Optional TTL-based expiration matching the refresh token lifetime
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauthcred:") to avoid conflicts
// with other applications sharing the same Valkey instance:
//
//	{prefix}state:{credentialID} -> JSON(PersistedState)
//
// # Configuration
//
// Basic usage:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauthcred:",
//	})
//
// With TLS:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	    StateTTL:  90 * 24 * time.Hour,
//	})
//
// # Security Considerations
//
//   - Access tokens are never stored
//   - Refresh tokens are encrypted at rest via SetEncryptor() using AES-256-GCM,
//     with a per-record key bound to the credential ID
//   - TLS support enables encrypted connections to Valkey servers
//   - Input size validation prevents oversized payloads
package valkey
