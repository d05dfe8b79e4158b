// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// credential library.
//
// Instrumentation is disabled by default and then uses no-op providers. When
// enabled, the meter and tracer providers from Config are used, falling back to
// the providers registered globally with otel, so the embedding application
// keeps control of exporters.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-service",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	cred, err := credential.Build(oauth.GrantClientCredentials, cfg,
//		credential.WithInstrumentation(inst))
//
// # Available Metrics
//
// Token endpoint:
//   - oauth.token.exchanges.total{grant_type, result} - Token endpoint exchanges
//   - oauth.token.exchange.duration{grant_type} - Exchange duration in milliseconds
//   - oauth.transport.retries.total{operation} - Internal pre-send retries
//   - oauth.device.authorizations.total{success} - Device authorization requests
//   - oauth.device.polls.total{outcome} - Device code poll attempts
//   - oauth.token.revoked{token_type_hint} - Revocations
//
// Credentials:
//   - oauth.acquire.total{grant_type, result} - Acquire calls (cache_hit, refreshed, ...)
//   - oauth.token.refreshed{grant_type, rotated} - Refreshes
//   - oauth.credentials.active - Credentials held by a registry
//
// Storage:
//   - storage.operation.total{operation, result} - Persisted state operations
//   - storage.operation.duration{operation} - Operation duration in milliseconds
//
// Security:
//   - oauth.audit.events.total{event_type}
//   - oauth.encryption.operations.total{operation}
//   - oauth.encryption.duration{operation}
//
// # Distributed Tracing
//
// Spans:
//
//	credential.acquire
//	└── credential.refresh
//	    └── endpoint.exchange
//	        └── storage.save
//
// # Security Considerations
//
// This package collects observability data, not credentials. Never record
// token values, authorization or device codes, client secrets, passwords or
// PKCE verifiers. Only record metadata (grant types, expiry, result codes).
package instrumentation
