package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Exchange results recorded on oauth.token.exchanges.total
const (
	ResultSuccess   = "success"
	ResultRejected  = "rejected"
	ResultMalformed = "malformed"
	ResultTransport = "transport_error"
)

// Acquire results recorded on oauth.acquire.total
const (
	AcquireCacheHit       = "cache_hit"
	AcquireRefreshed      = "refreshed"
	AcquireReauthRequired = "reauthorization_required"
	AcquireError          = "error"
)

// Metrics holds all metric instruments for the credential library
type Metrics struct {
	// Token endpoint metrics
	TokenExchangesTotal   metric.Int64Counter
	TokenExchangeDuration metric.Float64Histogram
	TransportRetries      metric.Int64Counter
	DeviceAuthorizations  metric.Int64Counter
	DevicePolls           metric.Int64Counter
	TokenRevoked          metric.Int64Counter

	// Credential metrics
	AcquireTotal      metric.Int64Counter
	TokenRefreshed    metric.Int64Counter
	CredentialsActive metric.Int64ObservableGauge

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Provider Metrics
	ProviderDiscoveryTotal metric.Int64Counter

	// Audit Metrics
	AuditEventsTotal metric.Int64Counter

	// Encryption Metrics
	EncryptionOperationsTotal metric.Int64Counter
	EncryptionDuration        metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	endpointMeter := inst.Meter("endpoint")
	credentialMeter := inst.Meter("credential")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")
	securityMeter := inst.Meter("security")

	var err error
	m.TokenExchangesTotal, err = endpointMeter.Int64Counter(
		"oauth.token.exchanges.total",
		metric.WithDescription("Total number of token endpoint exchanges"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.exchanges.total counter: %w", err)
	}

	m.TokenExchangeDuration, err = endpointMeter.Float64Histogram(
		"oauth.token.exchange.duration",
		metric.WithDescription("Token endpoint exchange duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.exchange.duration histogram: %w", err)
	}

	m.TransportRetries, err = endpointMeter.Int64Counter(
		"oauth.transport.retries.total",
		metric.WithDescription("Number of internal retries after pre-send transport failures"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport.retries.total counter: %w", err)
	}

	m.DeviceAuthorizations, err = endpointMeter.Int64Counter(
		"oauth.device.authorizations.total",
		metric.WithDescription("Number of device authorization requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create device.authorizations.total counter: %w", err)
	}

	m.DevicePolls, err = endpointMeter.Int64Counter(
		"oauth.device.polls.total",
		metric.WithDescription("Number of device code poll attempts"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create device.polls.total counter: %w", err)
	}

	m.TokenRevoked, err = endpointMeter.Int64Counter(
		"oauth.token.revoked",
		metric.WithDescription("Number of tokens revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.revoked counter: %w", err)
	}

	m.AcquireTotal, err = credentialMeter.Int64Counter(
		"oauth.acquire.total",
		metric.WithDescription("Number of access token acquisitions by result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create acquire.total counter: %w", err)
	}

	m.TokenRefreshed, err = credentialMeter.Int64Counter(
		"oauth.token.refreshed",
		metric.WithDescription("Number of tokens refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.CredentialsActive, err = credentialMeter.Int64ObservableGauge(
		"oauth.credentials.active",
		metric.WithDescription("Number of credentials held by a registry"),
		metric.WithUnit("{credential}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials.active gauge: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.ProviderDiscoveryTotal, err = providerMeter.Int64Counter(
		"provider.discovery.total",
		metric.WithDescription("Total number of endpoint discovery requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.discovery.total counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"oauth.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.EncryptionOperationsTotal, err = securityMeter.Int64Counter(
		"oauth.encryption.operations.total",
		metric.WithDescription("Total number of encryption/decryption operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.operations.total counter: %w", err)
	}

	m.EncryptionDuration, err = securityMeter.Float64Histogram(
		"oauth.encryption.duration",
		metric.WithDescription("Encryption/decryption operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.duration histogram: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordTokenExchange records one token endpoint exchange
func (m *Metrics) RecordTokenExchange(ctx context.Context, grantType, result string, durationMs float64) {
	m.TokenExchangesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("result", result),
	))
	m.TokenExchangeDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("grant_type", grantType),
	))
}

// RecordTransportRetry records an internal retry after a pre-send failure
func (m *Metrics) RecordTransportRetry(ctx context.Context, operation string) {
	m.TransportRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordDeviceAuthorization records a device authorization request
func (m *Metrics) RecordDeviceAuthorization(ctx context.Context, success bool) {
	m.DeviceAuthorizations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordDevicePoll records a device code poll attempt and its outcome
func (m *Metrics) RecordDevicePoll(ctx context.Context, outcome string) {
	m.DevicePolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordTokenRevocation records a token revocation
func (m *Metrics) RecordTokenRevocation(ctx context.Context, tokenTypeHint string) {
	m.TokenRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token_type_hint", tokenTypeHint),
	))
}

// RecordAcquire records an access token acquisition
func (m *Metrics) RecordAcquire(ctx context.Context, grantType, result string) {
	m.AcquireTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("result", result),
	))
}

// RecordTokenRefresh records a token refresh operation
func (m *Metrics) RecordTokenRefresh(ctx context.Context, grantType string, rotated bool) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.Bool("rotated", rotated),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordProviderDiscovery records an endpoint discovery request
func (m *Metrics) RecordProviderDiscovery(ctx context.Context, provider string, cached bool, err error) {
	m.ProviderDiscoveryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("cached", cached),
		attribute.Bool("success", err == nil),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordEncryptionOperation records an encryption/decryption operation
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
	}

	m.EncryptionOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.EncryptionDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
