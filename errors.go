package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
	ErrorCodeTemporarilyUnavail   = "temporarily_unavailable"
	ErrorCodeAccessDenied         = "access_denied"

	// Device authorization grant (RFC 8628 section 3.5)
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeExpiredToken         = "expired_token"
)

// ErrReauthorizationRequired is returned when a credential holds no usable
// token and has no refresh path. The caller must restart the grant-specific
// flow (authorization URL, device code, password exchange).
var ErrReauthorizationRequired = errors.New("reauthorization required")

// ConfigurationError reports a missing or invalid builder input.
// It is never retryable.
type ConfigurationError struct {
	Field  string // Config field that failed validation, e.g. "client_id"
	Reason string // Human-readable reason
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// MissingField creates a configuration error for a required field that is absent
func MissingField(field string) *ConfigurationError {
	return NewConfigurationError(field, "is required")
}

// TransportError reports a network-level failure talking to the token endpoint
// (connection error, timeout, cancelled request). The response, if any, was
// never parsed.
type TransportError struct {
	Op  string // Operation, e.g. "token", "device_authorization", "revoke"
	URL string // Endpoint URL (never contains secrets)

	// PreSend is true when the request failed before any byte reached the wire.
	// Only such failures are retried internally.
	PreSend bool

	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request to %s failed: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying transport error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolErrorKind distinguishes unparseable responses from explicit refusals.
type ProtocolErrorKind int

const (
	// MalformedResponse means the provider answered with a body that does not
	// match the expected shape (including a 2xx response without access_token).
	MalformedResponse ProtocolErrorKind = iota + 1

	// Rejected means the provider explicitly refused the request with a
	// standard OAuth error payload.
	Rejected
)

// String returns the kind name
func (k ProtocolErrorKind) String() string {
	switch k {
	case MalformedResponse:
		return "malformed_response"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ProtocolError represents an OAuth 2.0 level failure returned by the token endpoint
type ProtocolError struct {
	Kind        ProtocolErrorKind
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	URI         string // Optional error_uri
	Status      int    // HTTP status code
	Err         error  // Decoding error for MalformedResponse
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	if e.Kind == MalformedResponse {
		if e.Err != nil {
			return fmt.Sprintf("malformed token response (status %d): %v", e.Status, e.Err)
		}
		return fmt.Sprintf("malformed token response (status %d): %s", e.Status, e.Description)
	}
	if e.Code == "" {
		return fmt.Sprintf("request rejected with status %d: %s", e.Status, e.Description)
	}
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the decoding error, if any
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewRejectedError creates a Rejected protocol error
func NewRejectedError(code, description string, status int) *ProtocolError {
	return &ProtocolError{
		Kind:        Rejected,
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// NewMalformedError creates a MalformedResponse protocol error
func NewMalformedError(status int, description string, err error) *ProtocolError {
	return &ProtocolError{
		Kind:        MalformedResponse,
		Description: description,
		Status:      status,
		Err:         err,
	}
}

// ReauthorizationError wraps ErrReauthorizationRequired with the reason the
// credential lost its refresh path.
type ReauthorizationError struct {
	Reason string
	Err    error // Cause, e.g. the invalid_grant ProtocolError
}

// Error implements the error interface
func (e *ReauthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrReauthorizationRequired, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrReauthorizationRequired, e.Reason)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As
func (e *ReauthorizationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrReauthorizationRequired}
	}
	return []error{ErrReauthorizationRequired, e.Err}
}

// NewReauthorizationError creates a reauthorization error
func NewReauthorizationError(reason string, cause error) *ReauthorizationError {
	return &ReauthorizationError{Reason: reason, Err: cause}
}

// ErrorCode returns the OAuth error code carried by err, or "" if err is not
// a Rejected protocol error.
func ErrorCode(err error) string {
	var perr *ProtocolError
	if errors.As(err, &perr) && perr.Kind == Rejected {
		return perr.Code
	}
	return ""
}

// IsInvalidGrant reports whether err is an invalid_grant rejection, meaning the
// authorization code or refresh token is dead.
func IsInvalidGrant(err error) bool {
	return ErrorCode(err) == ErrorCodeInvalidGrant
}

// IsRetryable reports whether the caller may retry the operation that produced
// err without changing its inputs. Transport failures and transient provider
// errors are retryable; configuration errors, malformed responses, explicit
// rejections and reauthorization errors are not. Device-code polling codes are
// handled by the polling loop and are not considered retryable here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var terr *TransportError
	if errors.As(err, &terr) {
		return true
	}

	var perr *ProtocolError
	if errors.As(err, &perr) && perr.Kind == Rejected {
		switch perr.Code {
		case ErrorCodeServerError, ErrorCodeTemporarilyUnavail:
			return true
		}
		return perr.Status >= http.StatusInternalServerError
	}

	return false
}
