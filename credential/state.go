package credential

import (
	"errors"
	"time"
)

// State is the lifecycle state of a Credential
type State int

const (
	// StateUnauthorized means no usable token and no refresh path: the caller
	// must drive the grant-specific flow.
	StateUnauthorized State = iota

	// StatePendingExchange means a token endpoint exchange is in flight
	StatePendingExchange

	// StateAuthorized means a token is cached and currently valid
	StateAuthorized

	// StateExpired means a token is cached but past expiry; the next Acquire
	// renews it.
	StateExpired

	// StateFailed means the last exchange failed. The cached token, if any,
	// stays usable until its own expiry.
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUnauthorized:
		return "unauthorized"
	case StatePendingExchange:
		return "pending_exchange"
	case StateAuthorized:
		return "authorized"
	case StateExpired:
		return "expired"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollOutcome is the result of one device-code poll attempt
type PollOutcome int

const (
	// PollPending means the user has not completed authorization yet
	PollPending PollOutcome = iota + 1

	// PollSlowDown means the provider asked for a wider poll interval
	PollSlowDown

	// PollAuthorized means the device code was exchanged for a token
	PollAuthorized
)

// String returns the outcome name, used as a metric label
func (o PollOutcome) String() string {
	switch o {
	case PollPending:
		return "authorization_pending"
	case PollSlowDown:
		return "slow_down"
	case PollAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// DeviceAuthorization is what the user needs to complete a device-code login
type DeviceAuthorization struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string

	// ExpiresAt is when the device code expires (zero when not announced)
	ExpiresAt time.Time

	// Interval is the effective poll interval
	Interval time.Duration
}

// Credential errors
var (
	// ErrClosed is returned by operations on a closed credential
	ErrClosed = errors.New("credential is closed")

	// ErrStateMismatch is returned when the state returned with an
	// authorization code does not match the issued one
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrNoPendingAuthorization is returned when a callback state is checked
	// but no authorization URL was issued
	ErrNoPendingAuthorization = errors.New("no pending authorization request")

	// ErrNoDeviceAuthorization is returned when polling without a started
	// device authorization
	ErrNoDeviceAuthorization = errors.New("no device authorization in progress")

	// ErrDeviceCodeExpired is returned when the device code expires before
	// the user completes authorization
	ErrDeviceCodeExpired = errors.New("device code expired")

	// ErrUnsupportedOperation is returned when an operation does not apply
	// to the credential's grant type
	ErrUnsupportedOperation = errors.New("operation not supported for grant type")
)
