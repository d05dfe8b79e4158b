// Package mock provides a mock implementation of the providers.Resolver
// interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	oauth "github.com/giantswarm/oauth-credentials"
)

// MockResolver is a mock implementation of the Resolver interface for testing
type MockResolver struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// EndpointsFunc is called when Endpoints() is invoked
	EndpointsFunc func(ctx context.Context) (oauth.Endpoints, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockResolver creates a new mock resolver with default implementations
func NewMockResolver() *MockResolver {
	return &MockResolver{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		EndpointsFunc: func(ctx context.Context) (oauth.Endpoints, error) {
			return oauth.Endpoints{
				AuthURL:       "https://mock.example.com/authorize",
				TokenURL:      "https://mock.example.com/token",
				DeviceAuthURL: "https://mock.example.com/devicecode",
				RevocationURL: "https://mock.example.com/revoke",
			}, nil
		},
	}
}

// Name returns the provider name
func (m *MockResolver) Name() string {
	// LOCK PATTERN: Lock only to update counter and read function reference.
	// The user function runs unlocked since it may call other mock methods.
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()

	if fn == nil {
		return "mock"
	}
	return fn()
}

// Endpoints returns the mocked endpoints
func (m *MockResolver) Endpoints(ctx context.Context) (oauth.Endpoints, error) {
	m.mu.Lock()
	m.CallCounts["Endpoints"]++
	fn := m.EndpointsFunc
	m.mu.Unlock()
	if fn == nil {
		return oauth.Endpoints{}, fmt.Errorf("EndpointsFunc not configured")
	}
	return fn(ctx)
}

// ResetCallCounts resets all call counters
func (m *MockResolver) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockResolver) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
