package credential

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/giantswarm/oauth-credentials/instrumentation"
)

// ErrDuplicateCredential is returned when a registry already holds the ID
var ErrDuplicateCredential = errors.New("credential already registered")

// Registry maps credential IDs to credentials. It is an explicit collaborator
// owned by the caller, not a process-wide cache.
type Registry struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{creds: make(map[string]*Credential)}
}

// Add registers c under its ID
func (r *Registry) Add(c *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[c.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCredential, c.ID())
	}
	r.creds[c.ID()] = c
	return nil
}

// Get returns the credential registered under id
func (r *Registry) Get(id string) (*Credential, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creds[id]
	return c, ok
}

// Remove unregisters and closes the credential registered under id. It
// reports whether one was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	c, ok := r.creds[id]
	delete(r.creds, id)
	r.mu.Unlock()

	if ok {
		_ = c.Close()
	}
	return ok
}

// IDs returns the registered IDs in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.creds))
	for id := range r.creds {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Len returns the number of registered credentials
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.creds)
}

// RegisterMetrics reports the registry size on the active credentials gauge
func (r *Registry) RegisterMetrics(inst *instrumentation.Instrumentation) error {
	return inst.RegisterCredentialCountCallback(func() int64 {
		return int64(r.Len())
	})
}

// Close closes and unregisters every credential
func (r *Registry) Close() error {
	r.mu.Lock()
	creds := r.creds
	r.creds = make(map[string]*Credential)
	r.mu.Unlock()

	var errs []error
	for _, c := range creds {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
