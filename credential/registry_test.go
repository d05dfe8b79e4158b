package credential

import (
	"errors"
	"slices"
	"testing"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/instrumentation"
)

func buildWithID(t *testing.T, id string) *Credential {
	t.Helper()
	c, err := Build(oauth.GrantClientCredentials, baseConfig(), WithID(id))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return c
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	b, a := buildWithID(t, "b"), buildWithID(t, "a")

	for _, c := range []*Credential{b, a} {
		if err := r.Add(c); err != nil {
			t.Fatalf("Add(%s) error = %v", c.ID(), err)
		}
	}
	if err := r.Add(buildWithID(t, "a")); !errors.Is(err, ErrDuplicateCredential) {
		t.Errorf("Add() duplicate error = %v, want ErrDuplicateCredential", err)
	}

	if got, ok := r.Get("a"); !ok || got != a {
		t.Errorf("Get(a) = %v, %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found a credential")
	}
	if got := r.IDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("IDs() = %v", got)
	}

	if !r.Remove("a") {
		t.Error("Remove(a) = false")
	}
	if r.Remove("a") {
		t.Error("second Remove(a) = true")
	}
	if !a.isClosed() {
		t.Error("removed credential not closed")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !b.isClosed() {
		t.Error("credential not closed by registry Close")
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Close = %d", r.Len())
	}
}

func TestRegistry_RegisterMetrics(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterMetrics(instrumentation.NewNoop()); err != nil {
		t.Errorf("RegisterMetrics() error = %v", err)
	}
}
