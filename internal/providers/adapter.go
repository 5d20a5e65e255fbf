// Package providers is the boundary to the IDV vendors. Every vendor
// adapter turns its own result payload into identity.RawIdentityFields and
// reports failures through ProviderError.
package providers

import (
	"context"
	"fmt"

	"idserver/internal/identity"
	dErrors "idserver/pkg/domain-errors"
)

//go:generate mockgen -source=adapter.go -destination=mocks/mocks.go -package=mocks Adapter

// Adapter fetches and cleans up a vendor verification.
type Adapter interface {
	// FetchVerificationResult returns normalized identity fields for an
	// approved verification, a verification_failed ProviderError for a
	// rejected one, and a transient ProviderError when the vendor could not
	// be reached.
	FetchVerificationResult(ctx context.Context, ref string) (*identity.RawIdentityFields, error)
	// DeleteRemoteSession removes the vendor's copy of the PII.
	DeleteRemoteSession(ctx context.Context, ref string) error
}

// Registry holds one Adapter per vendor.
type Registry struct {
	adapters map[identity.Provider]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[identity.Provider]Adapter)}
}

// Register adds an adapter for p.
func (r *Registry) Register(p identity.Provider, a Adapter) error {
	if !p.IsValid() {
		return fmt.Errorf("unknown provider %q", p)
	}
	if _, exists := r.adapters[p]; exists {
		return fmt.Errorf("provider %s already registered", p)
	}
	r.adapters[p] = a
	return nil
}

// Get returns the adapter for p.
func (r *Registry) Get(p identity.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnavailable, "no adapter configured for idvProvider "+string(p))
	}
	return a, nil
}
