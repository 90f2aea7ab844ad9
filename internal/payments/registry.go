package payments

import (
	"fmt"
	"sort"
	"sync"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
)

// Registry resolves provider integrations by id.
type Registry struct {
	mu        sync.RWMutex
	providers map[boxoffice.ProviderID]boxoffice.PaymentProvider
}

// NewRegistry registers the given providers.
func NewRegistry(providers ...boxoffice.PaymentProvider) (*Registry, error) {
	registry := &Registry{providers: make(map[boxoffice.ProviderID]boxoffice.PaymentProvider, len(providers))}
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a provider; ids must be unique.
func (registry *Registry) Register(provider boxoffice.PaymentProvider) error {
	if provider == nil {
		return fmt.Errorf("%w: provider is nil", boxoffice.ErrInvalidServiceConfig)
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.providers[provider.ID()]; exists {
		return fmt.Errorf("%w: provider %s registered twice", boxoffice.ErrInvalidServiceConfig, provider.ID())
	}
	registry.providers[provider.ID()] = provider
	return nil
}

// Provider implements boxoffice.ProviderSet.
func (registry *Registry) Provider(id boxoffice.ProviderID) (boxoffice.PaymentProvider, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	provider, ok := registry.providers[id]
	return provider, ok
}

// IDs lists registered provider ids in name order.
func (registry *Registry) IDs() []boxoffice.ProviderID {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	ids := make([]boxoffice.ProviderID, 0, len(registry.providers))
	for id := range registry.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(left, right int) bool { return ids[left] < ids[right] })
	return ids
}
