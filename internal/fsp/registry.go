package fsp

import (
	"fmt"
	"sort"

	"github.com/fsp-disbursement/internal/domain/shared"
)

// Registry maps provider names to their adapters
type Registry struct {
	adapters map[shared.ProviderName]Adapter
}

// NewRegistry registers the given adapters, rejecting duplicates
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[shared.ProviderName]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, exists := r.adapters[a.Provider()]; exists {
			return nil, fmt.Errorf("adapter for provider %s registered twice", a.Provider())
		}
		r.adapters[a.Provider()] = a
	}
	return r, nil
}

// Adapter returns the adapter for a provider
func (r *Registry) Adapter(provider shared.ProviderName) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

// Querier returns the status querier of a provider, if it supports polling
func (r *Registry) Querier(provider shared.ProviderName) (StatusQuerier, bool) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, false
	}
	q, ok := a.(StatusQuerier)
	return q, ok
}

// CallbackParser returns the webhook parser of a provider, if it pushes status
func (r *Registry) CallbackParser(provider shared.ProviderName) (CallbackParser, bool) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, false
	}
	p, ok := a.(CallbackParser)
	return p, ok
}

// Queriers lists every polling provider in name order
func (r *Registry) Queriers() []StatusQuerier {
	var queriers []StatusQuerier
	for _, name := range r.Providers() {
		if q, ok := r.adapters[name].(StatusQuerier); ok {
			queriers = append(queriers, q)
		}
	}
	return queriers
}

// Providers lists registered provider names in order
func (r *Registry) Providers() []shared.ProviderName {
	names := make([]shared.ProviderName, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
