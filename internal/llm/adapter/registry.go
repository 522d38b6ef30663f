package adapter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/longmans/prompt-agent/internal/metrics"
)

// Factory constructs the handle for one provider.
type Factory func(ctx context.Context, provider ProviderType) (LLMAdapter, error)

// ConfigLookup resolves the current settings for a provider. ok is false for
// providers that have no configuration section at all.
type ConfigLookup func(provider ProviderType) (cfg Config, ok bool)

// NewConfigFactory returns a Factory that builds adapters from lookup.
func NewConfigFactory(lookup ConfigLookup) Factory {
	return func(ctx context.Context, provider ProviderType) (LLMAdapter, error) {
		cfg, ok := lookup(provider)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
		}
		cfg.Provider = provider
		return NewLLMAdapter(ctx, &cfg)
	}
}

// Registry is the process-wide cache of model handles, keyed by provider.
// Concurrent first requests for the same provider share one construction.
type Registry struct {
	factory Factory
	group   singleflight.Group

	mu         sync.RWMutex
	handles    map[ProviderType]LLMAdapter
	generation uint64 // bumped by Reset
}

// NewRegistry creates an empty registry backed by factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		handles: make(map[ProviderType]LLMAdapter),
	}
}

// Get returns the cached handle for provider, constructing it on first use.
func (r *Registry) Get(ctx context.Context, provider ProviderType) (LLMAdapter, error) {
	if h, ok := r.lookup(provider); ok {
		return h, nil
	}

	r.mu.RLock()
	gen := r.generation
	r.mu.RUnlock()

	// Calls started after a Reset must not join a construction from before it.
	key := fmt.Sprintf("%s/%d", provider, gen)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if h, ok := r.lookup(provider); ok {
			return h, nil
		}
		// Construction outlives the first caller's request.
		h, err := r.factory(context.WithoutCancel(ctx), provider)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.generation == gen {
			r.handles[provider] = h
		}
		r.mu.Unlock()
		metrics.ModelHandlesCreated.WithLabelValues(string(provider)).Inc()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(LLMAdapter), nil
}

func (r *Registry) lookup(provider ProviderType) (LLMAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[provider]
	return h, ok
}

// Cached returns the providers that currently have a handle.
func (r *Registry) Cached() []ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderType, 0, len(r.handles))
	for _, p := range Providers {
		if _, ok := r.handles[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Reset drops every cached handle, e.g. after a configuration reload.
// Requests already holding a handle keep using it. A construction still in
// flight completes for its callers but is not cached.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = make(map[ProviderType]LLMAdapter)
	r.generation++
}
