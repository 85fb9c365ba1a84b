package providers

import (
	"sync"

	"github.com/kiln-ai/router/pkg/models"
)

// Registry maps a symbolic ProviderId to its adapter kind and concrete
// Adapter implementation. It is a string-keyed map rather than a closed
// Go sum type, since new providers are registered at process startup,
// not compiled in.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ProviderId]Adapter
	kinds    map[models.ProviderId]models.AdapterKind
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.ProviderId]Adapter),
		kinds:    make(map[models.ProviderId]models.AdapterKind),
	}
}

// Register associates a ProviderId with a concrete Adapter. The
// adapter's own Kind() is recorded as the provider's adapter kind.
func (r *Registry) Register(id models.ProviderId, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[id] = adapter
	r.kinds[id] = adapter.Kind()
}

// Resolve returns the Adapter registered for id. Unknown ids pass through
// as a not-found result rather than panicking: the caller receives
// ok=false and decides whether to treat the id as a late-bound/pending
// provider.
func (r *Registry) Resolve(id models.ProviderId) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// Kind reports the adapter kind registered for id.
func (r *Registry) Kind(id models.ProviderId) (models.AdapterKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[id]
	return k, ok
}

// Providers lists every registered ProviderId.
func (r *Registry) Providers() []models.ProviderId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]models.ProviderId, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
