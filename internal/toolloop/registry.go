package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MaxToolParamsSize caps a single tool call's JSON input as a guard
// against unbounded adversarial payloads.
const MaxToolParamsSize = 10 << 20 // 10 MiB

// Handler is a locally resolvable tool implementation.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Registry is a name → Handler map. Registering the same name twice is
// "last wins".
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs (or overwrites) the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Unregister removes a handler, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Get returns the handler for name, and whether it was registered.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Execute looks up and runs the handler for name, enforcing the payload
// size cap. A tool handler panic is converted into an error so a single
// misbehaving tool cannot crash the loop (the handler call itself runs
// under the caller-supplied context's deadline).
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (result string, err error) {
	if len(input) > MaxToolParamsSize {
		return "", fmt.Errorf("tool %q input exceeds %d bytes", name, MaxToolParamsSize)
	}
	h, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("tool %q not registered", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %q panicked: %v", name, rec)
		}
	}()
	return h(ctx, input)
}
