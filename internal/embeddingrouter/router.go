package embeddingrouter

import (
	"context"
	"fmt"
)

// Preference is the embedding routing config knob.
type Preference string

const (
	PreferLocal Preference = "local"
	PreferCloud Preference = "cloud"
	PreferAuto  Preference = "auto"
)

// Catalog probes whether a named provider is currently reachable. The
// Embedding Router is given its own Catalog; the Provider Registry in
// internal/providers does not implement this interface.
type Catalog interface {
	// IsAvailable performs a liveness probe. When the catalog itself
	// cannot be reached, callers must treat the provider as available.
	IsAvailable(ctx context.Context, name string) bool
}

// Config is the embedding router's routing config.
type Config struct {
	Preferred       Preference
	Providers       []string // ordered provider names, matching keys in the Router's provider map
	FallbackToCloud bool
	// DevFallbackProvider, when set and DevFallbackEnabled is true, is
	// used as a last resort when no configured provider is available.
	DevFallbackProvider string
	DevFallbackEnabled  bool
}

// Router selects and delegates to an embedding Provider.
type Router struct {
	cfg       Config
	providers map[string]Provider
	catalog   Catalog
}

// NewRouter constructs a Router. catalog may be nil, in which case every
// provider is treated as available (equivalent to an unreachable catalog).
func NewRouter(cfg Config, providers map[string]Provider, catalog Catalog) *Router {
	return &Router{cfg: cfg, providers: providers, catalog: catalog}
}

// noProviderAvailableError is returned when routing exhausts every option.
type noProviderAvailableError struct{ preference Preference }

func (e *noProviderAvailableError) Error() string {
	return fmt.Sprintf("embeddingrouter: no provider available for preference %q", e.preference)
}

// Select runs the four-step routing algorithm and returns the chosen
// Provider's name.
func (r *Router) Select(ctx context.Context) (string, error) {
	ordered := append([]string(nil), r.cfg.Providers...)

	if r.cfg.Preferred == PreferCloud {
		ordered = stablePartitionCloudFirst(ordered)
	}

	if name, ok := r.firstAvailable(ctx, ordered); ok {
		return name, nil
	}

	if r.cfg.FallbackToCloud {
		cloudOrdered := stablePartitionCloudFirst(append([]string(nil), r.cfg.Providers...))
		if name, ok := r.firstAvailable(ctx, cloudOrdered); ok {
			return name, nil
		}
	}

	if r.cfg.DevFallbackEnabled && r.cfg.DevFallbackProvider != "" {
		if _, ok := r.providers[r.cfg.DevFallbackProvider]; ok {
			return r.cfg.DevFallbackProvider, nil
		}
	}

	return "", &noProviderAvailableError{preference: r.cfg.Preferred}
}

// stablePartitionCloudFirst moves cloud-capable providers ahead of others
// while preserving relative order within each partition.
func stablePartitionCloudFirst(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if CloudCapable[n] {
			out = append(out, n)
		}
	}
	for _, n := range names {
		if !CloudCapable[n] {
			out = append(out, n)
		}
	}
	return out
}

// firstAvailable filters ordered to providers that exist in the registry
// and pass the liveness probe, returning the first match.
func (r *Router) firstAvailable(ctx context.Context, ordered []string) (string, bool) {
	for _, name := range ordered {
		if _, ok := r.providers[name]; !ok {
			continue
		}
		if r.catalog == nil || r.catalog.IsAvailable(ctx, name) {
			return name, true
		}
	}
	return "", false
}

// Embed selects a provider and delegates a single-text embed call.
func (r *Router) Embed(ctx context.Context, text string) (Result, error) {
	res, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// EmbedBatch selects a provider and delegates a batch embed call,
// normalizing the response.
func (r *Router) EmbedBatch(ctx context.Context, texts []string) (Result, error) {
	name, err := r.Select(ctx)
	if err != nil {
		return Result{}, err
	}
	provider := r.providers[name]

	vectors, err := provider.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embeddingrouter: %s: %w", name, err)
	}

	return Result{
		Embeddings: vectors,
		Model:      provider.Model(),
		Provider:   name,
		Dimensions: provider.Dimension(),
	}, nil
}
