// Package providers implements the Provider Registry and the concrete
// provider adapters consumed by the Dispatcher and Tool Loop Kernel.
package providers

import (
	"context"

	"github.com/kiln-ai/router/pkg/models"
)

// Adapter is the uniform contract every provider transport implements.
type Adapter interface {
	// Complete issues one request and returns the normalized response.
	Complete(ctx context.Context, req models.Request) (models.Response, error)

	// Name is the adapter's own identification, independent of any
	// ProviderId alias it is registered under.
	Name() string

	// Kind reports which transport strategy this adapter implements.
	Kind() models.AdapterKind
}

// EmbeddingCapable is implemented by adapters that also serve embeddings.
type EmbeddingCapable interface {
	Embed(ctx context.Context, model string, texts []string) (EmbedResult, error)
}

// EmbedResult normalizes an embedding call's response shape.
type EmbedResult struct {
	Embeddings [][]float32
	Model      string
	Provider   models.ProviderId
	Usage      models.Usage
	Dimensions int
}

// SessionCapable is implemented by adapters backed by a resumable,
// long-lived session (the subprocess_session adapter kind).
type SessionCapable interface {
	SupportsSessions() bool
}
