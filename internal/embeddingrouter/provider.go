// Package embeddingrouter implements preference-ordered selection across
// embedding providers, a liveness probe against a provider catalog, and
// normalized Embed/EmbedBatch delegation.
package embeddingrouter

import "context"

// Provider is the embedding backend contract.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Model() string
	Dimension() int
	MaxBatchSize() int
}

// CloudCapable marks a provider as one of the cloud families (openai,
// anthropic, gemini, cohere).
var CloudCapable = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
	"cohere":    true,
}

// Result is the normalized shape of an Embed/EmbedBatch call: embedding(s),
// model, provider, usage, and dimensions.
type Result struct {
	Embeddings [][]float32
	Model      string
	Provider   string
	Dimensions int
	Usage      Usage
}

// Usage reports token accounting for the embedding call, when the
// underlying provider exposes it.
type Usage struct {
	InputTokens int
}
