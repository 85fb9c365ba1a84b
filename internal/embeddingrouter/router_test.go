package embeddingrouter

import (
	"context"
	"testing"
)

type stubProvider struct {
	name       string
	model      string
	dimension  int
	batchCalls [][]string
	vectors    [][]float32
	err        error
}

func (p *stubProvider) Name() string      { return p.name }
func (p *stubProvider) Model() string     { return p.model }
func (p *stubProvider) Dimension() int    { return p.dimension }
func (p *stubProvider) MaxBatchSize() int { return 100 }

func (p *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (p *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.batchCalls = append(p.batchCalls, texts)
	if p.err != nil {
		return nil, p.err
	}
	return p.vectors, nil
}

type stubCatalog struct {
	available map[string]bool
	reached   bool
}

func (c *stubCatalog) IsAvailable(ctx context.Context, name string) bool {
	c.reached = true
	return c.available[name]
}

func TestStablePartitionCloudFirstPreservesOrder(t *testing.T) {
	ordered := stablePartitionCloudFirst([]string{"ollama", "openai", "local-llama", "anthropic"})
	want := []string{"openai", "anthropic", "ollama", "local-llama"}
	for i, name := range want {
		if ordered[i] != name {
			t.Fatalf("expected %v at position %d, got %v (full: %v)", name, i, ordered[i], ordered)
		}
	}
}

func TestSelectPreferLocalReturnsFirstAvailableInOrder(t *testing.T) {
	providers := map[string]Provider{
		"openai": &stubProvider{name: "openai"},
		"ollama": &stubProvider{name: "ollama"},
	}
	catalog := &stubCatalog{available: map[string]bool{"openai": true, "ollama": true}}
	r := NewRouter(Config{Preferred: PreferLocal, Providers: []string{"ollama", "openai"}}, providers, catalog)

	name, err := r.Select(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "ollama" {
		t.Fatalf("expected ollama selected first in configured order, got %v", name)
	}
}

func TestSelectPreferCloudPartitionsFirst(t *testing.T) {
	providers := map[string]Provider{
		"ollama": &stubProvider{name: "ollama"},
		"openai": &stubProvider{name: "openai"},
	}
	catalog := &stubCatalog{available: map[string]bool{"ollama": true, "openai": true}}
	r := NewRouter(Config{Preferred: PreferCloud, Providers: []string{"ollama", "openai"}}, providers, catalog)

	name, err := r.Select(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "openai" {
		t.Fatalf("expected openai (cloud-capable) selected first under cloud preference, got %v", name)
	}
}

func TestSelectUnreachableCatalogAssumesAvailable(t *testing.T) {
	providers := map[string]Provider{
		"ollama": &stubProvider{name: "ollama"},
	}
	r := NewRouter(Config{Preferred: PreferLocal, Providers: []string{"ollama"}}, providers, nil)

	name, err := r.Select(context.Background())
	if err != nil {
		t.Fatalf("expected nil catalog to assume available, got error: %v", err)
	}
	if name != "ollama" {
		t.Fatalf("expected ollama, got %v", name)
	}
}

func TestSelectFallsBackToCloudWhenPrimaryUnavailable(t *testing.T) {
	providers := map[string]Provider{
		"ollama": &stubProvider{name: "ollama"},
		"openai": &stubProvider{name: "openai"},
	}
	catalog := &stubCatalog{available: map[string]bool{"openai": true}}
	r := NewRouter(Config{
		Preferred:       PreferLocal,
		Providers:       []string{"ollama", "openai"},
		FallbackToCloud: true,
	}, providers, catalog)

	name, err := r.Select(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "openai" {
		t.Fatalf("expected fallback to openai, got %v", name)
	}
}

func TestSelectDevFallbackWhenNothingAvailable(t *testing.T) {
	providers := map[string]Provider{
		"ollama": &stubProvider{name: "ollama"},
		"test":   &stubProvider{name: "test"},
	}
	catalog := &stubCatalog{available: map[string]bool{}}
	r := NewRouter(Config{
		Preferred:           PreferLocal,
		Providers:           []string{"ollama"},
		DevFallbackEnabled:  true,
		DevFallbackProvider: "test",
	}, providers, catalog)

	name, err := r.Select(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "test" {
		t.Fatalf("expected dev fallback provider, got %v", name)
	}
}

func TestSelectNoneAvailableReturnsError(t *testing.T) {
	providers := map[string]Provider{
		"ollama": &stubProvider{name: "ollama"},
	}
	catalog := &stubCatalog{available: map[string]bool{}}
	r := NewRouter(Config{Preferred: PreferLocal, Providers: []string{"ollama"}}, providers, catalog)

	_, err := r.Select(context.Background())
	if err == nil {
		t.Fatal("expected error when no provider is available and no fallback is configured")
	}
}

func TestEmbedBatchNormalizesResult(t *testing.T) {
	providers := map[string]Provider{
		"ollama": &stubProvider{name: "ollama", model: "nomic-embed-text", dimension: 768, vectors: [][]float32{{0.1, 0.2}}},
	}
	catalog := &stubCatalog{available: map[string]bool{"ollama": true}}
	r := NewRouter(Config{Preferred: PreferLocal, Providers: []string{"ollama"}}, providers, catalog)

	res, err := r.EmbedBatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != "ollama" || res.Model != "nomic-embed-text" || res.Dimensions != 768 {
		t.Fatalf("unexpected normalized result: %+v", res)
	}
	if len(res.Embeddings) != 1 || len(res.Embeddings[0]) != 2 {
		t.Fatalf("expected one 2-dim embedding, got %+v", res.Embeddings)
	}
}
