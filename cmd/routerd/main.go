// Command routerd wires the router's components into one process: load
// config, construct the Provider Registry, Session Pool, Usage Stats,
// Budget Tracker, Embedding Router, Prompt Builder, and Dispatcher, start
// the metrics listener, and block until a shutdown signal arrives.
//
// There is no CLI command tree and no request-serving surface here —
// both are out of scope; routerd is a library host, and callers embed it
// or drive it through the Dispatcher directly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiln-ai/router/internal/config"
	"github.com/kiln-ai/router/internal/dispatcher"
	"github.com/kiln-ai/router/internal/embeddingrouter"
	"github.com/kiln-ai/router/internal/hooks"
	"github.com/kiln-ai/router/internal/promptbuilder"
	"github.com/kiln-ai/router/internal/providers"
	"github.com/kiln-ai/router/internal/session"
	"github.com/kiln-ai/router/internal/signalbus"
	"github.com/kiln-ai/router/internal/toolloop"
	"github.com/kiln-ai/router/internal/usage"
	"github.com/kiln-ai/router/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := os.Getenv("ROUTERD_CONFIG")
	if configPath == "" {
		configPath = "routerd.yaml"
	}

	logger := newLogger(os.Getenv("ROUTERD_LOG_LEVEL"))
	slog.SetDefault(logger)

	if err := run(configPath, logger); err != nil {
		logger.Error("routerd exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "path", configPath, "version", version, "commit", commit)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	identity := config.NewIdentityVerifier(cfg.Identity)

	registry := buildProviderRegistry(cfg, logger)

	bus := signalbus.New(logger)

	promRegistry := prometheus.NewRegistry()
	metrics := dispatcher.NewMetrics(promRegistry)
	usageMetrics := usage.NewMetricsCollector(promRegistry)

	stats := usage.NewStats(cfg.Usage.Retention, alertFunc(bus), buildPersister(cfg.Usage, logger))
	go sweepUsageMetrics(ctx, stats, usageMetrics)
	budget := usage.NewTracker(cfg.Usage.DailyCapUSD, buildPriceTable(cfg.Usage.Prices), nil)

	pool := session.NewPool(subprocessSpawn(logger), buildPoolCapacity(cfg.Pool), cfg.Pool.CleanupInterval, logger)
	pool.Start()
	defer pool.Stop()

	authorizer := toolloop.NewAuthorizer(toolloop.AllowAllCapabilityStore{}, toolloop.StoreUnavailableUnauthorize, logger, func(agentID string, denied []string) {
		bus.Emit("tool_authorization", "denied", map[string]any{"agent_id": agentID, "denied": denied})
	})

	kernels := func(complete toolloop.CompleteFunc, agentID string) *toolloop.Kernel {
		toolRegistry := toolloop.NewRegistry()
		executor := toolloop.NewExecutor(toolRegistry, toolloop.DefaultExecutorConfig())
		chain := hooks.New(logger)
		return toolloop.NewKernel(complete, toolRegistry, executor, chain, authorizer, toolloop.DefaultKernelConfig(), logger, func(ev models.ToolEvent) {
			bus.Emit("tool_loop", "event", ev)
		})
	}

	d := dispatcher.NewDispatcher(dispatcher.Collaborators{
		Registry: registry,
		Pool:     pool,
		Kernels:  kernels,
		Stats:    stats,
		Budget:   budget,
		OnSignal: func(ev dispatcher.Event) {
			bus.Emit("dispatch", string(ev.Kind), ev)
			if ev.Kind == dispatcher.EventCompleted || ev.Kind == dispatcher.EventFailed {
				usageMetrics.IncrementRequest(models.StatsKey{Provider: ev.Provider, Model: ev.Model}, string(ev.Kind))
			}
		},
		Tracer:       dispatcher.NewTracer("kiln.dispatcher"),
		Metrics:      metrics,
		Defaults:     dispatcher.Defaults{Provider: models.ProviderId(cfg.Providers.Default), Model: cfg.Providers.DefaultModel},
		Logger:       logger,
		QueryTimeout: cfg.Pool.QueryTimeout,
	})
	embedRouter := buildEmbeddingRouter(cfg.Embeddings, logger)
	promptSpecs := buildPromptSpecs(cfg.Prompt)
	promptBuilder := promptbuilder.NewBuilder(promptSpecs, staticPromptSource{}, cfg.Prompt.ContextWindow)

	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener stopped", "error", err)
		}
	}()

	identityEnabled := cfg.Identity.JWTSecret != ""
	logger.Info("routerd started",
		"metrics_addr", cfg.Server.MetricsAddr,
		"providers", registry.Providers(),
		"embedding_preference", cfg.Embeddings.Preference,
		"identity_verification", identityEnabled,
	)
	// d, embedRouter, and promptBuilder are the collaborator graphs this
	// process hosts for in-process embedders; routerd itself drives none
	// of them over a network surface, so beyond this point they just sit
	// ready.
	_ = d
	_ = embedRouter
	_ = promptBuilder
	_ = identity
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return metricsServer.Shutdown(shutdownCtx)
}

func alertFunc(bus *signalbus.Bus) usage.AlertFunc {
	return func(provider models.ProviderId, model string, successRate float64) {
		bus.Emit("stats", "reliability_alert", map[string]any{
			"provider":     provider,
			"model":        model,
			"success_rate": successRate,
		})
	}
}

// sweepUsageMetrics periodically republishes Stats.Snapshot() onto
// collector's gauges, since MetricsCollector.Observe is keyed by a full
// StatsEntry, not incremental deltas.
func sweepUsageMetrics(ctx context.Context, stats *usage.Stats, collector *usage.MetricsCollector) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for keyStr, entry := range stats.Snapshot() {
				key, err := usage.DecodeKey(keyStr)
				if err != nil {
					continue
				}
				collector.Observe(key, entry)
			}
		}
	}
}

func buildPriceTable(cfg map[string]map[string]config.ModelPriceConfig) usage.PriceTable {
	table := make(usage.PriceTable, len(cfg))
	for provider, models_ := range cfg {
		perModel := make(map[string]usage.ModelPrice, len(models_))
		for model, price := range models_ {
			perModel[model] = usage.ModelPrice{
				InputPerMillion:  price.InputPerMillion,
				OutputPerMillion: price.OutputPerMillion,
			}
		}
		table[models.ProviderId(provider)] = perModel
	}
	return table
}

func buildPersister(cfg config.UsageConfig, logger *slog.Logger) *usage.Persister {
	if cfg.PersistPath == "" {
		return nil
	}
	persister := usage.NewJSONPersister(cfg.PersistPath)
	logger.Info("usage persistence enabled", "path", cfg.PersistPath)
	return persister
}

func buildPoolCapacity(cfg config.PoolConfig) map[models.ProviderId]session.ProviderCapacity {
	out := make(map[models.ProviderId]session.ProviderCapacity, len(cfg.Capacity))
	for provider, cap := range cfg.Capacity {
		out[models.ProviderId(provider)] = session.ProviderCapacity{Max: cap.Max, IdleTimeout: cap.IdleTimeout}
	}
	return out
}

func buildProviderRegistry(cfg *config.Config, logger *slog.Logger) *providers.Registry {
	registry := providers.NewRegistry()
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		registry.Register("anthropic", providers.NewAnthropicAdapter(apiKey, os.Getenv("ANTHROPIC_BASE_URL")))
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		registry.Register("openai", providers.NewOpenAIAdapter(apiKey, os.Getenv("OPENAI_BASE_URL")))
	}
	if len(registry.Providers()) == 0 {
		logger.Warn("no provider credentials configured; registry starts empty")
	}
	return registry
}

// subprocessSpawn builds the SpawnFunc the Session Pool uses to start a
// new subprocess_session worker on demand. Every managed transport shares
// the queryReceiver wiring so Worker.Query has request/response
// semantics (internal/session.NewManagedTransport).
func subprocessSpawn(logger *slog.Logger) session.SpawnFunc {
	return func(ctx context.Context, provider models.ProviderId) (*session.Transport, error) {
		transport := session.NewManagedTransport(logger)
		if err := transport.Start(ctx, session.StartOpts{Command: string(provider)}); err != nil {
			return nil, err
		}
		return transport, nil
	}
}

func buildEmbeddingRouter(cfg config.EmbeddingsConfig, logger *slog.Logger) *embeddingrouter.Router {
	embedProviders := make(map[string]embeddingrouter.Provider)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if p, err := embeddingrouter.NewOpenAIProvider(embeddingrouter.OpenAIConfig{APIKey: apiKey}); err == nil {
			embedProviders["openai"] = p
		} else {
			logger.Warn("failed to construct openai embedding provider", "error", err)
		}
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		embedProviders["ollama"] = embeddingrouter.NewOllamaProvider(embeddingrouter.OllamaConfig{BaseURL: baseURL})
	}

	return embeddingrouter.NewRouter(embeddingrouter.Config{
		Preferred:           embeddingrouter.Preference(cfg.Preference),
		Providers:           cfg.Providers,
		FallbackToCloud:     cfg.FallbackToCloud,
		DevFallbackEnabled:  cfg.DevFallbackEnabled,
		DevFallbackProvider: cfg.DevFallbackProvider,
	}, embedProviders, nil)
}

// buildPromptSpecs converts the configured section budgets into the
// Builder's Spec list. A section absent from configuration keeps no
// budget entry and is skipped by Builder.Build.
func buildPromptSpecs(cfg config.PromptConfig) []promptbuilder.Spec {
	specs := make([]promptbuilder.Spec, 0, len(cfg.Sections))
	for _, s := range cfg.Sections {
		budget := promptbuilder.Budget{Kind: promptbuilder.BudgetKind(s.Kind), Tokens: s.Tokens, Min: s.Min, Max: s.Max, Pct: s.Pct}
		specs = append(specs, promptbuilder.Spec{Name: promptbuilder.Name(s.Name), Budget: budget})
	}
	return specs
}

// staticPromptSource is the Builder's Source when routerd hosts the
// prompt builder for in-process embedders that haven't supplied their
// own session/project-backed Source yet — every section comes back
// empty and is omitted, rather than routerd fabricating content it has
// no session context to generate.
type staticPromptSource struct{}

func (staticPromptSource) Fetch(promptbuilder.Name) (string, error) { return "", nil }
