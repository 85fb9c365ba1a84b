package toolloop

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// ExecutorConfig bounds the parallel tool executor.
type ExecutorConfig struct {
	// Parallelism caps concurrently running tool calls within one model
	// turn.
	Parallelism int
	// PerToolTimeout bounds a single handler invocation; the handler
	// itself must observe ctx's deadline when it blocks longer than the
	// request budget.
	PerToolTimeout time.Duration
}

// DefaultExecutorConfig returns the default parallelism (4) and per-tool
// timeout (30s).
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{Parallelism: 4, PerToolTimeout: 30 * time.Second}
}

// Call is one tool invocation to run.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// CallResult is the outcome of one Call.
type CallResult struct {
	ID     string
	Result string
	Err    error
}

// Executor runs a batch of calls against a Registry with bounded
// parallelism. The calls run concurrently; ExecuteAll returns their
// results in input order, each tagged with its call ID, so results can be
// reassembled in the model's original appearance order.
type Executor struct {
	registry *Registry
	config   ExecutorConfig
}

// NewExecutor constructs an Executor bound to registry.
func NewExecutor(registry *Registry, config ExecutorConfig) *Executor {
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultExecutorConfig().Parallelism
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = DefaultExecutorConfig().PerToolTimeout
	}
	return &Executor{registry: registry, config: config}
}

// ExecuteAll runs every call, respecting the configured parallelism cap,
// and returns one CallResult per input Call.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []CallResult {
	results := make([]CallResult, len(calls))
	sem := make(chan struct{}, e.config.Parallelism)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call Call) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
			defer cancel()

			text, err := e.registry.Execute(callCtx, call.Name, call.Input)
			if err == nil && callCtx.Err() == context.DeadlineExceeded {
				err = context.DeadlineExceeded
			}
			results[i] = CallResult{ID: call.ID, Result: text, Err: err}
		}(i, call)
	}

	wg.Wait()
	return results
}
