package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kiln-ai/router/pkg/models"
)

// FailoverConfig configures bounded per-provider retries plus a circuit
// breaker that temporarily removes a repeatedly-failing provider from the
// rotation.
type FailoverConfig struct {
	MaxRetries              int
	RetryBackoff            time.Duration
	MaxRetryBackoff         time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// DefaultFailoverConfig returns conservative retry/circuit-breaker
// defaults.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:              2,
		RetryBackoff:            100 * time.Millisecond,
		MaxRetryBackoff:         5 * time.Second,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

type providerState struct {
	failures      int
	circuitOpen   bool
	circuitOpenAt time.Time
}

func (s *providerState) isAvailable(timeout time.Duration) bool {
	if !s.circuitOpen {
		return true
	}
	return time.Since(s.circuitOpenAt) >= timeout
}

// Orchestrator tries a preference-ordered list of Adapters, falling back
// to the next on failure or unavailability rather than branching on
// scattered conditionals. It is itself an Adapter so the Dispatcher can
// treat a single provider or a failover chain identically.
type Orchestrator struct {
	mu        sync.Mutex
	adapters  []Adapter
	states    map[string]*providerState
	config    FailoverConfig
}

// NewOrchestrator builds a failover chain trying adapters in order.
func NewOrchestrator(config FailoverConfig, adapters ...Adapter) *Orchestrator {
	states := make(map[string]*providerState, len(adapters))
	for _, a := range adapters {
		states[a.Name()] = &providerState{}
	}
	return &Orchestrator{adapters: adapters, states: states, config: config}
}

func (o *Orchestrator) Name() string            { return "failover" }
func (o *Orchestrator) Kind() models.AdapterKind { return models.AdapterAPIHTTP }

// Complete tries each available adapter in order, retrying each with
// bounded exponential backoff before moving to the next.
func (o *Orchestrator) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	var lastErr error
	for _, adapter := range o.adapters {
		if !o.available(adapter.Name()) {
			continue
		}
		resp, err := o.tryAdapter(ctx, adapter, req)
		if err == nil {
			o.recordSuccess(adapter.Name())
			return resp, nil
		}
		lastErr = err
		o.recordFailure(adapter.Name())
		if !Classify(err).ShouldFailover() {
			return models.Response{}, err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no available provider in failover chain")
	}
	return models.Response{}, fmt.Errorf("all providers exhausted: %w", lastErr)
}

func (o *Orchestrator) tryAdapter(ctx context.Context, adapter Adapter, req models.Request) (models.Response, error) {
	backoff := o.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return models.Response{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > o.config.MaxRetryBackoff {
				backoff = o.config.MaxRetryBackoff
			}
		}
		resp, err := adapter.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !Classify(err).IsRetryable() {
			break
		}
	}
	return models.Response{}, lastErr
}

func (o *Orchestrator) available(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.states[name]
	return s == nil || s.isAvailable(o.config.CircuitBreakerTimeout)
}

func (o *Orchestrator) recordSuccess(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.states[name]
	if s == nil {
		return
	}
	s.failures = 0
	s.circuitOpen = false
}

func (o *Orchestrator) recordFailure(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.states[name]
	if s == nil {
		return
	}
	s.failures++
	if s.failures >= o.config.CircuitBreakerThreshold {
		s.circuitOpen = true
		s.circuitOpenAt = time.Now()
	}
}

// ResetCircuitBreaker manually clears a tripped breaker for name.
func (o *Orchestrator) ResetCircuitBreaker(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s := o.states[name]; s != nil {
		s.failures = 0
		s.circuitOpen = false
	}
}
