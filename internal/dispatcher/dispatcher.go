package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiln-ai/router/internal/providers"
	"github.com/kiln-ai/router/internal/session"
	"github.com/kiln-ai/router/internal/toolloop"
	"github.com/kiln-ai/router/internal/usage"
	"github.com/kiln-ai/router/pkg/models"
)

// Defaults bound the resolved provider/model when an Options value omits
// them.
type Defaults struct {
	Provider models.ProviderId
	Model    string
}

// KernelFactory builds a fresh Tool Loop Kernel bound to a specific
// adapter's Complete method, since a Kernel's CompleteFunc is fixed at
// construction.
type KernelFactory func(complete toolloop.CompleteFunc, agentID string) *toolloop.Kernel

// Dispatcher is the router's single public entry point.
type Dispatcher struct {
	registry   *providers.Registry
	pool       *session.Pool
	authorizer *toolloop.Authorizer
	capability toolloop.CapabilityStore
	kernels    KernelFactory
	stats      *usage.Stats
	budget     *usage.Tracker
	signals    func(Event)
	tracer     *Tracer
	metrics    *Metrics
	defaults   Defaults
	logger     *slog.Logger

	queryTimeout time.Duration
}

// Collaborators bundles everything NewDispatcher wires together.
type Collaborators struct {
	Registry     *providers.Registry
	Pool         *session.Pool
	Authorizer   *toolloop.Authorizer
	Capability   toolloop.CapabilityStore
	Kernels      KernelFactory
	Stats        *usage.Stats
	Budget       *usage.Tracker
	OnSignal     func(Event)
	Tracer       *Tracer
	Metrics      *Metrics
	Defaults     Defaults
	Logger       *slog.Logger
	QueryTimeout time.Duration
}

// NewDispatcher constructs a Dispatcher from its collaborators. Pool,
// Authorizer, Capability, Tracer, and Metrics may all be nil; the
// Dispatcher degrades to the remaining paths/behavior when they are.
func NewDispatcher(c Collaborators) *Dispatcher {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capability := c.Capability
	if capability == nil {
		capability = toolloop.AllowAllCapabilityStore{}
	}
	timeout := c.QueryTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Dispatcher{
		registry:     c.Registry,
		pool:         c.Pool,
		authorizer:   c.Authorizer,
		capability:   capability,
		kernels:      c.Kernels,
		stats:        c.Stats,
		budget:       c.Budget,
		signals:      c.OnSignal,
		tracer:       c.Tracer,
		metrics:      c.Metrics,
		defaults:     c.Defaults,
		logger:       logger.With("component", "dispatcher"),
		queryTimeout: timeout,
	}
}

// EventKind is one of the three dispatch accounting signals: started on
// entry, then completed or failed at the terminal outcome.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is emitted once when a dispatch starts and once on its terminal
// outcome.
type Event struct {
	Kind     EventKind
	Provider models.ProviderId
	Model    string
	AgentID  string
	TraceID  string
	Err      *models.Error
}

// Generate implements the generate operation.
func (d *Dispatcher) Generate(ctx context.Context, prompt string, opts Options) (models.Response, error) {
	return d.dispatch(ctx, prompt, opts)
}

// GenerateWithTools implements generate_with_tools: opts.Tools must be
// non-empty.
func (d *Dispatcher) GenerateWithTools(ctx context.Context, prompt string, opts Options) (models.Response, error) {
	if len(opts.Tools) == 0 {
		return models.Response{}, models.NewInvalidRequest("generate_with_tools requires at least one tool")
	}
	return d.dispatch(ctx, prompt, opts)
}

// AuthorizedGenerate wraps Generate/GenerateWithTools with a capability
// check against resource "ai/request/<provider>" before dispatch.
func (d *Dispatcher) AuthorizedGenerate(ctx context.Context, prompt string, opts Options) (models.Response, *PendingApproval, error) {
	s := opts.snapshot(d.defaults.Provider, d.defaults.Model)

	decision, proposalID, err := d.capability.Authorize(ctx, s.agentID, capabilityResource(s.provider), "invoke")
	if err != nil {
		return models.Response{}, nil, models.NewUnauthorized("capability_check_failed: " + err.Error())
	}
	switch decision {
	case toolloop.CapabilityUnauthorized:
		return models.Response{}, nil, models.NewUnauthorized("capability denied for " + capabilityResource(s.provider))
	case toolloop.CapabilityPendingApproval:
		return models.Response{}, &PendingApproval{ProposalID: proposalID}, nil
	}

	resp, err := d.dispatch(ctx, prompt, opts)
	return resp, nil, err
}

// dispatch implements the shared contract behind every public entry
// point: config snapshot, provider resolution, path selection, and
// accounting.
func (d *Dispatcher) dispatch(ctx context.Context, prompt string, opts Options) (models.Response, error) {
	s := opts.snapshot(d.defaults.Provider, d.defaults.Model)
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, s.provider, s.model)
	defer span.End()

	d.emit(Event{Kind: EventStarted, Provider: s.provider, Model: s.model, AgentID: s.agentID, TraceID: s.traceID})

	if d.budget != nil && d.budget.IsExceeded() {
		err := models.NewBudgetExceeded()
		d.finish(s, start, models.Response{}, err)
		span.RecordError(err)
		return models.Response{}, err
	}

	adapter, ok := d.registry.Resolve(s.provider)
	if !ok {
		err := models.NewUnknownProvider(s.provider)
		d.finish(s, start, models.Response{}, err)
		span.RecordError(err)
		return models.Response{}, err
	}

	req := opts.toRequest(s, prompt)

	resp, err := d.route(ctx, adapter, req, s)
	d.finish(s, start, resp, err)
	if err != nil {
		span.RecordError(err)
	} else {
		span.SetFinishReason(resp.FinishReason)
	}
	return resp, err
}

// route selects the Tool Loop Kernel when tools are present, otherwise
// the Session Pool for a subprocess_session adapter, otherwise a direct
// adapter call.
func (d *Dispatcher) route(ctx context.Context, adapter providers.Adapter, req models.Request, s snapshot) (models.Response, error) {
	if len(req.Tools) > 0 {
		if d.kernels == nil {
			return models.Response{}, &adapterUnavailableError{}
		}
		kernel := d.kernels(adapter.Complete, s.agentID)
		return kernel.Run(ctx, req, s.agentID)
	}

	if adapter.Kind() == models.AdapterSubprocessSession && d.pool != nil {
		return d.dispatchViaPool(ctx, s.provider, req)
	}

	return adapter.Complete(ctx, req)
}

type adapterUnavailableError struct{}

func (e *adapterUnavailableError) Error() string { return "adapter_unavailable: no tool loop kernel wired" }

// dispatchViaPool checks out a session worker, issues one synchronous
// query, and checks the worker back in.
func (d *Dispatcher) dispatchViaPool(ctx context.Context, provider models.ProviderId, req models.Request) (models.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	worker, err := d.pool.Checkout(ctx, provider, req.SessionID)
	if err != nil {
		return models.Response{}, err
	}
	defer d.pool.Checkin(worker.Ref())

	return worker.Query(ctx, req)
}

func (d *Dispatcher) finish(s snapshot, start time.Time, resp models.Response, err error) {
	latency := time.Since(start)
	kind := EventCompleted
	var modelsErr *models.Error

	if err != nil {
		kind = EventFailed
		if me, ok := err.(*models.Error); ok {
			modelsErr = me
		}
		if d.stats != nil {
			d.stats.RecordFailure(s.provider, usage.FailureInput{
				Model:     s.model,
				LatencyMS: float64(latency.Milliseconds()),
				Error:     err.Error(),
			})
		}
	} else {
		if d.stats != nil {
			cost := 0.0
			if resp.Usage.CostUSD != nil {
				cost = *resp.Usage.CostUSD
			}
			d.stats.RecordSuccess(s.provider, usage.SuccessInput{
				Model:        s.model,
				LatencyMS:    float64(latency.Milliseconds()),
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
				CostUSD:      cost,
			})
		}
		if d.budget != nil {
			d.budget.RecordUsage(s.provider, s.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}
	}

	if d.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		d.metrics.ObserveDispatch(s.provider, s.model, outcome, latency)
	}

	d.emit(Event{Kind: kind, Provider: s.provider, Model: s.model, AgentID: s.agentID, TraceID: s.traceID, Err: modelsErr})
}

func (d *Dispatcher) emit(ev Event) {
	if d.signals != nil {
		d.signals(ev)
	}
}
