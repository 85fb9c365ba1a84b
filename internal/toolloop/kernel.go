package toolloop

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kiln-ai/router/internal/hooks"
	"github.com/kiln-ai/router/pkg/models"
)

// CompleteFunc is the adapter call the kernel drives (providers.Adapter's
// Complete method, injected to avoid an import cycle between toolloop and
// providers).
type CompleteFunc func(ctx context.Context, req models.Request) (models.Response, error)

// KernelConfig bounds one agentic conversation.
type KernelConfig struct {
	MaxTurns int // default 10
}

// DefaultKernelConfig returns the default max_turns of 10.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{MaxTurns: 10}
}

// Kernel drives a bounded agentic conversation: send prompt, receive
// tool-use, run hooks, execute tool, re-send — until the model issues no
// further tool calls or MaxTurns is reached.
type Kernel struct {
	complete   CompleteFunc
	registry   *Registry
	executor   *Executor
	hooks      *hooks.Chain
	authorizer *Authorizer
	config     KernelConfig
	logger     *slog.Logger

	onToolEvent func(models.ToolEvent)
}

// NewKernel wires a Kernel from its collaborators.
func NewKernel(complete CompleteFunc, registry *Registry, executor *Executor, chain *hooks.Chain, authorizer *Authorizer, config KernelConfig, logger *slog.Logger, onToolEvent func(models.ToolEvent)) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxTurns <= 0 {
		config = DefaultKernelConfig()
	}
	return &Kernel{
		complete:    complete,
		registry:    registry,
		executor:    executor,
		hooks:       chain,
		authorizer:  authorizer,
		config:      config,
		logger:      logger.With("component", "toolloop.kernel"),
		onToolEvent: onToolEvent,
	}
}

// Run executes the loop for one request and returns the accumulated
// Response. Within one model turn, pre-hooks run over the tool_use blocks
// in appearance order; the allowed calls then run concurrently on the
// Executor, so their execution order is not fixed. Results append to the
// next message in appearance order.
func (k *Kernel) Run(ctx context.Context, req models.Request, agentID string) (models.Response, error) {
	// Step 1: pre-flight tool authorization.
	if k.authorizer != nil {
		req.Tools = k.authorizer.Filter(ctx, agentID, req.Tools)
	}

	var accumulated models.Response
	turn := 0

	for {
		turn++
		if turn > k.config.MaxTurns {
			accumulated.FinishReason = models.FinishError
			return accumulated, &turnLimitError{turns: turn - 1}
		}

		resp, err := k.complete(ctx, req)
		if err != nil {
			return accumulated, err
		}

		accumulated.Text += resp.Text
		accumulated.Thinking = append(accumulated.Thinking, resp.Thinking...)
		accumulated.Usage = sumUsage(accumulated.Usage, resp.Usage)
		accumulated.Model = resp.Model
		accumulated.Provider = resp.Provider
		accumulated.SessionID = resp.SessionID
		accumulated.FinishReason = resp.FinishReason

		if len(resp.ToolUses) == 0 {
			return accumulated, nil
		}

		resolved := k.runHooksAndExecute(ctx, resp.ToolUses)
		accumulated.ToolUses = append(accumulated.ToolUses, resolved...)

		assistantMsg := models.Message{Role: models.RoleAssistant, Content: resp.Text, ToolCalls: resolved}
		toolResultMsg := models.Message{Role: models.RoleTool, ToolResults: toolResultsFrom(resolved)}
		req.Messages = append(req.Messages, assistantMsg, toolResultMsg)
	}
}

// runHooksAndExecute runs the pre-hook chain over every tool_use in
// appearance order, then executes the allowed subset in parallel,
// re-assembling results back into appearance order.
func (k *Kernel) runHooksAndExecute(ctx context.Context, toolUses []models.ToolUse) []models.ToolUse {
	resolved := make([]models.ToolUse, len(toolUses))
	var toRun []Call
	runIndex := make(map[string]int) // call ID -> index into resolved

	for i, tu := range toolUses {
		k.emit(models.ToolEvent{ToolCallID: tu.ID, ToolName: tu.Name, Stage: models.ToolEventRequested, Input: tu.Input})

		outcome := k.hooks.RunPreTool(ctx, tu.Name, tu.Input)
		if !outcome.Allowed {
			tu.HookResult = models.HookDeny
			tu.Result = models.Err("hook_denied: " + outcome.Reason)
			resolved[i] = tu
			k.emit(models.ToolEvent{ToolCallID: tu.ID, ToolName: tu.Name, Stage: models.ToolEventDenied, PolicyReason: outcome.Reason})
			continue
		}
		tu.HookResult = models.HookAllow
		tu.Input = outcome.Input

		if _, ok := k.registry.Get(tu.Name); !ok {
			tu.Result = models.Pending()
			resolved[i] = tu
			continue
		}

		runIndex[tu.ID] = i
		resolved[i] = tu
		toRun = append(toRun, Call{ID: tu.ID, Name: tu.Name, Input: tu.Input})
	}

	if len(toRun) == 0 {
		return resolved
	}

	results := k.executor.ExecuteAll(ctx, toRun)
	for _, r := range results {
		i, ok := runIndex[r.ID]
		if !ok {
			continue
		}
		tu := resolved[i]
		isError := r.Err != nil
		if isError {
			tu.Result = models.Err(r.Err.Error())
			k.emit(models.ToolEvent{ToolCallID: tu.ID, ToolName: tu.Name, Stage: models.ToolEventFailed, Error: r.Err.Error()})
		} else {
			tu.Result = models.OK(r.Result)
			k.emit(models.ToolEvent{ToolCallID: tu.ID, ToolName: tu.Name, Stage: models.ToolEventSucceeded, Output: r.Result})
		}
		resolved[i] = tu

		k.hooks.RunPostTool(ctx, tu.Name, tu.Input, r.Result, isError)
	}

	return resolved
}

func (k *Kernel) emit(ev models.ToolEvent) {
	if k.onToolEvent != nil {
		k.onToolEvent(ev)
	}
}

func toolResultsFrom(toolUses []models.ToolUse) []models.ToolResult {
	out := make([]models.ToolResult, 0, len(toolUses))
	for _, tu := range toolUses {
		switch tu.Result.Kind {
		case models.ToolUseResultOK:
			out = append(out, models.ToolResult{ToolUseID: tu.ID, Content: tu.Result.Text})
		case models.ToolUseResultErr:
			out = append(out, models.ToolResult{ToolUseID: tu.ID, Content: tu.Result.Err, IsError: true})
		case models.ToolUseResultPending:
			// the adapter itself will answer a pending call; nothing to
			// append locally.
		}
	}
	return out
}

func sumUsage(a, b models.Usage) models.Usage {
	return models.Usage{
		InputTokens:         a.InputTokens + b.InputTokens,
		OutputTokens:        a.OutputTokens + b.OutputTokens,
		CacheReadTokens:     a.CacheReadTokens + b.CacheReadTokens,
		CacheCreationTokens: a.CacheCreationTokens + b.CacheCreationTokens,
		TotalTokens:         a.TotalTokens + b.TotalTokens,
	}
}

type turnLimitError struct {
	turns int
}

func (e *turnLimitError) Error() string {
	return "tool loop exceeded max_turns"
}

// ToRawMessage is a small convenience for callers constructing tool
// descriptors inline: it marshals v to JSON and returns nil if marshalling
// fails.
func ToRawMessage(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
