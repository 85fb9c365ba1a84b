// Package hooks implements a three-lane hook chain: pre_tool, post_tool,
// and on_message interceptors with allow/deny/modify semantics for the
// pre-tool lane and fire-and-forget semantics for the other two.
package hooks

import (
	"context"
	"encoding/json"
	"log/slog"
)

// PreToolOutcome is the result of running the pre-tool chain over one
// tool_use block.
type PreToolOutcome struct {
	Allowed bool
	Input   json.RawMessage
	Reason  string
}

// PreToolHook inspects (and may rewrite) a tool call before execution.
// Returning ok=false denies the call; reason is surfaced on the ToolUse.
// Returning a non-nil newInput rewrites the input for the rest of the
// chain and for execution.
type PreToolHook func(ctx context.Context, toolName string, input json.RawMessage) (ok bool, newInput json.RawMessage, reason string)

// PostToolHook observes a completed tool call. Return values are ignored;
// it is fire-and-forget.
type PostToolHook func(ctx context.Context, toolName string, input json.RawMessage, resultText string, isError bool)

// MessageHook observes an assistant/user message as it is appended to the
// conversation.
type MessageHook func(ctx context.Context, role, content string)

type registration[T any] struct {
	name string
	fn   T
}

// Chain holds the three ordered hook lanes. The zero value is a usable
// empty chain: exhausting zero pre-hooks yields {allow, input unchanged}.
type Chain struct {
	logger *slog.Logger

	preTool  []registration[PreToolHook]
	postTool []registration[PostToolHook]
	onMsg    []registration[MessageHook]
}

// New creates an empty Chain.
func New(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger.With("component", "hooks")}
}

// RegisterPreTool appends a pre-tool hook. Hooks run in registration
// order.
func (c *Chain) RegisterPreTool(name string, fn PreToolHook) {
	c.preTool = append(c.preTool, registration[PreToolHook]{name: name, fn: fn})
}

// RegisterPostTool appends a post-tool hook.
func (c *Chain) RegisterPostTool(name string, fn PostToolHook) {
	c.postTool = append(c.postTool, registration[PostToolHook]{name: name, fn: fn})
}

// RegisterOnMessage appends an on-message hook.
func (c *Chain) RegisterOnMessage(name string, fn MessageHook) {
	c.onMsg = append(c.onMsg, registration[MessageHook]{name: name, fn: fn})
}

// RunPreTool executes the pre-tool chain over one call. Each hook sees the
// current (possibly already-modified) input. The first deny stops the
// chain; otherwise the final modified input is returned as allowed.
func (c *Chain) RunPreTool(ctx context.Context, toolName string, input json.RawMessage) PreToolOutcome {
	current := input
	for _, reg := range c.preTool {
		ok, newInput, reason := c.invokePreTool(ctx, reg, toolName, current)
		if !ok {
			if reason == "" {
				reason = "denied by hook " + reg.name
			}
			return PreToolOutcome{Allowed: false, Input: current, Reason: reason}
		}
		if newInput != nil {
			current = newInput
		}
	}
	return PreToolOutcome{Allowed: true, Input: current}
}

// invokePreTool isolates the panic recovery boundary: a panicking hook is
// logged and treated as allow/no-op, matching the post/on-message lanes'
// "exceptions are logged and swallowed" rule extended to pre-tool so one
// bad hook cannot wedge the loop. (The chain can still deny via its
// ordinary return value; panics are distinct from deliberate denials.)
func (c *Chain) invokePreTool(ctx context.Context, reg registration[PreToolHook], toolName string, input json.RawMessage) (ok bool, newInput json.RawMessage, reason string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("pre-tool hook panicked", "hook", reg.name, "tool", toolName, "recovered", r)
			ok, newInput, reason = true, nil, ""
		}
	}()
	return reg.fn(ctx, toolName, input)
}

// RunPostTool fires every post-tool hook; errors and panics are swallowed.
func (c *Chain) RunPostTool(ctx context.Context, toolName string, input json.RawMessage, resultText string, isError bool) {
	for _, reg := range c.postTool {
		c.invokePostTool(ctx, reg, toolName, input, resultText, isError)
	}
}

func (c *Chain) invokePostTool(ctx context.Context, reg registration[PostToolHook], toolName string, input json.RawMessage, resultText string, isError bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("post-tool hook panicked", "hook", reg.name, "tool", toolName, "recovered", r)
		}
	}()
	reg.fn(ctx, toolName, input, resultText, isError)
}

// RunOnMessage fires every on-message hook; errors and panics are
// swallowed.
func (c *Chain) RunOnMessage(ctx context.Context, role, content string) {
	for _, reg := range c.onMsg {
		c.invokeOnMessage(ctx, reg, role, content)
	}
}

func (c *Chain) invokeOnMessage(ctx context.Context, reg registration[MessageHook], role, content string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("on-message hook panicked", "hook", reg.name, "recovered", r)
		}
	}()
	reg.fn(ctx, role, content)
}
