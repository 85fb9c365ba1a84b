package models

import (
	"encoding/json"
	"time"
)

// ThinkingBlock is a reasoning-trace segment. Signature, when present, is
// an opaque value from the provider that must be preserved verbatim if
// the block is ever replayed back to that provider.
type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ToolUseResultKind discriminates ToolUse.Result without resorting to a
// sentinel string.
type ToolUseResultKind string

const (
	ToolUseResultOK      ToolUseResultKind = "ok"
	ToolUseResultErr     ToolUseResultKind = "err"
	ToolUseResultPending ToolUseResultKind = "pending"
)

// ToolUseResult is the outcome recorded against one ToolUse after the
// Tool Loop Kernel resolves (or fails to resolve) its handler.
type ToolUseResult struct {
	Kind ToolUseResultKind `json:"kind"`
	Text string            `json:"text,omitempty"`
	Err  string            `json:"err,omitempty"`
}

// OK builds a successful ToolUseResult.
func OK(text string) ToolUseResult { return ToolUseResult{Kind: ToolUseResultOK, Text: text} }

// Err builds a failed ToolUseResult.
func Err(reason string) ToolUseResult { return ToolUseResult{Kind: ToolUseResultErr, Err: reason} }

// Pending marks a ToolUse as awaiting external resolution (e.g. the
// subprocess adapter itself will answer it).
func Pending() ToolUseResult { return ToolUseResult{Kind: ToolUseResultPending} }

// ToolUse is one model-requested tool invocation. Id is server-assigned
// and is the primary key used to match a later tool-result event back to
// this call; it must be unique within a single Response.
type ToolUse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
	HookResult HookResult      `json:"hook_result"`
	Result     ToolUseResult   `json:"result"`
}

// Usage is token and cost accounting for one provider call. The invariant
// TotalTokens >= InputTokens+OutputTokens holds whenever both are present.
type Usage struct {
	InputTokens         int      `json:"input_tokens"`
	OutputTokens        int      `json:"output_tokens"`
	CacheReadTokens     int      `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int      `json:"cache_creation_tokens,omitempty"`
	TotalTokens         int      `json:"total_tokens"`
	CostUSD             *float64 `json:"cost_usd,omitempty"`
}

// Timing records monotonic latency for one request.
type Timing struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Response is the normalized result returned to every Dispatcher caller.
type Response struct {
	Text         string          `json:"text"`
	Thinking     []ThinkingBlock `json:"thinking,omitempty"`
	ToolUses     []ToolUse       `json:"tool_uses,omitempty"`
	Usage        Usage           `json:"usage"`
	SessionID    string          `json:"session_id,omitempty"`
	Model        string          `json:"model"`
	Provider     ProviderId      `json:"provider"`
	FinishReason FinishReason    `json:"finish_reason"`
	Timing       Timing          `json:"timing"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}
