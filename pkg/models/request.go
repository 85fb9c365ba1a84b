package models

import "encoding/json"

// Message is one turn in a Request's ordered conversation.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolUse    `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolResult carries a tool's output back into the next message sent to
// the provider, keyed by the ToolUse id it answers.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ToolDescriptor describes one callable tool offered to the model.
//
// Name must be unique within a single Request; a descriptor list with a
// repeated name resolves to "last wins" when loaded into a ToolRegistry.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// Handler is either a locally registered handler name or an opaque
	// external executor id the adapter itself resolves. The Tool Loop
	// Kernel does not read this field: it marks a tool_use pending when no
	// handler is registered under the tool's name in its Registry.
	Handler string `json:"handler,omitempty"`
}

// ProviderOptions is a free-form bag of provider-specific knobs that do
// not merit a first-class Request field.
type ProviderOptions map[string]any

// Request is immutable once submitted to a provider adapter or the
// dispatcher.
type Request struct {
	Provider        ProviderId      `json:"provider"`
	Model           string          `json:"model"`
	Messages        []Message       `json:"messages"`
	Tools           []ToolDescriptor `json:"tools,omitempty"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	Temperature     float64         `json:"temperature,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
	ProviderOptions ProviderOptions `json:"provider_options,omitempty"`

	// SessionID, when set, asks a subprocess_session adapter to resume an
	// existing provider-issued session rather than starting fresh.
	SessionID string `json:"session_id,omitempty"`
}

// HasTools reports whether this request carries any tool descriptors.
func (r *Request) HasTools() bool {
	return len(r.Tools) > 0
}
