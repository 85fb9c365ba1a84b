// Package streamparser implements an incremental NDJSON decoder: it
// consumes one JSON-decoded subprocess event at a time and assembles the
// current assistant turn's text, thinking blocks, tool-use blocks,
// usage, session id, and model.
package streamparser

import (
	"encoding/json"

	"github.com/kiln-ai/router/pkg/models"
)

// RawEvent is one decoded NDJSON line from the subprocess CLI protocol.
type RawEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`

	Usage        json.RawMessage `json:"usage,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	DurationMS   int64           `json:"duration_ms,omitempty"`
	TotalCostUSD *float64        `json:"total_cost_usd,omitempty"`
}

type rawMessage struct {
	Model   string          `json:"model,omitempty"`
	Content []rawBlock      `json:"content,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

type rawBlock struct {
	Type string `json:"type"`

	// text block
	Text string `json:"text,omitempty"`

	// thinking block
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use block
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result block (from a "user" event echoing a result)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type innerEvent struct {
	Type string `json:"type"`
}

type rawUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// Parser holds the accumulators for one in-progress assistant turn. It
// never panics on malformed inner structures and silently drops unknown
// block types.
type Parser struct {
	text          string
	thinking      []models.ThinkingBlock
	openThinking  *models.ThinkingBlock
	toolUses      []models.ToolUse
	usage         models.Usage
	sessionID     string
	model         string
	thinkingSealedSinceReset bool
}

// New creates an empty Parser.
func New() *Parser {
	return &Parser{}
}

// Reset clears all accumulators to start a new turn.
func (p *Parser) Reset() {
	*p = Parser{sessionID: p.sessionID} // session id persists across turns (monotonic)
}

// Snapshot is returned by Finalize.
type Snapshot struct {
	Text      string
	Thinking  []models.ThinkingBlock
	ToolUses  []models.ToolUse
	Usage     models.Usage
	SessionID string
	Model     string
	// ThinkingComplete is true if a content_block_stop closed an open
	// thinking block during this turn (a synthetic signal, not a raw
	// event type).
	ThinkingComplete bool
}

// Feed consumes one decoded RawEvent and updates the accumulators. It
// returns true if this event produced a synthetic "thinking_complete"
// signal (an inner stream_event of type content_block_stop while at least
// one thinking block has accumulated in this turn).
func (p *Parser) Feed(ev RawEvent) (thinkingComplete bool) {
	switch ev.Type {
	case "assistant":
		p.feedAssistant(ev.Message)
	case "result":
		if ev.SessionID != "" {
			p.sessionID = ev.SessionID
		}
		if ev.Usage != nil {
			p.feedUsage(ev.Usage)
		}
	case "stream_event":
		return p.feedStreamEvent(ev.Event)
	default:
		// Unknown event types are dropped, not errored.
	}
	return false
}

func (p *Parser) feedAssistant(raw json.RawMessage) {
	if raw == nil {
		return
	}
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // malformed inner structure: tolerated, not surfaced
	}
	if msg.Model != "" {
		p.model = msg.Model
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			p.text += block.Text
		case "thinking":
			p.thinking = append(p.thinking, models.ThinkingBlock{Text: block.Thinking, Signature: block.Signature})
		case "tool_use":
			p.toolUses = append(p.toolUses, models.ToolUse{
				ID:         block.ID,
				Name:       block.Name,
				Input:      block.Input,
				HookResult: models.HookAllow,
				Result:     models.Pending(),
			})
		default:
			// unknown block type: dropped.
		}
	}
}

func (p *Parser) feedUsage(raw json.RawMessage) {
	var u rawUsage
	if err := json.Unmarshal(raw, &u); err != nil {
		return
	}
	p.usage = models.Usage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadInputTokens,
		CacheCreationTokens: u.CacheCreationInputTokens,
		TotalTokens:         u.InputTokens + u.OutputTokens,
	}
}

func (p *Parser) feedStreamEvent(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var inner innerEvent
	if err := json.Unmarshal(raw, &inner); err != nil {
		return false
	}
	if inner.Type == "content_block_stop" && len(p.thinking) > 0 {
		p.thinkingSealedSinceReset = true
		return true
	}
	return false
}

// Finalize returns an immutable snapshot of the current turn's
// accumulators without clearing them.
func (p *Parser) Finalize() Snapshot {
	return Snapshot{
		Text:      p.text,
		Thinking:  append([]models.ThinkingBlock(nil), p.thinking...),
		ToolUses:  append([]models.ToolUse(nil), p.toolUses...),
		Usage:     p.usage,
		SessionID: p.sessionID,
		Model:     p.model,

		ThinkingComplete: p.thinkingSealedSinceReset,
	}
}

// SessionID returns the most recently captured session id, which is
// monotonic across Reset calls: it never reverts to empty.
func (p *Parser) SessionID() string { return p.sessionID }
