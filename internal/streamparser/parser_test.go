package streamparser

import (
	"encoding/json"
	"testing"
)

func TestFeedAssistantAccumulatesBlocks(t *testing.T) {
	p := New()
	ev := RawEvent{Type: "assistant", Message: json.RawMessage(`{
		"model": "claude-3",
		"content": [
			{"type":"text","text":"hello "},
			{"type":"thinking","thinking":"pondering","signature":"sig1"},
			{"type":"tool_use","id":"u1","name":"echo","input":{"text":"hi"}},
			{"type":"unknown_block","text":"dropped"}
		]
	}`)}
	p.Feed(ev)
	p.Feed(RawEvent{Type: "assistant", Message: json.RawMessage(`{"content":[{"type":"text","text":"world"}]}`)})

	snap := p.Finalize()
	if snap.Text != "hello world" {
		t.Fatalf("expected accumulated text, got %q", snap.Text)
	}
	if len(snap.Thinking) != 1 || snap.Thinking[0].Signature != "sig1" {
		t.Fatalf("expected 1 thinking block with signature preserved, got %+v", snap.Thinking)
	}
	if len(snap.ToolUses) != 1 || snap.ToolUses[0].Name != "echo" {
		t.Fatalf("expected 1 tool_use block, got %+v", snap.ToolUses)
	}
	if snap.Model != "claude-3" {
		t.Fatalf("expected model captured, got %q", snap.Model)
	}
}

func TestFeedResultCapturesSessionIDAndUsage(t *testing.T) {
	p := New()
	p.Feed(RawEvent{Type: "result", SessionID: "abc", Usage: json.RawMessage(`{"input_tokens":10,"output_tokens":5}`)})
	snap := p.Finalize()
	if snap.SessionID != "abc" {
		t.Fatalf("expected session id captured, got %q", snap.SessionID)
	}
	if snap.Usage.TotalTokens != 15 {
		t.Fatalf("expected total tokens 15, got %d", snap.Usage.TotalTokens)
	}
}

func TestSessionIDIsMonotonicAcrossReset(t *testing.T) {
	p := New()
	p.Feed(RawEvent{Type: "result", SessionID: "abc"})
	p.Reset()
	if p.SessionID() != "abc" {
		t.Fatalf("session id must survive Reset, got %q", p.SessionID())
	}
}

func TestFeedStreamEventSealsThinking(t *testing.T) {
	p := New()
	p.Feed(RawEvent{Type: "assistant", Message: json.RawMessage(`{"content":[{"type":"thinking","thinking":"x"}]}`)})
	complete := p.Feed(RawEvent{Type: "stream_event", Event: json.RawMessage(`{"type":"content_block_stop"}`)})
	if !complete {
		t.Fatal("expected content_block_stop with open thinking to report thinking-complete")
	}
}

func TestFeedToleratesMalformedInner(t *testing.T) {
	p := New()
	// Must not panic.
	p.Feed(RawEvent{Type: "assistant", Message: json.RawMessage(`not json`)})
	p.Feed(RawEvent{Type: "result", Usage: json.RawMessage(`not json`)})
	p.Feed(RawEvent{Type: "totally_unknown_event_type"})
}
