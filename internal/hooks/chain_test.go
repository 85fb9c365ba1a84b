package hooks

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunPreToolEmptyChainAllowsUnchanged(t *testing.T) {
	c := New(nil)
	input := json.RawMessage(`{"cmd":"ls"}`)
	out := c.RunPreTool(context.Background(), "shell", input)
	if !out.Allowed {
		t.Fatal("empty chain must allow")
	}
	if string(out.Input) != string(input) {
		t.Fatalf("empty chain must not modify input, got %s", out.Input)
	}
}

func TestRunPreToolDenyStopsChain(t *testing.T) {
	c := New(nil)
	secondCalled := false
	c.RegisterPreTool("block-rm", func(_ context.Context, toolName string, input json.RawMessage) (bool, json.RawMessage, string) {
		if strings.Contains(string(input), "rm ") {
			return false, nil, "blocked"
		}
		return true, nil, ""
	})
	c.RegisterPreTool("second", func(_ context.Context, toolName string, input json.RawMessage) (bool, json.RawMessage, string) {
		secondCalled = true
		return true, nil, ""
	})

	out := c.RunPreTool(context.Background(), "shell", json.RawMessage(`{"cmd":"rm -rf /"}`))
	if out.Allowed {
		t.Fatal("expected deny")
	}
	if out.Reason != "blocked" {
		t.Fatalf("expected reason 'blocked', got %q", out.Reason)
	}
	if secondCalled {
		t.Fatal("chain must stop at first deny")
	}
}

func TestRunPreToolModifyThenAllow(t *testing.T) {
	c := New(nil)
	c.RegisterPreTool("redact", func(_ context.Context, toolName string, input json.RawMessage) (bool, json.RawMessage, string) {
		return true, json.RawMessage(`{"cmd":"redacted"}`), ""
	})
	out := c.RunPreTool(context.Background(), "shell", json.RawMessage(`{"cmd":"secret"}`))
	if !out.Allowed {
		t.Fatal("expected allow")
	}
	if string(out.Input) != `{"cmd":"redacted"}` {
		t.Fatalf("expected modified input, got %s", out.Input)
	}
}

func TestRunPreToolPanicSwallowed(t *testing.T) {
	c := New(nil)
	c.RegisterPreTool("panics", func(_ context.Context, toolName string, input json.RawMessage) (bool, json.RawMessage, string) {
		panic("boom")
	})
	out := c.RunPreTool(context.Background(), "shell", json.RawMessage(`{}`))
	if !out.Allowed {
		t.Fatal("panicking hook should not block the loop")
	}
}
