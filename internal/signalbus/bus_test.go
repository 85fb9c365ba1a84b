package signalbus

import (
	"testing"
)

func TestEmitMatchesWildcard(t *testing.T) {
	b := New(nil)
	var got []Signal
	b.Subscribe("demo.*", func(s Signal) { got = append(got, s) })

	b.Emit("demo", "verify", map[string]string{"stage": "verify"})
	b.Emit("stats", "reliability_alert", nil)

	if len(got) != 1 {
		t.Fatalf("expected exactly 1 matching signal, got %d", len(got))
	}
	if got[0].Category != "demo" || got[0].Type != "verify" {
		t.Fatalf("unexpected signal: %+v", got[0])
	}
}

func TestEmitSwallowsPanickingSubscriber(t *testing.T) {
	b := New(nil)
	called := false
	b.Subscribe("x.*", func(Signal) { panic("boom") })
	b.Subscribe("x.*", func(Signal) { called = true })

	b.Emit("x", "y", nil) // must not panic out of the caller

	if !called {
		t.Fatal("second subscriber should still run after first panics")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	count := 0
	id := b.Subscribe("a.*", func(Signal) { count++ })
	b.Emit("a", "b", nil)
	b.Unsubscribe(id)
	b.Emit("a", "b", nil)

	if count != 1 {
		t.Fatalf("expected 1 delivery before unsubscribe, got %d", count)
	}
}
