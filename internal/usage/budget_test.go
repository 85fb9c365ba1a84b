package usage

import (
	"testing"
	"time"
)

func testPrices() PriceTable {
	return PriceTable{
		"openai": {
			"gpt-4": ModelPrice{InputPerMillion: 30, OutputPerMillion: 60},
		},
	}
}

func TestRecordUsageComputesCost(t *testing.T) {
	tr := NewTracker(100, testPrices(), nil)
	cost := tr.RecordUsage("openai", "gpt-4", 1_000_000, 0)
	if cost != 30 {
		t.Fatalf("expected cost 30, got %v", cost)
	}
	status := tr.Status()
	if status.SpentTodayUSD != 30 {
		t.Fatalf("expected spent today 30, got %v", status.SpentTodayUSD)
	}
	if status.PerProvider["openai"] != 30 {
		t.Fatalf("expected per-provider spend 30, got %v", status.PerProvider["openai"])
	}
}

func TestIsExceeded(t *testing.T) {
	tr := NewTracker(10, testPrices(), nil)
	if tr.IsExceeded() {
		t.Fatal("expected not exceeded before any usage")
	}
	tr.RecordUsage("openai", "gpt-4", 1_000_000, 0) // cost 30 > cap 10
	if !tr.IsExceeded() {
		t.Fatal("expected exceeded after usage surpassing cap")
	}
}

func TestUnlimitedBudgetNeverExceeded(t *testing.T) {
	tr := NewTracker(0, testPrices(), nil)
	tr.RecordUsage("openai", "gpt-4", 10_000_000, 10_000_000)
	if tr.IsExceeded() {
		t.Fatal("a cap of 0 must mean unlimited")
	}
	status := tr.Status()
	if status.PercentRemaining != 1.0 {
		t.Fatalf("expected percent remaining 1.0 for unlimited budget, got %v", status.PercentRemaining)
	}
}

func TestUTCMidnightRollover(t *testing.T) {
	clock := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)
	tr := NewTracker(100, testPrices(), func() time.Time { return clock })

	tr.RecordUsage("openai", "gpt-4", 1_000_000, 0)
	if tr.Status().SpentTodayUSD != 30 {
		t.Fatalf("expected 30 spent before rollover, got %v", tr.Status().SpentTodayUSD)
	}

	clock = clock.Add(2 * time.Minute) // crosses into 2026-08-01 UTC
	status := tr.Status()
	if status.SpentTodayUSD != 0 {
		t.Fatalf("expected spend reset to 0 after UTC midnight rollover, got %v", status.SpentTodayUSD)
	}
	if len(status.PerProvider) != 0 {
		t.Fatalf("expected per-provider map cleared after rollover, got %v", status.PerProvider)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	tr := NewTracker(10, testPrices(), nil)
	tr.RecordUsage("openai", "gpt-4", 2_000_000, 0) // cost 60, far past cap
	status := tr.Status()
	if status.RemainingUSD != 0 {
		t.Fatalf("expected remaining clamped at 0, got %v", status.RemainingUSD)
	}
}

func TestModelPriceEstimateUnknownModelIsZero(t *testing.T) {
	tr := NewTracker(100, testPrices(), nil)
	cost := tr.RecordUsage("openai", "unknown-model", 1_000_000, 1_000_000)
	if cost != 0 {
		t.Fatalf("expected zero cost for unpriced model, got %v", cost)
	}
}
