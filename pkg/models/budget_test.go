package models

import "testing"

func TestBudgetRemaining(t *testing.T) {
	b := &Budget{DailyBudgetUSD: 10, SpentTodayUSD: 12}
	if got := b.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %v, want 0 (floored)", got)
	}
}

func TestBudgetPercentRemainingUnlimited(t *testing.T) {
	b := &Budget{DailyBudgetUSD: 0, SpentTodayUSD: 500}
	if got := b.PercentRemaining(); got != 1.0 {
		t.Fatalf("PercentRemaining() = %v, want 1.0 for unconfigured cap", got)
	}
}

func TestStatsEntrySuccessRateEmpty(t *testing.T) {
	e := &StatsEntry{}
	if got := e.SuccessRate(); got != 1.0 {
		t.Fatalf("SuccessRate() = %v, want 1.0 for zero requests", got)
	}
}

func TestStatsEntrySuccessRate(t *testing.T) {
	e := &StatsEntry{Requests: 10, Successes: 5}
	if got := e.SuccessRate(); got != 0.5 {
		t.Fatalf("SuccessRate() = %v, want 0.5", got)
	}
}
