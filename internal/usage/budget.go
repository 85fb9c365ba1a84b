package usage

import (
	"sync"
	"time"

	"github.com/kiln-ai/router/pkg/models"
)

// PriceTable maps provider/model to per-million-token prices.
type PriceTable map[models.ProviderId]map[string]ModelPrice

// ModelPrice is priced per million tokens.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Estimate computes USD cost for the given token counts.
func (p ModelPrice) Estimate(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*p.InputPerMillion + float64(outputTokens)*p.OutputPerMillion) / 1_000_000
}

func (t PriceTable) lookup(provider models.ProviderId, model string) ModelPrice {
	if byModel, ok := t[provider]; ok {
		if price, ok := byModel[model]; ok {
			return price
		}
	}
	return ModelPrice{}
}

// BudgetStatus is the result of Tracker.Status.
type BudgetStatus struct {
	DailyBudgetUSD   float64
	SpentTodayUSD    float64
	RemainingUSD     float64
	PercentRemaining float64
	PerProvider      map[models.ProviderId]float64
}

// Tracker is a per-provider daily spend counter with a global daily cap,
// rolling at UTC midnight. A single mutex serializes all access.
type Tracker struct {
	mu          sync.Mutex
	dailyCapUSD float64
	prices      PriceTable

	spentToday  float64
	perProvider map[models.ProviderId]float64
	day         string // YYYY-MM-DD in UTC, used to detect midnight rollover
	nowFn       func() time.Time
}

// NewTracker constructs a Tracker with the given daily cap and price
// table. nowFn defaults to time.Now and exists only to make rollover
// testable.
func NewTracker(dailyCapUSD float64, prices PriceTable, nowFn func() time.Time) *Tracker {
	if nowFn == nil {
		nowFn = time.Now
	}
	t := &Tracker{
		dailyCapUSD: dailyCapUSD,
		prices:      prices,
		perProvider: make(map[models.ProviderId]float64),
		nowFn:       nowFn,
	}
	t.day = utcDay(nowFn())
	return t
}

func utcDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// RecordUsage computes cost via the price table and adds it to today's
// spend, rolling over first if UTC midnight has passed since the last
// record.
func (t *Tracker) RecordUsage(provider models.ProviderId, model string, inputTokens, outputTokens int) float64 {
	cost := t.prices.lookup(provider, model).Estimate(inputTokens, outputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	t.spentToday += cost
	t.perProvider[provider] += cost
	return cost
}

func (t *Tracker) rolloverLocked() {
	today := utcDay(t.nowFn())
	if today == t.day {
		return
	}
	t.day = today
	t.spentToday = 0
	t.perProvider = make(map[models.ProviderId]float64)
}

// Status returns a BudgetStatus snapshot, rolling over first if needed.
func (t *Tracker) Status() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	remaining := t.dailyCapUSD - t.spentToday
	if remaining < 0 {
		remaining = 0
	}
	percent := 1.0
	if t.dailyCapUSD > 0 {
		percent = remaining / t.dailyCapUSD
	}

	perProvider := make(map[models.ProviderId]float64, len(t.perProvider))
	for k, v := range t.perProvider {
		perProvider[k] = v
	}

	return BudgetStatus{
		DailyBudgetUSD:   t.dailyCapUSD,
		SpentTodayUSD:    t.spentToday,
		RemainingUSD:     remaining,
		PercentRemaining: percent,
		PerProvider:      perProvider,
	}
}

// IsExceeded reports whether today's spend has reached the daily cap. A
// cap of 0 or less means unlimited.
func (t *Tracker) IsExceeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	if t.dailyCapUSD <= 0 {
		return false
	}
	return t.spentToday >= t.dailyCapUSD
}
