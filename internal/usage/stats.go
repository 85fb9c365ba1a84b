// Package usage implements usage stats and the budget tracker. Writes
// are serialized through the Stats struct's mutex; reads copy out a
// snapshot under a brief lock: a bounded latency ring backs p95 and
// reliability ranking/alerting.
package usage

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kiln-ai/router/pkg/models"
)

// SuccessInput is what record_success takes.
type SuccessInput struct {
	Model        string
	LatencyMS    float64
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// FailureInput is what record_failure takes.
type FailureInput struct {
	Model     string
	LatencyMS float64
	Error     string
}

// AlertFunc is invoked once per reliability degradation event.
type AlertFunc func(provider models.ProviderId, model string, successRate float64)

// ReliabilityThreshold is the default crossing point for alerts.
const ReliabilityThreshold = 0.8

// Stats is the per-(provider,model) counters table.
type Stats struct {
	mu         sync.Mutex
	entries    map[models.StatsKey]*models.StatsEntry
	retention  time.Duration
	alert      AlertFunc
	alerted    map[models.StatsKey]bool // debounced: one alert per degradation event
	persist    *Persister
}

// NewStats constructs an empty Stats table. retention defaults to 7
// days. alert may be nil.
func NewStats(retention time.Duration, alert AlertFunc, persist *Persister) *Stats {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Stats{
		entries:   make(map[models.StatsKey]*models.StatsEntry),
		retention: retention,
		alert:     alert,
		alerted:   make(map[models.StatsKey]bool),
		persist:   persist,
	}
}

// RecordSuccess records a successful call. A non-positive latency MUST
// NOT push a latency sample.
func (s *Stats) RecordSuccess(provider models.ProviderId, in SuccessInput) {
	key := models.StatsKey{Provider: provider, Model: in.Model}
	now := time.Now()

	s.mu.Lock()
	e := s.getOrCreateLocked(key, now)
	e.Requests++
	e.Successes++
	e.TotalInputTokens += int64(in.InputTokens)
	e.TotalOutputTokens += int64(in.OutputTokens)
	e.TotalCostUSD += in.CostUSD
	e.LastSuccessTS = now
	if in.LatencyMS > 0 {
		pushLatency(e, in.LatencyMS)
	}
	// A success clears any standing degradation debounce so a future
	// re-degradation can alert again.
	delete(s.alerted, key)
	s.mu.Unlock()

	s.maybePersist()
}

// RecordFailure records a failed call and evaluates the reliability
// alert rule.
func (s *Stats) RecordFailure(provider models.ProviderId, in FailureInput) {
	key := models.StatsKey{Provider: provider, Model: in.Model}
	now := time.Now()

	var shouldAlert bool
	var rate float64

	s.mu.Lock()
	e := s.getOrCreateLocked(key, now)
	e.Requests++
	e.Failures++
	e.LastFailureTS = now
	e.LastError = in.Error
	if in.LatencyMS > 0 {
		pushLatency(e, in.LatencyMS)
	}

	rate = e.SuccessRate()
	if e.Requests >= 5 && rate < ReliabilityThreshold && !s.alerted[key] {
		shouldAlert = true
		s.alerted[key] = true
	}
	s.mu.Unlock()

	if shouldAlert && s.alert != nil {
		s.alert(provider, in.Model, rate)
	}
	s.maybePersist()
}

func (s *Stats) getOrCreateLocked(key models.StatsKey, now time.Time) *models.StatsEntry {
	e, ok := s.entries[key]
	if !ok {
		e = &models.StatsEntry{FirstRecordedTS: now}
		s.entries[key] = e
	}
	return e
}

// pushLatency inserts a sample at the front of the ring (most-recent
// first), evicting the oldest once the ring reaches LatencyRingSize.
func pushLatency(e *models.StatsEntry, ms float64) {
	e.LatencySamples = append([]float64{ms}, e.LatencySamples...)
	if len(e.LatencySamples) > models.LatencyRingSize {
		e.LatencySamples = e.LatencySamples[:models.LatencyRingSize]
	}
}

// Get returns a copy of the entry for (provider, model), or the zero
// value if absent.
func (s *Stats) Get(provider models.ProviderId, model string) models.StatsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[models.StatsKey{Provider: provider, Model: model}]
	if !ok {
		return models.StatsEntry{}
	}
	return cloneEntry(e)
}

// GetProvider aggregates across all models of provider.
func (s *Stats) GetProvider(provider models.ProviderId) models.StatsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var agg models.StatsEntry
	for key, e := range s.entries {
		if key.Provider != provider {
			continue
		}
		agg.Requests += e.Requests
		agg.Successes += e.Successes
		agg.Failures += e.Failures
		agg.TotalInputTokens += e.TotalInputTokens
		agg.TotalOutputTokens += e.TotalOutputTokens
		agg.TotalCostUSD += e.TotalCostUSD
		if e.LastSuccessTS.After(agg.LastSuccessTS) {
			agg.LastSuccessTS = e.LastSuccessTS
		}
		if e.LastFailureTS.After(agg.LastFailureTS) {
			agg.LastFailureTS = e.LastFailureTS
		}
	}
	return agg
}

// P95 returns the p95 latency over an entry's ring: the sample at
// position round(0.05*N)-1 in descending order, or 0 when empty.
func P95(entry models.StatsEntry) float64 {
	n := len(entry.LatencySamples)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), entry.LatencySamples...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	idx := int(roundHalfAwayFromZero(0.05*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func roundHalfAwayFromZero(x float64) float64 {
	if x < 0 {
		return -roundHalfAwayFromZero(-x)
	}
	whole := float64(int64(x))
	frac := x - whole
	if frac >= 0.5 {
		return whole + 1
	}
	return whole
}

// AvgLatency returns the arithmetic mean of an entry's latency samples.
func AvgLatency(entry models.StatsEntry) float64 {
	if len(entry.LatencySamples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range entry.LatencySamples {
		sum += v
	}
	return sum / float64(len(entry.LatencySamples))
}

// ReliabilityRank is one row of ReliabilityRanking's output.
type ReliabilityRank struct {
	Provider    models.ProviderId
	SuccessRate float64
}

// ReliabilityRanking returns providers sorted by aggregate success_rate
// descending; ties preserve insertion order of first appearance (a
// stable sort).
func (s *Stats) ReliabilityRanking() []ReliabilityRank {
	s.mu.Lock()

	type agg struct {
		requests, successes int64
		firstSeen           time.Time
		order               int
	}
	byProvider := make(map[models.ProviderId]*agg)
	order := 0
	// Iterate entries sorted by FirstRecordedTS to derive a stable
	// "first appearance" order for providers, since Go map iteration
	// order is randomized.
	keys := make([]models.StatsKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.entries[keys[i]].FirstRecordedTS.Before(s.entries[keys[j]].FirstRecordedTS)
	})

	for _, k := range keys {
		e := s.entries[k]
		a, ok := byProvider[k.Provider]
		if !ok {
			a = &agg{order: order}
			order++
			byProvider[k.Provider] = a
		}
		a.requests += e.Requests
		a.successes += e.Successes
	}
	s.mu.Unlock()

	ranks := make([]ReliabilityRank, 0, len(byProvider))
	for provider, a := range byProvider {
		rate := 1.0
		if a.requests > 0 {
			rate = float64(a.successes) / float64(a.requests)
		}
		ranks = append(ranks, ReliabilityRank{Provider: provider, SuccessRate: rate})
	}

	// Stable sort descending by success_rate; order field preserves
	// insertion order as the tiebreaker.
	orderOf := make(map[models.ProviderId]int, len(byProvider))
	for p, a := range byProvider {
		orderOf[p] = a.order
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].SuccessRate != ranks[j].SuccessRate {
			return ranks[i].SuccessRate > ranks[j].SuccessRate
		}
		return orderOf[ranks[i].Provider] < orderOf[ranks[j].Provider]
	})
	return ranks
}

// Reset clears every entry.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[models.StatsKey]*models.StatsEntry)
	s.alerted = make(map[models.StatsKey]bool)
}

// ResetProvider clears only entries for provider.
func (s *Stats) ResetProvider(provider models.ProviderId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.Provider == provider {
			delete(s.entries, k)
		}
	}
}

// Prune removes entries whose FirstRecordedTS predates the retention
// window.
func (s *Stats) Prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	for k, e := range s.entries {
		if e.FirstRecordedTS.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// Snapshot returns a deep copy of the whole table, keyed by the escaped
// "<provider>:<model>" string (Open Question #2, DESIGN.md).
func (s *Stats) Snapshot() map[string]models.StatsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.StatsEntry, len(s.entries))
	for k, e := range s.entries {
		out[EncodeKey(k)] = cloneEntry(e)
	}
	return out
}

// EncodeKey joins provider and model as "<provider>:<model>", percent
// encoding any colon within model so the join is unambiguous.
func EncodeKey(k models.StatsKey) string {
	return string(k.Provider) + ":" + url.QueryEscape(k.Model)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(raw string) (models.StatsKey, error) {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return models.StatsKey{}, &keyFormatError{raw: raw}
	}
	model, err := url.QueryUnescape(raw[idx+1:])
	if err != nil {
		return models.StatsKey{}, err
	}
	return models.StatsKey{Provider: models.ProviderId(raw[:idx]), Model: model}, nil
}

type keyFormatError struct{ raw string }

func (e *keyFormatError) Error() string { return "malformed stats key: " + e.raw }

func cloneEntry(e *models.StatsEntry) models.StatsEntry {
	cp := *e
	cp.LatencySamples = append([]float64(nil), e.LatencySamples...)
	return cp
}

