package models

import "time"

// StatsKey identifies one Usage Stats row.
type StatsKey struct {
	Provider ProviderId `json:"provider"`
	Model    string     `json:"model"`
}

// LatencyRingSize is the bounded ring capacity: the 101st push evicts the
// oldest of exactly 100 retained samples.
const LatencyRingSize = 100

// StatsEntry is the value half of a StatsKey row.
type StatsEntry struct {
	Requests          int64     `json:"requests"`
	Successes         int64     `json:"successes"`
	Failures          int64     `json:"failures"`
	TotalInputTokens  int64     `json:"total_input_tokens"`
	TotalOutputTokens int64     `json:"total_output_tokens"`
	TotalCostUSD      float64   `json:"total_cost_usd"`
	LatencySamples    []float64 `json:"latency_samples"`
	LastSuccessTS     time.Time `json:"last_success_ts,omitempty"`
	LastFailureTS     time.Time `json:"last_failure_ts,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	FirstRecordedTS   time.Time `json:"first_recorded_ts"`
}

// SuccessRate is successes/requests, defined as 1.0 when requests is 0.
func (e *StatsEntry) SuccessRate() float64 {
	if e.Requests == 0 {
		return 1.0
	}
	return float64(e.Successes) / float64(e.Requests)
}
