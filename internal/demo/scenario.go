package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/kiln-ai/router/internal/signalbus"
)

// ScenarioName is one of the three canonical demo scenarios.
type ScenarioName string

const (
	ScenarioSuccessfulHeal ScenarioName = "successful_heal"
	ScenarioRejectedFix    ScenarioName = "rejected_fix"
	ScenarioSecondSuccess  ScenarioName = "second_success"
)

// Scenario bundles a fault, the proposal it drives, and the terminal
// stage a correct pipeline run should reach.
type Scenario struct {
	Name          ScenarioName
	Fault         Fault
	Proposal      Proposal
	ExpectedStage Stage
}

// Runner drives a Scenario through a Pipeline and waits for a terminal
// "demo.*" signal correlated to the scenario's fault, comparing the
// observed stage against the scenario's expectation.
type Runner struct {
	bus      *signalbus.Bus
	pipeline *Pipeline
	timeout  time.Duration
}

// NewRunner builds a Runner. timeout bounds how long Run waits for a
// terminal stage signal before failing.
func NewRunner(bus *signalbus.Bus, pipeline *Pipeline, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{bus: bus, pipeline: pipeline, timeout: timeout}
}

// Run drives sc and returns the observed terminal stage. For
// second_success it drives twice: the first pass is expected to land on
// fix_failed, the second (identical fault, FailOnApply cleared) is
// expected to reach the scenario's ExpectedStage.
func (r *Runner) Run(ctx context.Context, sc Scenario) (Stage, error) {
	if sc.Name == ScenarioSecondSuccess {
		if _, err := r.runOnce(ctx, sc.Fault, sc.Proposal, StageFixFailed); err != nil {
			return "", fmt.Errorf("first attempt: %w", err)
		}
		retry := sc.Proposal
		retry.FailOnApply = false
		return r.runOnce(ctx, sc.Fault, retry, sc.ExpectedStage)
	}
	return r.runOnce(ctx, sc.Fault, sc.Proposal, sc.ExpectedStage)
}

func (r *Runner) runOnce(ctx context.Context, f Fault, prop Proposal, expected Stage) (Stage, error) {
	terminal := make(chan Stage, 1)
	subID := r.bus.Subscribe("demo.*", func(sig signalbus.Signal) {
		switch Stage(sig.Type) {
		case StageVerify, StageRejected, StageFixFailed:
		default:
			return
		}
		data, ok := sig.Data.(stageData)
		if !ok || data.CorrelationID != f.CorrelationID {
			return
		}
		select {
		case terminal <- Stage(sig.Type):
		default:
		}
	})
	defer r.bus.Unsubscribe(subID)

	r.pipeline.Drive(ctx, f, prop)

	select {
	case stage := <-terminal:
		if stage != expected {
			return stage, fmt.Errorf("expected terminal stage %q, got %q", expected, stage)
		}
		return stage, nil
	case <-time.After(r.timeout):
		return "", fmt.Errorf("scenario timed out waiting for a terminal stage (correlation_id=%s)", f.CorrelationID)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
