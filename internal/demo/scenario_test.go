package demo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSuccessfulHealReachesVerify(t *testing.T) {
	bus := newTestBus()
	pipeline := NewPipeline(bus, NewProtectedModuleEvaluator("internal/budget"))
	runner := NewRunner(bus, pipeline, time.Second)

	sc := Scenario{
		Name:          ScenarioSuccessfulHeal,
		Fault:         Fault{Kind: FaultLeakingWorker, CorrelationID: "corr-1"},
		Proposal:      Proposal{CorrelationID: "corr-1", Module: "internal/session"},
		ExpectedStage: StageVerify,
	}

	stage, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	require.Equal(t, StageVerify, stage)
}

func TestRejectedFixTargetingProtectedModule(t *testing.T) {
	bus := newTestBus()
	pipeline := NewPipeline(bus, NewProtectedModuleEvaluator("internal/budget"))
	runner := NewRunner(bus, pipeline, time.Second)

	sc := Scenario{
		Name:          ScenarioRejectedFix,
		Fault:         Fault{Kind: FaultCrashingSupervisor, CorrelationID: "corr-2"},
		Proposal:      Proposal{CorrelationID: "corr-2", Module: "internal/budget"},
		ExpectedStage: StageRejected,
	}

	stage, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	require.Equal(t, StageRejected, stage)
}

func TestSecondSuccessRetriesAfterFixFailed(t *testing.T) {
	bus := newTestBus()
	pipeline := NewPipeline(bus, NewProtectedModuleEvaluator())
	runner := NewRunner(bus, pipeline, time.Second)

	sc := Scenario{
		Name:          ScenarioSecondSuccess,
		Fault:         Fault{Kind: FaultQueueFlood, CorrelationID: "corr-3"},
		Proposal:      Proposal{CorrelationID: "corr-3", Module: "internal/session", FailOnApply: true},
		ExpectedStage: StageVerify,
	}

	stage, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	require.Equal(t, StageVerify, stage)
}

func TestRunTimesOutWhenNoSignalArrives(t *testing.T) {
	bus := newTestBus()
	pipeline := NewPipeline(nil, NewProtectedModuleEvaluator()) // nil bus: Drive emits nothing
	runner := NewRunner(bus, pipeline, 20*time.Millisecond)

	sc := Scenario{
		Name:          ScenarioSuccessfulHeal,
		Fault:         Fault{Kind: FaultLeakingWorker, CorrelationID: "corr-4"},
		Proposal:      Proposal{CorrelationID: "corr-4", Module: "internal/session"},
		ExpectedStage: StageVerify,
	}

	_, err := runner.Run(context.Background(), sc)
	require.Error(t, err)
}

func TestRunMismatchedStageReportsError(t *testing.T) {
	bus := newTestBus()
	pipeline := NewPipeline(bus, NewProtectedModuleEvaluator("internal/budget"))
	runner := NewRunner(bus, pipeline, time.Second)

	sc := Scenario{
		Name:          ScenarioRejectedFix,
		Fault:         Fault{Kind: FaultCrashingSupervisor, CorrelationID: "corr-5"},
		Proposal:      Proposal{CorrelationID: "corr-5", Module: "internal/budget"},
		ExpectedStage: StageVerify, // wrong on purpose: this proposal will be rejected
	}

	stage, err := runner.Run(context.Background(), sc)
	require.Error(t, err)
	require.Equal(t, StageRejected, stage)
}
