package demo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiln-ai/router/internal/signalbus"
)

func newTestBus() *signalbus.Bus {
	return signalbus.New(nil)
}

func TestProtectedModuleEvaluatorRejectsOnlyListedModules(t *testing.T) {
	e := NewProtectedModuleEvaluator("internal/budget", "internal/session")

	require.Equal(t, DecisionRejected, e.Evaluate(Proposal{Module: "internal/budget"}))
	require.Equal(t, DecisionApproved, e.Evaluate(Proposal{Module: "internal/demo"}))
}

func TestPipelineDriveEmitsEvaluatedBeforeTerminal(t *testing.T) {
	bus := newTestBus()
	var stages []Stage
	bus.Subscribe("demo.*", func(sig signalbus.Signal) {
		stages = append(stages, Stage(sig.Type))
	})

	p := NewPipeline(bus, NewProtectedModuleEvaluator())
	p.Drive(nil, Fault{Kind: FaultQueueFlood, CorrelationID: "c"}, Proposal{CorrelationID: "c", Module: "m"})

	require.Equal(t, []Stage{StageInjected, StageEvaluated, StageVerify}, stages)
}

func TestPipelineDriveNilBusIsNoop(t *testing.T) {
	p := NewPipeline(nil, NewProtectedModuleEvaluator())
	p.Drive(nil, Fault{Kind: FaultLeakingWorker, CorrelationID: "c"}, Proposal{CorrelationID: "c"})
}
