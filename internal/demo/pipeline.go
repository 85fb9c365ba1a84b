package demo

import (
	"context"

	"github.com/kiln-ai/router/internal/signalbus"
)

// Stage names one point in the pipeline's progress. verify, rejected,
// and fix_failed are its three terminal stages.
type Stage string

const (
	StageInjected  Stage = "injected"
	StageEvaluated Stage = "evaluated"
	StageVerify    Stage = "verify"
	StageRejected  Stage = "rejected"
	StageFixFailed Stage = "fix_failed"
)

// Pipeline drives one Proposal from fault injection to a terminal stage,
// announcing every step on the signal bus under the "demo" category so a
// Runner (or any other subscriber) can observe progress without coupling
// to the pipeline directly.
type Pipeline struct {
	bus       *signalbus.Bus
	evaluator Evaluator
}

// NewPipeline builds a Pipeline publishing to bus and deciding proposals
// with evaluator.
func NewPipeline(bus *signalbus.Bus, evaluator Evaluator) *Pipeline {
	return &Pipeline{bus: bus, evaluator: evaluator}
}

// Drive injects f, evaluates p, and carries it through to a terminal
// stage, emitting one "demo.<stage>" signal per step. It never blocks on
// a subscriber and never returns an error of its own — every outcome is
// reported as a signal instead.
func (p *Pipeline) Drive(ctx context.Context, f Fault, prop Proposal) {
	p.emit(StageInjected, f, prop, "")

	decision := p.evaluator.Evaluate(prop)
	p.emit(StageEvaluated, f, prop, decision)

	if decision == DecisionRejected {
		p.emit(StageRejected, f, prop, decision)
		return
	}

	if prop.FailOnApply {
		p.emit(StageFixFailed, f, prop, decision)
		return
	}

	p.emit(StageVerify, f, prop, decision)
}

func (p *Pipeline) emit(stage Stage, f Fault, prop Proposal, decision Decision) {
	if p.bus == nil {
		return
	}
	p.bus.Emit("demo", string(stage), stageData{
		CorrelationID: f.CorrelationID,
		FaultKind:     f.Kind,
		Module:        prop.Module,
		Decision:      decision,
	})
}

// stageData is the payload carried by every "demo.*" signal.
type stageData struct {
	CorrelationID string
	FaultKind     FaultKind
	Module        string
	Decision      Decision
}
