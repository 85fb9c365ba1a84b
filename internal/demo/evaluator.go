package demo

// Decision is the evaluator's verdict on a Proposal.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Proposal is the unit of work the pipeline drives from injection to a
// terminal stage.
type Proposal struct {
	CorrelationID string
	Module        string
	// FailOnApply simulates an apply step that fails after a proposal
	// clears evaluation, producing the fix_failed terminal stage.
	FailOnApply bool
}

// Evaluator decides whether a Proposal may proceed past evaluation.
type Evaluator interface {
	Evaluate(Proposal) Decision
}

// ProtectedModuleEvaluator rejects any proposal targeting a module on its
// protected list; this is the deterministic evaluator behind the
// rejected_fix scenario.
type ProtectedModuleEvaluator struct {
	protected map[string]struct{}
}

// NewProtectedModuleEvaluator builds an evaluator that rejects proposals
// targeting any of the named modules.
func NewProtectedModuleEvaluator(modules ...string) *ProtectedModuleEvaluator {
	protected := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		protected[m] = struct{}{}
	}
	return &ProtectedModuleEvaluator{protected: protected}
}

func (e *ProtectedModuleEvaluator) Evaluate(p Proposal) Decision {
	if _, ok := e.protected[p.Module]; ok {
		return DecisionRejected
	}
	return DecisionApproved
}
