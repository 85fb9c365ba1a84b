package promptbuilder

// Name identifies one of the seven prompt sections, in their fixed
// assembly order.
type Name string

const (
	Identity       Name = "identity"
	SelfKnowledge  Name = "self_knowledge"
	ToolGuidance   Name = "tool_guidance"
	Goals          Name = "goals"
	WorkingMemory  Name = "working_memory"
	KnowledgeGraph Name = "knowledge_graph"
	Timing         Name = "timing"
)

// Order is the fixed assembly order: the three stable sections first,
// then the four volatile ones.
var Order = []Name{
	Identity, SelfKnowledge, ToolGuidance,
	Goals, WorkingMemory, KnowledgeGraph, Timing,
}

// BudgetKind discriminates the two budget shapes a section can have.
type BudgetKind string

const (
	BudgetFixed  BudgetKind = "fixed"
	BudgetMinMax BudgetKind = "min_max"
)

// Budget is a per-section token budget, either a flat token count or a
// min/max/percentage rule resolved against the model's context window.
type Budget struct {
	Kind BudgetKind

	// Fixed
	Tokens int

	// MinMax
	Min int
	Max int
	Pct float64
}

// ResolveTokens returns the effective token budget for this section given
// the model's total context window: N = clamp(min, pct * context, max).
func (b Budget) ResolveTokens(contextWindow int) int {
	if b.Kind == BudgetFixed {
		return b.Tokens
	}
	n := int(b.Pct * float64(contextWindow))
	if n < b.Min {
		n = b.Min
	}
	if n > b.Max {
		n = b.Max
	}
	return n
}

// Source supplies the raw content for one section. A nil error with an
// empty string means "omit this section"; an error means the backing
// store was unavailable and the section must be skipped, not errored.
type Source interface {
	Fetch(section Name) (string, error)
}
