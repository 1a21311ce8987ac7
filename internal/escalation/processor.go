package escalation

import (
	"time"

	"github.com/mtlprog/humantask/internal/domain"
)

// Selection is the step chosen by ApplicableStep.
type Selection struct {
	Step    Step
	Index   int
	IsFinal bool
	// Skipped lists the indexes between the executed count and Index whose
	// thresholds also elapsed but which will never fire individually.
	Skipped []int
}

// ApplicableStep returns the highest-indexed step, at or after
// executedSteps, whose threshold has elapsed since createdAt. When several
// thresholds passed since the last check only the latest one applies.
func ApplicableStep(chain Chain, createdAt time.Time, executedSteps int, now time.Time) (Selection, bool) {
	if executedSteps < 0 {
		executedSteps = 0
	}
	elapsed := now.Sub(createdAt).Milliseconds()

	for i := len(chain) - 1; i >= executedSteps; i-- {
		if elapsed < chain[i].AfterMillis {
			continue
		}
		sel := Selection{
			Step:    chain[i],
			Index:   i,
			IsFinal: i == len(chain)-1,
		}
		for skipped := executedSteps; skipped < i; skipped++ {
			sel.Skipped = append(sel.Skipped, skipped)
		}
		return sel, true
	}
	return Selection{}, false
}

// IsExhausted reports whether every step of the chain has been executed.
func (c Chain) IsExhausted(executedSteps int) bool {
	return executedSteps >= len(c)
}

// TargetSource records where a manual escalation target came from.
type TargetSource string

const (
	SourceExplicit TargetSource = "explicit"
	SourceChain    TargetSource = "chain"
	SourceCurrent  TargetSource = "current_assignment"
)

// ResolveManualTarget picks the target of a caller-initiated escalation:
// an explicit target, else the first step of the chain, else the task's
// current assignment.
func ResolveManualTarget(explicit *domain.Target, chain Chain, current domain.Assignment) (domain.Target, TargetSource) {
	if explicit != nil && !explicit.IsEmpty() {
		return *explicit, SourceExplicit
	}
	if len(chain) > 0 && !chain[0].Target.IsEmpty() {
		return chain[0].Target, SourceChain
	}
	return current.Target(), SourceCurrent
}

// DecisionKind is the outcome of evaluating a task during a sweep.
type DecisionKind string

const (
	DecisionNone    DecisionKind = "none"
	DecisionStep    DecisionKind = "step"
	DecisionDefault DecisionKind = "default"
	DecisionExpire  DecisionKind = "expire"
)

// Decision is what the sweep should do with a task right now.
type Decision struct {
	Kind      DecisionKind
	Selection Selection
}

// Decide evaluates a task at now. A chain step that applies wins. Without a
// chain, or with the chain exhausted, a passed deadline either expires the
// task or triggers the default escalation, depending on its breach action.
func Decide(task *domain.Task, now time.Time) Decision {
	chain := ParseConfig(task.EscalationConfig)

	if sel, ok := ApplicableStep(chain, task.CreatedAt, task.EscalationLevel, now); ok {
		return Decision{Kind: DecisionStep, Selection: sel}
	}

	if !task.IsOverdue(now) || !chain.IsExhausted(task.EscalationLevel) {
		return Decision{Kind: DecisionNone}
	}

	if task.BreachAction == domain.BreachActionExpire {
		return Decision{Kind: DecisionExpire}
	}
	return Decision{Kind: DecisionDefault}
}
