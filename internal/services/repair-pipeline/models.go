// internal/services/repair-pipeline/models.go
package repairpipeline

// OutcomeKind tells the pipeline whether Tier 1 produced a value.
type OutcomeKind int

const (
	OutcomeRepaired OutcomeKind = iota
	OutcomeNeedsFallback
)

// HeuristicOutcome is either Repaired(Value) or NeedsFallback(Reason).
type HeuristicOutcome struct {
	Kind   OutcomeKind
	Value  interface{}
	Reason error
}

func repaired(v interface{}) HeuristicOutcome {
	return HeuristicOutcome{Kind: OutcomeRepaired, Value: v}
}

func needsFallback(reason error) HeuristicOutcome {
	return HeuristicOutcome{Kind: OutcomeNeedsFallback, Reason: reason}
}

func (o HeuristicOutcome) Repaired() bool {
	return o.Kind == OutcomeRepaired
}
