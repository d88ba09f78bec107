package eventmachine

// Branch is one guarded alternative within a TransitionDefinition
// (spec.md §3 "TransitionDefinition"). The first branch whose
// calculators and guards all succeed is taken.
type Branch struct {
	// Target is the resolved destination state, or nil for an internal
	// transition (TargetIsNull true: the branch's actions run but no state
	// is exited or entered). A forbidden transition has no branches at
	// all — see TransitionDefinition.Forbidden.
	Target       *StateDefinition
	TargetIsNull bool
	// targetRef holds the unresolved string reference until
	// validateTransitionTargets resolves it to Target once the whole tree
	// exists.
	targetRef string

	Guards      []BehaviorRef
	Actions     []BehaviorRef
	Calculators []BehaviorRef
	Description string
}

// TransitionDefinition is the ordered list of Branches registered for one
// event name on one StateDefinition (spec.md §3). Forbidden marks a
// `null`-target transition that overrides ancestor fallback and consumes
// the event without any branch evaluation (spec.md §4.2.2, §3).
type TransitionDefinition struct {
	EventName string
	Branches  []Branch
	Forbidden bool
}

// selectBranch evaluates branches in order against the supplied
// evaluators, returning the first one whose calculators and guards both
// succeed. runCalculators/runGuards are injected by the engine so this
// function stays free of BehaviorRegistry concerns.
//
// runCalculators runs a branch's calculators against a trial Context and
// returns it (spec.md §4.2.3 "calculators are pure mutations on a trial
// Context"); runGuards then evaluates that same trial. The trial returned
// alongside a winning branch is the one the engine folds back into the
// live Context — trials belonging to skipped or abandoned branches are
// left for the caller to discard.
func (t *TransitionDefinition) selectBranch(
	runCalculators func([]BehaviorRef) (*ContextManager, error),
	runGuards func(*ContextManager, []BehaviorRef) (bool, error),
) (*Branch, int, *ContextManager, error) {
	for i := range t.Branches {
		b := &t.Branches[i]
		trial, err := runCalculators(b.Calculators)
		if err != nil {
			// calculator failure abandons only this branch (spec.md §4.2.3)
			continue
		}
		ok, err := runGuards(trial, b.Guards)
		if err != nil {
			// a ValidationGuardError is surfaced to the caller immediately
			return nil, i, nil, err
		}
		if ok {
			return b, i, trial, nil
		}
	}
	return nil, -1, nil, nil
}
