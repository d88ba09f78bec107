package eventmachine

import (
	"fmt"
	"sort"
)

// MaxAlwaysTraversals bounds the number of consecutive `@always`
// evaluations the engine performs for one outer event before giving up,
// preventing an infinite eventless loop (spec.md §4.2.7, §9 open
// question — the source does not make this bound explicit; 64 is the
// spec's own recommendation).
const MaxAlwaysTraversals = 64

// TransitionEngine implements spec.md §4.2: given a current State and an
// Event it produces the next State plus the internal trace records
// appended to the Log along the way. It holds no mutable state of its
// own; a call appends to the State's Log and mutates the State's Context
// in place. This mirrors the teacher's stateless HandleEventWithContext dispatch in
// machine.go, generalized from the teacher's single active-state model
// to the spec's multi-leaf (parallel-aware) active configuration.
type TransitionEngine struct {
	Definition *MachineDefinition
	Observers  *ObserverManager
}

// NewTransitionEngine returns an engine bound to def, with an empty
// ObserverManager ready for callers to Register against.
func NewTransitionEngine(def *MachineDefinition) *TransitionEngine {
	return &TransitionEngine{Definition: def, Observers: NewObserverManager()}
}

func (e *TransitionEngine) mid() string { return e.Definition.ID }

// record appends a trace EventRecord of the given type to log, snapshotting
// the current active_leaves.
func (e *TransitionEngine) record(log *Log, rootEventID string, source EventSource, typ string, activeLeaves []string, payload any) EventRecord {
	rec := log.Append(EventRecord{
		MachineID:    e.mid(),
		RootEventID:  rootEventID,
		Source:       source,
		Type:         typ,
		MachineValue: append([]string(nil), activeLeaves...),
		Payload:      payload,
	})
	e.Observers.NotifyTransition(rec)
	return rec
}

// Start computes the initial State (spec.md §4.1 "getInitialState"):
// descend from the root into initial children/parallel regions, running
// entry actions outer→inner, logging `<mid>.start`, enter records, and
// then draining `@always` transitions to a fixed point.
func (e *TransitionEngine) Start(log *Log, rootEventID string) (State, error) {
	def := e.Definition
	ctx := NewContextManager(def.InitialData, def.ContextSchema)

	st := State{Context: ctx, History: log}
	e.record(log, rootEventID, SourceInternal, e.mid()+".start", nil, nil)

	e.Observers.NotifyMachineStarted(rootEventID)

	entryPath := append([]*StateDefinition{def.Root}, descendInto(def.Root)...)
	var raised []Event
	if err := e.enterStates(log, rootEventID, &st, entryPath, &raised); err != nil {
		return State{}, err
	}

	if err := e.drainAlways(log, rootEventID, &st, &raised); err != nil {
		return State{}, err
	}
	if err := e.drainRaised(log, rootEventID, &st, raised); err != nil {
		return State{}, err
	}
	return st, nil
}

// Step processes one externally- or internally-sourced event against
// the current state, returning the resulting State (spec.md §4.2).
func (e *TransitionEngine) Step(log *Log, rootEventID string, st State, evt Event) (State, error) {
	evt = evt.normalize()

	e.record(log, rootEventID, evt.Source, evt.Type, st.ActiveLeaves, evt.Payload)

	if schema, ok := e.Definition.Behaviors.eventSchema(evt.Type); ok {
		if err := validatePayload(evt.Type, evt.Payload, schema); err != nil {
			e.record(log, rootEventID, SourceInternal, e.mid()+".transition..."+evt.Type+".fail", st.ActiveLeaves, nil)
			return State{}, err
		}
	}

	matches := findTransitionMatches(st.CurrentLeaves, evt.Type)
	if len(matches) == 0 {
		err := NewNoTransitionDefinitionError(leafIDs(st.CurrentLeaves), evt.Type)
		e.Observers.NotifyEventRejected(rootEventID, evt.Type, err)
		return State{}, err
	}

	next := st
	var raised []Event
	anyApplied := false

	for _, m := range matches {
		if m.Transition.Forbidden {
			continue
		}
		applied, err := e.applyTransition(log, rootEventID, &next, m, evt, &raised)
		if err != nil {
			return State{}, err
		}
		if applied {
			anyApplied = true
		}
	}
	_ = anyApplied

	if err := e.drainAlways(log, rootEventID, &next, &raised); err != nil {
		return State{}, err
	}
	if err := e.drainRaised(log, rootEventID, &next, raised); err != nil {
		return State{}, err
	}
	return next, nil
}

type transitionMatch struct {
	Definer    *StateDefinition
	Transition *TransitionDefinition
}

// findTransitionMatches performs the ancestor-fallback lookup of
// spec.md §4.2.2 for every currently active leaf, deduplicating matches
// that resolve to the same ancestor definer (the case where a shared
// ancestor above a parallel split defines the event).
func findTransitionMatches(leaves []*StateDefinition, eventType string) []transitionMatch {
	seen := map[*StateDefinition]bool{}
	var out []transitionMatch
	for _, leaf := range leaves {
		for n := leaf; n != nil; n = n.Parent {
			if td, ok := n.Transitions[eventType]; ok {
				if !seen[n] {
					seen[n] = true
					out = append(out, transitionMatch{Definer: n, Transition: td})
				}
				break
			}
		}
	}
	return out
}

// applyTransition runs calculators→guards→branch selection for one
// matched definer and, if a branch is chosen, performs the exit/action/
// entry sequence of spec.md §4.2.4-5, mutating st in place.
func (e *TransitionEngine) applyTransition(log *Log, rootEventID string, st *State, m transitionMatch, evt Event, raised *[]Event) (bool, error) {
	srcID := m.Definer.ID
	e.record(log, rootEventID, SourceInternal, e.mid()+".transition."+srcID+"."+evt.Type+".start", st.ActiveLeaves, nil)

	env := Envelope{Context: st.Context, Event: evt, State: *st, Log: log}
	raiseFn := func(ev Event) {
		ev.Source = SourceInternal
		*raised = append(*raised, ev)
	}

	branch, _, trialCtx, err := m.Transition.selectBranch(
		func(refs []BehaviorRef) (*ContextManager, error) {
			// calculators run against a fork of the live Context, never the
			// live Context itself (spec.md §4.2.3): the fork is discarded if
			// this branch's guards don't pass, so a mutating calculator on an
			// abandoned branch never leaks into st.Context.
			trial := st.Context.Fork()
			trialEnv := env
			trialEnv.Context = trial
			if err := e.runCalculators(trialEnv, refs); err != nil {
				return nil, err
			}
			return trial, nil
		},
		func(trial *ContextManager, refs []BehaviorRef) (bool, error) {
			guardEnv := env
			guardEnv.Context = trial
			return e.runGuards(log, rootEventID, guardEnv, refs)
		},
	)
	if err != nil {
		e.record(log, rootEventID, SourceInternal, e.mid()+".transition."+srcID+"."+evt.Type+".fail", st.ActiveLeaves, nil)
		return false, err
	}
	if branch == nil {
		e.record(log, rootEventID, SourceInternal, e.mid()+".transition."+srcID+"."+evt.Type+".fail", st.ActiveLeaves, nil)
		return false, nil
	}

	// the winning branch's calculator mutations become real now that it has
	// been selected; env.Context (== st.Context) reflects them for the
	// actions and entry/exit behavior that follow.
	if trialCtx != nil {
		st.Context.Merge(trialCtx)
	}

	e.record(log, rootEventID, SourceInternal, e.mid()+".transition."+srcID+"."+evt.Type+".finish", st.ActiveLeaves, nil)

	if branch.TargetIsNull {
		// internal transition: actions only, no exit/entry, no leaf change.
		if err := e.runActions(log, rootEventID, env, branch.Actions, raiseFn); err != nil {
			return false, err
		}
		return true, nil
	}

	source := m.Definer
	target := branch.Target

	exitSet := computeExitSet(source, target, st.CurrentLeaves)
	for _, n := range exitSet {
		e.record(log, rootEventID, SourceInternal, e.mid()+".state."+n.ID+".exit.start", st.ActiveLeaves, nil)
		if err := e.runBehaviorSeq(env, n.Exit); err != nil {
			return false, err
		}
		e.record(log, rootEventID, SourceInternal, e.mid()+".state."+n.ID+".exit.finish", st.ActiveLeaves, nil)
		rec := e.record(log, rootEventID, SourceInternal, e.mid()+".state."+n.ID+".exit", st.ActiveLeaves, nil)
		e.Observers.NotifyStateExit(rec)
	}

	st.ActiveLeaves, st.CurrentLeaves = removeSubtree(st.ActiveLeaves, st.CurrentLeaves, source)

	if err := e.runActions(log, rootEventID, env, branch.Actions, raiseFn); err != nil {
		return false, err
	}

	entrySet := computeEntrySet(source, target)
	if err := e.enterStates(log, rootEventID, st, entrySet, raised); err != nil {
		return false, err
	}

	return true, nil
}

// enterStates executes entry actions outer→inner for each node in path
// and folds the leaves among them into st's active configuration.
func (e *TransitionEngine) enterStates(log *Log, rootEventID string, st *State, path []*StateDefinition, raised *[]Event) error {
	raiseFn := func(ev Event) {
		ev.Source = SourceInternal
		*raised = append(*raised, ev)
	}
	for _, n := range path {
		rec := e.record(log, rootEventID, SourceInternal, e.mid()+".state."+n.ID+".enter", st.ActiveLeaves, nil)
		e.Observers.NotifyStateEnter(rec)
		e.record(log, rootEventID, SourceInternal, e.mid()+".state."+n.ID+".entry.start", st.ActiveLeaves, nil)
		env := Envelope{Context: st.Context, State: *st, Log: log}
		if err := e.runActions(log, rootEventID, env, n.Entry, raiseFn); err != nil {
			return err
		}
		e.record(log, rootEventID, SourceInternal, e.mid()+".state."+n.ID+".entry.finish", st.ActiveLeaves, nil)

		if n.Kind == KindAtomic || n.Kind == KindFinal {
			st.ActiveLeaves = append(st.ActiveLeaves, n.ID)
			st.CurrentLeaves = append(st.CurrentLeaves, n)
		}
	}
	return nil
}

// drainAlways repeatedly checks every currently-active leaf for an
// `@always` transition and applies the first one found, up to
// MaxAlwaysTraversals times (spec.md §4.2.7).
func (e *TransitionEngine) drainAlways(log *Log, rootEventID string, st *State, raised *[]Event) error {
	for i := 0; i < MaxAlwaysTraversals; i++ {
		matches := findTransitionMatches(st.CurrentLeaves, "@always")
		if len(matches) == 0 {
			return nil
		}
		progressed := false
		for _, m := range matches {
			if m.Transition.Forbidden {
				continue
			}
			evt := Event{Type: "@always", Source: SourceInternal}
			applied, err := e.applyTransition(log, rootEventID, st, m, evt, raised)
			if err != nil {
				return err
			}
			if applied {
				progressed = true
			}
		}
		if !progressed {
			return nil
		}
	}
	return nil
}

// drainRaised processes raised events strictly in FIFO order, after the
// originating event's own entry sequence has fully completed (spec.md
// §4.2.6). Each raised event can itself raise further events, which are
// appended to the same queue.
func (e *TransitionEngine) drainRaised(log *Log, rootEventID string, st *State, queue []Event) error {
	for len(queue) > 0 {
		evt := queue[0]
		queue = queue[1:]

		next, err := e.Step(log, rootEventID, *st, evt)
		if err != nil {
			if _, ok := err.(*ValidationError); ok {
				// spec.md §9 open question: drop only the raised event, continue draining.
				continue
			}
			return err
		}
		*st = next
	}
	return nil
}

func (e *TransitionEngine) runCalculators(env Envelope, refs []BehaviorRef) error {
	for _, ref := range refs {
		fn, err := e.Definition.Behaviors.resolveCalculator(ref.Name)
		if err != nil {
			return err
		}
		env.Args = ref.Args
		if err := safeCalculator(fn, env); err != nil {
			return err
		}
	}
	return nil
}

func (e *TransitionEngine) runGuards(log *Log, rootEventID string, env Envelope, refs []BehaviorRef) (bool, error) {
	for _, ref := range refs {
		fn, err := e.Definition.Behaviors.resolveGuard(ref.Name)
		if err != nil {
			return false, err
		}
		env.Args = ref.Args
		e.record(log, rootEventID, SourceInternal, e.mid()+".guard."+ref.Name+".start", env.State.ActiveLeaves, nil)
		ok, gerr := safeGuard(fn, env)
		if gerr != nil {
			e.record(log, rootEventID, SourceInternal, e.mid()+".guard."+ref.Name+".fail", env.State.ActiveLeaves, nil)
			return false, NewValidationGuardError(ref.Name, gerr.Error())
		}
		if !ok {
			rec := e.record(log, rootEventID, SourceInternal, e.mid()+".guard."+ref.Name+".fail", env.State.ActiveLeaves, nil)
			e.Observers.NotifyGuardEvaluation(rec, false)
			return false, nil
		}
		rec := e.record(log, rootEventID, SourceInternal, e.mid()+".guard."+ref.Name+".pass", env.State.ActiveLeaves, nil)
		e.Observers.NotifyGuardEvaluation(rec, true)
	}
	return true, nil
}

func (e *TransitionEngine) runActions(log *Log, rootEventID string, env Envelope, refs []BehaviorRef, raise func(Event)) error {
	for _, ref := range refs {
		fn, err := e.Definition.Behaviors.resolveAction(ref.Name)
		if err != nil {
			return err
		}
		env.Args = ref.Args
		e.record(log, rootEventID, SourceInternal, e.mid()+".action."+ref.Name+".start", env.State.ActiveLeaves, nil)

		var raisedHere []Event
		wrapRaise := func(ev Event) {
			raisedHere = append(raisedHere, ev)
		}
		if aerr := safeAction(fn, env, wrapRaise); aerr != nil {
			return NewActionError(string(KindAction), ref.Name, aerr)
		}
		rec := e.record(log, rootEventID, SourceInternal, e.mid()+".action."+ref.Name+".finish", env.State.ActiveLeaves, nil)
		e.Observers.NotifyActionExecution(rec)
		for _, rv := range raisedHere {
			e.record(log, rootEventID, SourceInternal, e.mid()+".event."+rv.Type+".raised", env.State.ActiveLeaves, rv.Payload)
			raise(rv)
		}
	}
	return nil
}

// runBehaviorSeq runs a plain ordered list of entry/exit actions (no
// guard/calculator machinery) that ignore raised events produced during
// exit — the spec does not describe exit actions raising events.
func (e *TransitionEngine) runBehaviorSeq(env Envelope, refs []BehaviorRef) error {
	for _, ref := range refs {
		fn, err := e.Definition.Behaviors.resolveAction(ref.Name)
		if err != nil {
			return err
		}
		env.Args = ref.Args
		if err := safeAction(fn, env, func(Event) {}); err != nil {
			return NewActionError(string(KindAction), ref.Name, err)
		}
	}
	return nil
}

func validatePayload(eventType string, payload any, schema []FieldSchema) error {
	m, _ := payload.(map[string]any)
	cm := NewContextManager(m, schema)
	if err := cm.SelfValidate(); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.EventType = eventType
			return ve
		}
		return err
	}
	return nil
}

func leafIDs(leaves []*StateDefinition) string {
	ids := make([]string, len(leaves))
	for i, l := range leaves {
		ids[i] = l.ID
	}
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// descendInto returns the ordered sequence of descendants entered when
// settling into s: its initial child (recursively) for a COMPOUND state,
// or every region's initial configuration (recursively) for a PARALLEL
// state, outer→inner (spec.md §4.1, §4.2.4).
func descendInto(s *StateDefinition) []*StateDefinition {
	switch s.Kind {
	case KindCompound:
		child, ok := s.Children[s.InitialChild]
		if !ok {
			return nil
		}
		return append([]*StateDefinition{child}, descendInto(child)...)
	case KindParallel:
		var out []*StateDefinition
		for _, region := range s.OrderedChildren() {
			out = append(out, region)
			out = append(out, descendInto(region)...)
		}
		return out
	default:
		return nil
	}
}

// computeExitSet returns, deepest-first, every currently-active node
// within source's subtree up to (but not including) the LCCA of source
// and target (spec.md §4.2.4). A self-transition (target == source)
// exits and re-enters source itself by treating source's parent as the
// boundary.
func computeExitSet(source, target *StateDefinition, activeLeaves []*StateDefinition) []*StateDefinition {
	boundary := lcca(source, target)
	if target == source {
		boundary = source.Parent
	}

	seen := map[*StateDefinition]bool{}
	var result []*StateDefinition
	for _, leaf := range activeLeaves {
		if leaf != source && !source.IsAncestorOf(leaf) {
			continue
		}
		for n := leaf; n != boundary && n != nil; n = n.Parent {
			if !seen[n] {
				seen[n] = true
				result = append(result, n)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Depth() > result[j].Depth()
	})
	return result
}

// computeEntrySet returns, outer→inner, the ancestors of target from the
// LCCA down through target itself, followed by target's own descent into
// its initial configuration (spec.md §4.2.4).
func computeEntrySet(source, target *StateDefinition) []*StateDefinition {
	boundary := lcca(source, target)
	if target == source {
		boundary = source.Parent
	}

	var chain []*StateDefinition
	for n := target; n != boundary && n != nil; n = n.Parent {
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return append(chain, descendInto(target)...)
}

// removeSubtree drops every active leaf that lies within source's
// subtree (the ones just exited) from both the id slice and the
// StateDefinition slice, preserving relative order of the survivors.
func removeSubtree(ids []string, leaves []*StateDefinition, source *StateDefinition) ([]string, []*StateDefinition) {
	var keptIDs []string
	var kept []*StateDefinition
	for i, l := range leaves {
		if l == source || source.IsAncestorOf(l) {
			continue
		}
		kept = append(kept, l)
		keptIDs = append(keptIDs, ids[i])
	}
	return keptIDs, kept
}

func safeGuard(fn Guard, env Envelope) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("guard panicked: %v", r)
		}
	}()
	return fn(env)
}

func safeAction(fn Action, env Envelope, raise func(Event)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return fn(env, raise)
}

func safeCalculator(fn Calculator, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calculator panicked: %v", r)
		}
	}()
	return fn(env)
}
