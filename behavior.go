package eventmachine

import "sync"

// BehaviorKind distinguishes the four invokable roles of spec.md §4.6.
type BehaviorKind string

const (
	KindAction     BehaviorKind = "action"
	KindGuard      BehaviorKind = "guard"
	KindCalculator BehaviorKind = "calculator"
	KindResult     BehaviorKind = "result"
)

// Envelope is the uniform invocation context passed to every behavior
// (spec.md §4.6, §9 "Runtime parameter injection"): Go has no reflection
// over a closure's declared parameter types the way the source language
// does, so instead of injecting only what a function "asks for", every
// behavior receives the full envelope and reads only the fields it
// needs.
type Envelope struct {
	Context *ContextManager
	Event   Event
	State   State
	Log     *Log
	Args    []string
}

// Action mutates context and/or raises further events; it does not
// return a value consumed by the engine beyond an error.
type Action func(env Envelope, raise func(Event)) error

// Guard evaluates a boolean condition. A non-nil error is treated as a
// ValidationGuardError carrying a diagnostic message (spec.md §4.2.3).
type Guard func(env Envelope) (bool, error)

// Calculator runs a pure mutation against a trial context before guards
// are evaluated for its branch.
type Calculator func(env Envelope) error

// ResultFn computes a value exposed to callers after a transition
// completes (not part of the persisted trace).
type ResultFn func(env Envelope) (any, error)

// BehaviorRegistry resolves named behaviors of all four kinds, supports
// `name:a,b` argument suffixes (already split into BehaviorRef by the
// definition parser), and offers a per-registry fake table for tests
// (spec.md §4.6). It follows the teacher's pattern of a mutex-guarded
// registration map (pkg/builders/conditional_actions.go), generalized
// from a single kind to all four.
type BehaviorRegistry struct {
	mu          sync.RWMutex
	actions     map[string]Action
	guards      map[string]Guard
	calculators map[string]Calculator
	results     map[string]ResultFn

	fakeActions     map[string]Action
	fakeGuards      map[string]Guard
	fakeCalculators map[string]Calculator
	fakeResults     map[string]ResultFn

	eventSchemas map[string][]FieldSchema
}

// NewBehaviorRegistry returns an empty registry.
func NewBehaviorRegistry() *BehaviorRegistry {
	return &BehaviorRegistry{
		actions:         map[string]Action{},
		guards:          map[string]Guard{},
		calculators:     map[string]Calculator{},
		results:         map[string]ResultFn{},
		fakeActions:     map[string]Action{},
		fakeGuards:      map[string]Guard{},
		fakeCalculators: map[string]Calculator{},
		fakeResults:     map[string]ResultFn{},
		eventSchemas:    map[string][]FieldSchema{},
	}
}

// RegisterEventSchema declares the payload schema for an event type; the
// engine validates incoming payloads against it before dispatch
// (spec.md §4.2.1, the "events" kind of behavior reference).
func (r *BehaviorRegistry) RegisterEventSchema(eventType string, schema []FieldSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventSchemas[eventType] = schema
}

func (r *BehaviorRegistry) eventSchema(eventType string) ([]FieldSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.eventSchemas[eventType]
	return s, ok
}

func (r *BehaviorRegistry) RegisterAction(name string, fn Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

func (r *BehaviorRegistry) RegisterGuard(name string, fn Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[name] = fn
}

func (r *BehaviorRegistry) RegisterCalculator(name string, fn Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[name] = fn
}

func (r *BehaviorRegistry) RegisterResult(name string, fn ResultFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = fn
}

// FakeAction installs a test substitute in this registry, consulted ahead of
// the real registration (spec.md §4.6 "Test substitution").
func (r *BehaviorRegistry) FakeAction(name string, fn Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fakeActions[name] = fn
}

func (r *BehaviorRegistry) FakeGuard(name string, fn Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fakeGuards[name] = fn
}

func (r *BehaviorRegistry) FakeCalculator(name string, fn Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fakeCalculators[name] = fn
}

// ResetFakes clears every fake table of this registry; tests that reuse
// one registry across runs call this in between (spec.md §5
// "Shared-resource policy").
func (r *BehaviorRegistry) ResetFakes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fakeActions = map[string]Action{}
	r.fakeGuards = map[string]Guard{}
	r.fakeCalculators = map[string]Calculator{}
	r.fakeResults = map[string]ResultFn{}
}

func (r *BehaviorRegistry) resolveAction(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.fakeActions[name]; ok {
		return fn, nil
	}
	if fn, ok := r.actions[name]; ok {
		return fn, nil
	}
	return nil, NewBehaviorNotFoundError(string(KindAction), name)
}

func (r *BehaviorRegistry) resolveGuard(name string) (Guard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.fakeGuards[name]; ok {
		return fn, nil
	}
	if fn, ok := r.guards[name]; ok {
		return fn, nil
	}
	return nil, NewBehaviorNotFoundError(string(KindGuard), name)
}

func (r *BehaviorRegistry) resolveCalculator(name string) (Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.fakeCalculators[name]; ok {
		return fn, nil
	}
	if fn, ok := r.calculators[name]; ok {
		return fn, nil
	}
	return nil, NewBehaviorNotFoundError(string(KindCalculator), name)
}

func (r *BehaviorRegistry) resolveResult(name string) (ResultFn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.fakeResults[name]; ok {
		return fn, nil
	}
	if fn, ok := r.results[name]; ok {
		return fn, nil
	}
	return nil, NewBehaviorNotFoundError(string(KindResult), name)
}
