package eventmachine

import "strings"

// StateKind is the type tag of a StateDefinition node (spec.md §3).
type StateKind int

const (
	KindAtomic StateKind = iota
	KindCompound
	KindParallel
	KindFinal
)

func (k StateKind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindCompound:
		return "compound"
	case KindParallel:
		return "parallel"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// BehaviorRef is a parsed reference to a named action/guard/calculator,
// optionally carrying `:a,b` suffix arguments (spec.md §4.6).
type BehaviorRef struct {
	Name string
	Args []string
}

// StateDefinition is one node of the immutable state tree built by
// Define (spec.md §3 "StateDefinition"). Children are
// owned by their parent; Parent is a non-owning back-reference, mirroring
// the teacher's AtomicStateImpl/CompositeStateImpl parent-pointer +
// owned-children-map shape (state.go) generalized to four kinds instead
// of five pseudostate-flavored ones.
type StateDefinition struct {
	Key  string
	ID   string
	Path []string
	Kind StateKind

	Parent   *StateDefinition
	Children map[string]*StateDefinition
	Order    []string // child keys in sorted key order; the declaration order of a map config is not kept

	InitialChild string // required for COMPOUND; Define rejects it on PARALLEL and FINAL states

	Entry []BehaviorRef
	Exit  []BehaviorRef

	// Transitions maps event name (or "@always") to its TransitionDefinition.
	// A forbidden transition is a TransitionDefinition with Forbidden set
	// and no branches.
	Transitions map[string]*TransitionDefinition

	Meta        map[string]any
	Description string
	DefOrder    int
}

// newStateDefinition returns an empty node ready to be filled in by the
// definition builder.
func newStateDefinition(key string, order int) *StateDefinition {
	return &StateDefinition{
		Key:         key,
		Children:    map[string]*StateDefinition{},
		Transitions: map[string]*TransitionDefinition{},
		DefOrder:    order,
	}
}

// IsLeaf reports whether this node has no children — true for ATOMIC and
// FINAL states.
func (s *StateDefinition) IsLeaf() bool {
	return len(s.Children) == 0
}

// Child looks up an immediate child by key.
func (s *StateDefinition) Child(key string) (*StateDefinition, bool) {
	c, ok := s.Children[key]
	return c, ok
}

// OrderedChildren returns children in the order of Order (sorted by key).
func (s *StateDefinition) OrderedChildren() []*StateDefinition {
	out := make([]*StateDefinition, 0, len(s.Order))
	for _, k := range s.Order {
		out = append(out, s.Children[k])
	}
	return out
}

// Depth is the number of ancestors between this node and the machine
// root (the root itself is depth 0).
func (s *StateDefinition) Depth() int {
	return len(s.Path) - 1
}

// Ancestors returns this node's ancestors, nearest first, not including
// itself.
func (s *StateDefinition) Ancestors() []*StateDefinition {
	var out []*StateDefinition
	for p := s.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// IsAncestorOf reports whether s is a (possibly indirect) ancestor of
// other.
func (s *StateDefinition) IsAncestorOf(other *StateDefinition) bool {
	for p := other.Parent; p != nil; p = p.Parent {
		if p == s {
			return true
		}
	}
	return false
}

// lcca returns the least common compound ancestor of a and b (spec.md
// §4.2.4) — the deepest node that is an ancestor of (or equal to,
// when one contains the other) both.
func lcca(a, b *StateDefinition) *StateDefinition {
	ancestorsA := map[*StateDefinition]struct{}{}
	for p := a; p != nil; p = p.Parent {
		ancestorsA[p] = struct{}{}
	}
	for p := b; p != nil; p = p.Parent {
		if _, ok := ancestorsA[p]; ok {
			return p
		}
	}
	return nil
}

// resolveID splits a fully- or partially-qualified state-id string on
// delim. MachineDefinition.resolveStateByString does not use it.
func resolveID(id, delim string) []string {
	if id == "" {
		return nil
	}
	return strings.Split(id, delim)
}

// State is the runtime value produced by the engine after each
// transition (spec.md §3 "State"). Every step builds a new State value
// that shares the underlying Log and the same *ContextManager, so the
// Context of the State passed to Step is mutated in place.
type State struct {
	ActiveLeaves  []string
	Context       *ContextManager
	History       *Log
	CurrentLeaves []*StateDefinition
}

// Matches reports whether leafID is among the currently active leaves.
func (s State) Matches(leafID string) bool {
	for _, l := range s.ActiveLeaves {
		if l == leafID {
			return true
		}
	}
	return false
}

// Done reports whether every currently active leaf is a FINAL state —
// the machine (or, for a parallel region, that region) has completed.
func (s State) Done() bool {
	if len(s.CurrentLeaves) == 0 {
		return false
	}
	for _, l := range s.CurrentLeaves {
		if l.Kind != KindFinal {
			return false
		}
	}
	return true
}
