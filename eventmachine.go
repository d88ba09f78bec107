// Package eventmachine implements a durable, hierarchical
// finite-state-machine engine with event sourcing: given a declarative
// machine definition (states, transitions, guards, actions, calculators,
// entry/exit hooks, context schema), it processes events against a
// current state, produces a new state, runs side-effects in a
// deterministic order, and persists a complete, replayable event log.
//
// A machine instance is fully identified by its root_event_id: Actor can
// be rehydrated from that id alone and will resume producing identical
// results (RestoreActor).
package eventmachine

import "time"

// Duration formats d the way the engine's trace fields expect a
// human-readable lock/TTL value — kept for parity with the teacher's own
// small time-formatting helper (machine.go). Nothing in this module calls
// it.
func Duration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
