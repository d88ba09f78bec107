package eventmachine

import (
	"context"
	"time"
)

// Locker is the single-writer mutual-exclusion contract of spec.md §4.3:
// acquire an exclusive lock keyed by a well-known prefix + root_event_id
// (e.g. `mre:<root>`), held for at most ttl. Implementations live in
// package lock; this interface is declared here (not there) so lock
// implementations can depend on eventmachine without eventmachine ever
// depending on lock.
type Locker interface {
	// Acquire blocks only as long as the underlying backend requires to
	// answer; it does not wait for a busy lock to free up. ok is false
	// when the lock is already held elsewhere. release must be called
	// exactly once on a successful acquire.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// EventStore is the incremental persistence contract: append records as
// they're produced, and load a machine's full ordered history back for
// restore. Implementations live in package store.
type EventStore interface {
	Append(ctx context.Context, rec EventRecord) error
	Load(ctx context.Context, rootEventID string) ([]EventRecord, error)
}

// lockTTL is the default lock hold duration of spec.md §4.3.
const lockTTL = 60 * time.Second

// lockKeyPrefix is the well-known prefix spec.md §4.3 names as an
// example ("mre:<root>" — "machine run exclusive").
const lockKeyPrefix = "mre:"

// Actor is the long-lived wrapper around a MachineDefinition and its
// current State (spec.md §4.3): it enforces the single-writer lock,
// the transactional/non-transactional commit boundary, and the
// persistence policy, and can be rehydrated from a root_event_id alone.
type Actor struct {
	Definition  *MachineDefinition
	Engine      *TransitionEngine
	RootEventID string

	State State
	Log   *Log

	Locker        Locker
	Store         EventStore
	ShouldPersist bool

	persistedUpTo int
}

// NewActor starts a brand-new machine instance: it computes the initial
// State, assigns it a fresh root_event_id (the id of its `<mid>.start`
// record), and leaves persistence to the caller unless a Store is set.
func NewActor(def *MachineDefinition, locker Locker, store EventStore) (*Actor, error) {
	engine := NewTransitionEngine(def)
	log := NewLog()

	rootEventID := newEventID(timeNow())
	st, err := engine.Start(log, rootEventID)
	if err != nil {
		return nil, err
	}
	// the `<mid>.start` record IS the root event; re-key it to the id we
	// just minted so RootEventID is self-consistent with the log's first
	// entry.
	records := log.records
	if len(records) > 0 {
		records[0].ID = rootEventID
		records[0].RootEventID = rootEventID
	}
	for i := range records {
		records[i].RootEventID = rootEventID
	}

	a := &Actor{
		Definition:    def,
		Engine:        engine,
		RootEventID:   rootEventID,
		State:         st,
		Log:           log,
		Locker:        locker,
		Store:         store,
		ShouldPersist: def.ShouldPersist,
	}

	if a.ShouldPersist && store != nil {
		if err := a.persistNew(context.Background(), 0); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// timeNow exists only so a single call site can be swapped in tests;
// production code always wants wall-clock time here.
var timeNow = func() time.Time { return time.Now().UTC() }

// Send is the only public mutation on Actor (spec.md §4.3): it acquires
// the single-writer lock, runs the event through the engine, and commits
// or rolls back depending on evt.IsTransactional.
func (a *Actor) Send(ctx context.Context, evt Event) (State, error) {
	evt = evt.normalize()

	if a.Locker != nil {
		release, ok, err := a.Locker.Acquire(ctx, lockKeyPrefix+a.RootEventID, lockTTL)
		if err != nil {
			return State{}, err
		}
		if !ok {
			return State{}, NewMachineAlreadyRunningError(a.RootEventID)
		}
		defer release()
	}

	preState := a.State
	preLen := a.Log.Len()

	// run the event against a forked Context, never the live one: if the
	// attempt fails partway through (some actions already applied their
	// mutations) the fork is simply discarded and a.State.Context is left
	// untouched, giving the rollback below something real to roll back to
	// (spec.md §4.3, §7 "state is rolled back to pre-event").
	trial := a.State
	trial.Context = a.State.Context.Fork()

	next, err := a.Engine.Step(a.Log, a.RootEventID, trial, evt)
	if err != nil {
		if evt.IsTransactional {
			// roll back: truncate any records appended during the failed
			// attempt. a.State itself was never mutated (only the forked
			// trial Context was), so it already equals preState.
			a.rollbackTo(preLen)
		}
		return State{}, err
	}

	a.State = next

	if a.ShouldPersist && a.Store != nil {
		if err := a.persistNew(ctx, preLen); err != nil {
			if evt.IsTransactional {
				a.rollbackTo(preLen)
				a.State = preState
				return State{}, err
			}
			// non-transactional: keep the in-memory state even though the
			// store append failed (spec.md §4.3 "may leave side effects").
			return a.State, err
		}
	}

	return a.State, nil
}

// rollbackTo discards every record appended after index n, preserving
// sequence_number monotonicity for whatever remains.
func (a *Actor) rollbackTo(n int) {
	a.Log.mu.Lock()
	defer a.Log.mu.Unlock()
	if n < len(a.Log.records) {
		a.Log.records = a.Log.records[:n]
	}
	if n > 0 {
		a.Log.nextSeq = a.Log.records[n-1].SequenceNumber + 1
	} else {
		a.Log.nextSeq = 1
	}
}

// Persist flushes any records held only in memory (because ShouldPersist
// was false at Send time) — spec.md §4.3 "kept only in memory until a
// later explicit persist()".
func (a *Actor) Persist(ctx context.Context) error {
	if a.Store == nil {
		return nil
	}
	return a.persistNew(ctx, 0)
}

// persistNew uses persistedUpTo to track, per Actor, how many of the log's records have
// already reached the store — a simple high-water mark, since Append is
// the only store operation and records are immutable once written.
func (a *Actor) persistNew(ctx context.Context, _ int) error {
	all := a.Log.All()
	from := a.persistedUpTo
	for i := from; i < len(all); i++ {
		if err := a.Store.Append(ctx, all[i]); err != nil {
			return err
		}
	}
	a.persistedUpTo = len(all)
	return nil
}

// RestoreActor rehydrates a machine from its root_event_id alone (spec.md
// §4.3 "Serialization"): it loads the ordered EventRecords, replays only
// the EXTERNAL ones through a fresh engine starting from initial state,
// and expects the resulting internal trace to match the original
// bit-for-bit.
func RestoreActor(ctx context.Context, def *MachineDefinition, rootEventID string, locker Locker, eventStore EventStore) (*Actor, error) {
	records, err := eventStore.Load(ctx, rootEventID)
	if err != nil {
		return nil, err
	}

	engine := NewTransitionEngine(def)
	replayLog := NewLog()

	st, err := engine.Start(replayLog, rootEventID)
	if err != nil {
		return nil, err
	}

	history := LoadLog(records)
	for _, rec := range history.All() {
		if rec.Source != SourceExternal {
			continue
		}
		evt := Event{Type: rec.Type, Payload: rec.Payload, Source: SourceExternal, IsTransactional: true}
		st, err = engine.Step(replayLog, rootEventID, st, evt)
		if err != nil {
			return nil, err
		}
	}

	a := &Actor{
		Definition:    def,
		Engine:        engine,
		RootEventID:   rootEventID,
		State:         st,
		Log:           replayLog,
		Locker:        locker,
		Store:         eventStore,
		ShouldPersist: def.ShouldPersist,
		persistedUpTo: replayLog.Len(),
	}
	return a, nil
}
