package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	eventmachine "github.com/tarfin-labs/event-machine"
	"github.com/tarfin-labs/event-machine/compression"
)

// ArchiveEntry is one row of spec.md §3 "Archive entry": a single
// compressed blob of an entire machine instance's event sequence, keyed
// uniquely by root_event_id.
type ArchiveEntry struct {
	RootEventID    string
	MachineID      string
	EventsData     []byte
	EventCount     int
	OriginalSize   int
	CompressedSize int
}

// Archiver implements spec.md §4.7: archive groups a machine's events,
// serializes and compresses them as one blob; restore reverses that,
// preserving every record field-exact.
type Archiver struct {
	codec *compression.Codec

	mu      sync.RWMutex
	entries map[string]ArchiveEntry
}

// NewArchiver returns an Archiver using codec for its single blob field.
// codec may be nil to store raw JSON (compression disabled).
func NewArchiver(codec *compression.Codec) *Archiver {
	return &Archiver{codec: codec, entries: map[string]ArchiveEntry{}}
}

// Archive groups events by root_event_id (all of events must share one),
// sorts by sequence_number, and stores a single compressed blob. A
// second Archive call for the same root_event_id fails with
// ArchiveConflictError (spec.md §4.7 "Uniqueness on root_event_id").
func (a *Archiver) Archive(_ context.Context, events []eventmachine.EventRecord) (ArchiveEntry, error) {
	if len(events) == 0 {
		return ArchiveEntry{}, eventmachine.NewInvalidDataError("no events to archive")
	}

	rootEventID := events[0].RootEventID
	machineID := events[0].MachineID

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.entries[rootEventID]; exists {
		return ArchiveEntry{}, eventmachine.NewArchiveConflictError(rootEventID)
	}

	sorted := make([]eventmachine.EventRecord, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SequenceNumber < sorted[j].SequenceNumber })

	raw, err := json.Marshal(sorted)
	if err != nil {
		return ArchiveEntry{}, eventmachine.NewInvalidDataError("cannot marshal events: " + err.Error())
	}

	var blob []byte
	if a.codec != nil {
		blob, err = a.codec.Encode(sorted, "events")
		if err != nil {
			return ArchiveEntry{}, err
		}
	} else {
		blob = raw
	}

	entry := ArchiveEntry{
		RootEventID:    rootEventID,
		MachineID:      machineID,
		EventsData:     blob,
		EventCount:     len(sorted),
		OriginalSize:   len(raw),
		CompressedSize: len(blob),
	}
	a.entries[rootEventID] = entry
	return entry, nil
}

// Restore reverses Archive, returning field-identical records (spec.md
// §4.7, §8 "restore(archive(events)) == events").
func (a *Archiver) Restore(_ context.Context, rootEventID string) ([]eventmachine.EventRecord, error) {
	a.mu.RLock()
	entry, ok := a.entries[rootEventID]
	a.mu.RUnlock()
	if !ok {
		return nil, eventmachine.NewInvalidDataError("no archive for root_event_id " + rootEventID)
	}

	var events []eventmachine.EventRecord
	if a.codec != nil {
		if err := a.codec.Decode(entry.EventsData, &events); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(entry.EventsData, &events); err != nil {
		return nil, eventmachine.NewInvalidDataError("corrupt archive: " + err.Error())
	}
	return events, nil
}

// Lookup returns the stored ArchiveEntry metadata (without decoding the
// blob) for rootEventID.
func (a *Archiver) Lookup(rootEventID string) (ArchiveEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[rootEventID]
	return e, ok
}
