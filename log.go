package eventmachine

import (
	"sort"
	"sync"
	"time"
)

// Log is an append-only, in-memory sequence of EventRecords for a single
// machine instance (spec.md §3 "EventRecord & Log"). It assigns
// sequence_number on Append and guarantees the ordering invariants of
// §5: strictly increasing sequence_number, id ordering matching
// sequence_number ordering.
type Log struct {
	mu      sync.RWMutex
	records []EventRecord
	nextSeq int64
}

// NewLog returns an empty Log ready to accept its first record.
func NewLog() *Log {
	return &Log{nextSeq: 1}
}

// Append assigns the next sequence_number and a fresh id to rec and adds
// it to the log. The returned record is the one actually stored (with
// id/sequence_number/created_at populated if the caller left them zero).
func (l *Log) Append(rec EventRecord) EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = newEventID(rec.CreatedAt)
	}
	rec.SequenceNumber = l.nextSeq
	l.nextSeq++

	l.records = append(l.records, rec)
	return rec
}

// All returns a copy of every record currently held, in sequence_number
// order.
func (l *Log) All() []EventRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]EventRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len reports how many records the log currently holds.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// LastSequence returns the sequence_number of the most recently appended
// record, or 0 if the log is empty.
func (l *Log) LastSequence() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.records) == 0 {
		return 0
	}
	return l.records[len(l.records)-1].SequenceNumber
}

// External returns only the EXTERNAL-sourced records, in order — the
// subset RestoreActor re-feeds through the engine (spec.md §4.3).
func (l *Log) External() []EventRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]EventRecord, 0, len(l.records))
	for _, r := range l.records {
		if r.Source == SourceExternal {
			out = append(out, r)
		}
	}
	return out
}

// LoadLog rebuilds a Log from a slice of previously-persisted records,
// re-deriving nextSeq from the highest sequence_number seen. Records are
// sorted by sequence_number first, since callers (store.EventStore,
// Archiver.Restore) make no ordering guarantee of their own.
func LoadLog(records []EventRecord) *Log {
	sorted := make([]EventRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SequenceNumber < sorted[j].SequenceNumber
	})

	l := &Log{records: sorted, nextSeq: 1}
	if n := len(sorted); n > 0 {
		l.nextSeq = sorted[n-1].SequenceNumber + 1
	}
	return l
}
