// Package store implements the incremental EventStore and the Archiver
// of spec.md §4.7, plus a SQL-backed EventStore grounded on
// r3e-network-service_layer's use of github.com/jmoiron/sqlx and
// github.com/lib/pq for relational persistence.
package store

import (
	"context"
	"sort"
	"sync"

	eventmachine "github.com/tarfin-labs/event-machine"
)

// Memory is an in-process EventStore keyed by root_event_id, useful for
// tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]eventmachine.EventRecord
}

// NewMemory returns an empty in-memory EventStore.
func NewMemory() *Memory {
	return &Memory{records: map[string][]eventmachine.EventRecord{}}
}

// Append implements eventmachine.EventStore.
func (m *Memory) Append(_ context.Context, rec eventmachine.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.RootEventID] = append(m.records[rec.RootEventID], rec)
	return nil
}

// Load implements eventmachine.EventStore.
func (m *Memory) Load(_ context.Context, rootEventID string) ([]eventmachine.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records[rootEventID]
	out := make([]eventmachine.EventRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

// Delete removes every record for rootEventID — used after a successful
// Archive (spec.md §3 "Archive rows are created by Archive, then
// originating EventRecords may be deleted").
func (m *Memory) Delete(rootEventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, rootEventID)
}
