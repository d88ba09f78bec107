//go:build integration && postgres

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	eventmachine "github.com/tarfin-labs/event-machine"
)

// Integration test against Postgres, following the pack's
// DATABASE_URL-gated skip convention for tests that need a live database.
func TestSQLEventStore_AppendAndLoadRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	db.MustExec(`
		CREATE TABLE IF NOT EXISTS event_records (
			id               text PRIMARY KEY,
			sequence_number  bigint NOT NULL,
			created_at       timestamptz NOT NULL,
			machine_id       text NOT NULL,
			machine_value    text[] NOT NULL,
			root_event_id    text NOT NULL,
			source           text NOT NULL,
			type             text NOT NULL,
			payload          bytea,
			context          bytea,
			meta             bytea,
			version          integer NOT NULL DEFAULT 1
		)
	`)
	defer db.MustExec(`DELETE FROM event_records WHERE root_event_id = 'sql-it-root'`)

	store := NewSQLEventStore(db, nil)
	ctx := context.Background()

	rec := eventmachine.EventRecord{
		ID:             "01SQLTESTROOTEVENTID0000001",
		SequenceNumber: 1,
		CreatedAt:      time.Now().UTC(),
		MachineID:      "m",
		MachineValue:   []string{"m.a"},
		RootEventID:    "sql-it-root",
		Source:         eventmachine.SourceExternal,
		Type:           "EVT",
		Payload:        map[string]any{"x": 1.0},
		Context:        map[string]any{"count": 1.0},
		Version:        1,
	}
	require.NoError(t, store.Append(ctx, rec))

	loaded, err := store.Load(ctx, "sql-it-root")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, rec.Type, loaded[0].Type)
	require.WithinDuration(t, rec.CreatedAt, loaded[0].CreatedAt, time.Second)
}
