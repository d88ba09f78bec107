package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	eventmachine "github.com/tarfin-labs/event-machine"
	"github.com/tarfin-labs/event-machine/compression"
)

const sqlTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLEventStore persists EventRecords to a Postgres `event_records`
// table via sqlx + lib/pq, matching the field list of spec.md §6
// ("Persisted EventRecord row fields"). payload/context/meta are stored
// as bytea, optionally compressed by codec.
//
// Expected schema:
//
//	CREATE TABLE event_records (
//	  id               text PRIMARY KEY,
//	  sequence_number  bigint NOT NULL,
//	  created_at       timestamptz NOT NULL,
//	  machine_id       text NOT NULL,
//	  machine_value    text[] NOT NULL,
//	  root_event_id    text NOT NULL,
//	  source           text NOT NULL,
//	  type             text NOT NULL,
//	  payload          bytea,
//	  context          bytea,
//	  meta             bytea,
//	  version          integer NOT NULL DEFAULT 1
//	);
//	CREATE INDEX event_records_root_event_id_idx ON event_records (root_event_id, sequence_number);
type SQLEventStore struct {
	db    *sqlx.DB
	codec *compression.Codec
}

// NewSQLEventStore wraps db. codec may be nil, in which case payload/
// context/meta are stored as raw JSON.
func NewSQLEventStore(db *sqlx.DB, codec *compression.Codec) *SQLEventStore {
	return &SQLEventStore{db: db, codec: codec}
}

type eventRow struct {
	ID             string         `db:"id"`
	SequenceNumber int64          `db:"sequence_number"`
	CreatedAt      string         `db:"created_at"`
	MachineID      string         `db:"machine_id"`
	MachineValue   pq.StringArray `db:"machine_value"`
	RootEventID    string         `db:"root_event_id"`
	Source         string         `db:"source"`
	Type           string         `db:"type"`
	Payload        []byte         `db:"payload"`
	Context        []byte         `db:"context"`
	Meta           []byte         `db:"meta"`
	Version        int            `db:"version"`
}

func (s *SQLEventStore) encodeField(data any, field string) ([]byte, error) {
	if s.codec != nil {
		return s.codec.Encode(data, field)
	}
	return json.Marshal(data)
}

func (s *SQLEventStore) decodeField(raw []byte, field string, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if s.codec != nil {
		return s.codec.Decode(raw, out)
	}
	return json.Unmarshal(raw, out)
}

// Append implements eventmachine.EventStore.
func (s *SQLEventStore) Append(ctx context.Context, rec eventmachine.EventRecord) error {
	payload, err := s.encodeField(rec.Payload, "payload")
	if err != nil {
		return err
	}
	ctxBytes, err := s.encodeField(rec.Context, "context")
	if err != nil {
		return err
	}
	meta, err := s.encodeField(rec.Meta, "meta")
	if err != nil {
		return err
	}

	row := eventRow{
		ID:             rec.ID,
		SequenceNumber: rec.SequenceNumber,
		CreatedAt:      rec.CreatedAt.UTC().Format(sqlTimeLayout),
		MachineID:      rec.MachineID,
		MachineValue:   pq.StringArray(rec.MachineValue),
		RootEventID:    rec.RootEventID,
		Source:         string(rec.Source),
		Type:           rec.Type,
		Payload:        payload,
		Context:        ctxBytes,
		Meta:           meta,
		Version:        rec.Version,
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO event_records
			(id, sequence_number, created_at, machine_id, machine_value, root_event_id, source, type, payload, context, meta, version)
		VALUES
			(:id, :sequence_number, :created_at, :machine_id, :machine_value, :root_event_id, :source, :type, :payload, :context, :meta, :version)
	`, row)
	return err
}

// Load implements eventmachine.EventStore.
func (s *SQLEventStore) Load(ctx context.Context, rootEventID string) ([]eventmachine.EventRecord, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, sequence_number, created_at, machine_id, machine_value, root_event_id, source, type, payload, context, meta, version
		FROM event_records
		WHERE root_event_id = $1
		ORDER BY sequence_number ASC
	`, rootEventID)
	if err != nil {
		return nil, err
	}

	out := make([]eventmachine.EventRecord, 0, len(rows))
	for _, row := range rows {
		rec := eventmachine.EventRecord{
			ID:             row.ID,
			SequenceNumber: row.SequenceNumber,
			MachineID:      row.MachineID,
			MachineValue:   []string(row.MachineValue),
			RootEventID:    row.RootEventID,
			Source:         eventmachine.EventSource(row.Source),
			Type:           row.Type,
			Version:        row.Version,
		}
		if parsed, err := time.Parse(sqlTimeLayout, row.CreatedAt); err == nil {
			rec.CreatedAt = parsed
		}
		if err := s.decodeField(row.Payload, "payload", &rec.Payload); err != nil {
			return nil, err
		}
		var ctxMap map[string]any
		if err := s.decodeField(row.Context, "context", &ctxMap); err != nil {
			return nil, err
		}
		rec.Context = ctxMap
		var metaMap map[string]any
		if err := s.decodeField(row.Meta, "meta", &metaMap); err != nil {
			return nil, err
		}
		rec.Meta = metaMap
		out = append(out, rec)
	}
	return out, nil
}
