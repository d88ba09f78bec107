package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	eventmachine "github.com/tarfin-labs/event-machine"
	"github.com/tarfin-labs/event-machine/compression"
)

func sampleEvents(rootEventID string, n int) []eventmachine.EventRecord {
	out := make([]eventmachine.EventRecord, n)
	for i := 0; i < n; i++ {
		out[i] = eventmachine.EventRecord{
			RootEventID:    rootEventID,
			MachineID:      "m",
			SequenceNumber: int64(n - i), // deliberately out of order
			CreatedAt:      time.Now().UTC(),
			Type:           "EVT",
			Context:        map[string]any{"i": i, "note": strings.Repeat("データ", 20)},
		}
	}
	return out
}

func TestArchiver_ArchiveAndRestoreRoundTrip(t *testing.T) {
	a := NewArchiver(nil)
	ctx := context.Background()
	events := sampleEvents("root-archive-1", 5)

	entry, err := a.Archive(ctx, events)
	require.NoError(t, err)
	require.Equal(t, 5, entry.EventCount)

	restored, err := a.Restore(ctx, "root-archive-1")
	require.NoError(t, err)
	require.Len(t, restored, 5)
	for i := 1; i < len(restored); i++ {
		require.Less(t, restored[i-1].SequenceNumber, restored[i].SequenceNumber)
	}
}

func TestArchiver_DuplicateArchiveConflict(t *testing.T) {
	a := NewArchiver(nil)
	ctx := context.Background()
	events := sampleEvents("root-archive-2", 3)

	_, err := a.Archive(ctx, events)
	require.NoError(t, err)

	_, err = a.Archive(ctx, events)
	require.Error(t, err)
	var conflict *eventmachine.ArchiveConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestArchiver_EmptyEventsRejected(t *testing.T) {
	a := NewArchiver(nil)
	_, err := a.Archive(context.Background(), nil)
	require.Error(t, err)
}

func TestArchiver_WithCodecCompressesAndRoundTrips(t *testing.T) {
	cfg := compression.DefaultConfig()
	cfg.Enabled = true
	cfg.Threshold = 10
	cfg.Fields = map[string]bool{"events": true}
	codec := compression.NewCodec(cfg)

	a := NewArchiver(codec)
	ctx := context.Background()
	events := sampleEvents("root-archive-3", 100)

	entry, err := a.Archive(ctx, events)
	require.NoError(t, err)
	require.Less(t, entry.CompressedSize, entry.OriginalSize)

	restored, err := a.Restore(ctx, "root-archive-3")
	require.NoError(t, err)
	require.Len(t, restored, 100)
	require.Equal(t, events[0].Context["note"], restored[99].Context["note"])
}

func TestArchiver_LookupMetadataOnly(t *testing.T) {
	a := NewArchiver(nil)
	ctx := context.Background()
	events := sampleEvents("root-archive-4", 2)
	_, err := a.Archive(ctx, events)
	require.NoError(t, err)

	entry, ok := a.Lookup("root-archive-4")
	require.True(t, ok)
	require.Equal(t, 2, entry.EventCount)

	_, ok = a.Lookup("missing")
	require.False(t, ok)
}
