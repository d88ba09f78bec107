package eventmachine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendAssignsSequenceAndID(t *testing.T) {
	log := NewLog()

	first := log.Append(EventRecord{Type: "A", Source: SourceExternal})
	second := log.Append(EventRecord{Type: "B", Source: SourceInternal})

	require.Equal(t, int64(1), first.SequenceNumber)
	require.Equal(t, int64(2), second.SequenceNumber)
	require.NotEmpty(t, first.ID)
	require.NotEmpty(t, second.ID)
	require.Equal(t, 2, log.Len())
	require.Equal(t, int64(2), log.LastSequence())
}

func TestLog_External(t *testing.T) {
	log := NewLog()
	log.Append(EventRecord{Type: "A", Source: SourceExternal})
	log.Append(EventRecord{Type: "B", Source: SourceInternal})
	log.Append(EventRecord{Type: "C", Source: SourceExternal})

	ext := log.External()
	require.Len(t, ext, 2)
	require.Equal(t, "A", ext[0].Type)
	require.Equal(t, "C", ext[1].Type)
}

func TestLog_AllReturnsCopyNotAlias(t *testing.T) {
	log := NewLog()
	log.Append(EventRecord{Type: "A"})

	all := log.All()
	all[0].Type = "mutated"

	require.Equal(t, "A", log.All()[0].Type)
}

func TestLoadLog_SortsAndRederivesNextSeq(t *testing.T) {
	records := []EventRecord{
		{SequenceNumber: 3, Type: "third"},
		{SequenceNumber: 1, Type: "first"},
		{SequenceNumber: 2, Type: "second"},
	}
	log := LoadLog(records)

	all := log.All()
	require.Equal(t, "first", all[0].Type)
	require.Equal(t, "second", all[1].Type)
	require.Equal(t, "third", all[2].Type)

	appended := log.Append(EventRecord{Type: "fourth"})
	require.Equal(t, int64(4), appended.SequenceNumber)
}

func TestLoadLog_Empty(t *testing.T) {
	log := LoadLog(nil)
	require.Equal(t, 0, log.Len())
	appended := log.Append(EventRecord{Type: "first"})
	require.Equal(t, int64(1), appended.SequenceNumber)
}
