package eventmachine

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventSource distinguishes caller-originated events from events raised
// internally by actions during a transition (spec.md §3, §6).
type EventSource string

const (
	SourceExternal EventSource = "EXTERNAL"
	SourceInternal EventSource = "INTERNAL"
)

// Event is the wire-level shape a caller (or a raise() call inside an
// action) hands to the engine: a type, optional payload, and the two
// flags that govern how the resulting transition is sourced and
// committed.
type Event struct {
	Type             string
	Payload          any
	Source           EventSource
	IsTransactional  bool
	isTransactionSet bool
}

// NewEvent builds an external, transactional event — the default shape
// for anything a caller dispatches directly.
func NewEvent(eventType string, payload any) Event {
	return Event{
		Type:             eventType,
		Payload:          payload,
		Source:           SourceExternal,
		IsTransactional:  true,
		isTransactionSet: true,
	}
}

// NewInternalEvent builds an event raised by an action mid-transition
// (spec.md §4.2.6); it always inherits source=INTERNAL.
func NewInternalEvent(eventType string, payload any) Event {
	return Event{
		Type:             eventType,
		Payload:          payload,
		Source:           SourceInternal,
		IsTransactional:  true,
		isTransactionSet: true,
	}
}

// normalize fills in defaults left unset by a caller who built an Event
// literal directly instead of going through NewEvent (e.g. json.Unmarshal
// of the wire format in §6). Only NewEvent and NewInternalEvent set the
// unexported isTransactionSet flag, so normalize cannot tell an explicit
// IsTransactional false from an unset one: every other Event ends up
// with IsTransactional true.
func (e Event) normalize() Event {
	if e.Source == "" {
		e.Source = SourceExternal
	}
	if !e.isTransactionSet {
		e.IsTransactional = true
	}
	return e
}

// EventRecord is an immutable, append-only entry in a machine's Log
// (spec.md §3). Records are never mutated after creation; restoring a
// machine replays them in sequence_number order.
type EventRecord struct {
	ID              string
	SequenceNumber  int64
	CreatedAt       time.Time
	MachineID       string
	RootEventID     string
	Version         int
	Source          EventSource
	Type            string
	MachineValue    []string
	Payload         any
	Context         map[string]any
	Meta            map[string]any
	PayloadCompressed bool
	ContextCompressed bool
	MetaCompressed    bool
}

var ulidEntropy = ulid.Monotonic(cryptoReader{}, 0)

// cryptoReader adapts crypto/rand.Reader so ulid.Monotonic gets
// unpredictable entropy instead of the package-level math/rand source
// ulid defaults to when none is supplied.
type cryptoReader struct{}

func (cryptoReader) Read(p []byte) (int, error) {
	for i := range p {
		n, err := rand.Int(rand.Reader, big.NewInt(256))
		if err != nil {
			return i, err
		}
		p[i] = byte(n.Int64())
	}
	return len(p), nil
}

// newEventID returns a new lexicographically-sortable identifier. ULIDs
// sort correctly as strings because their 48-bit millisecond timestamp
// is encoded big-endian-first in Crockford base32 (spec.md §3's "id
// (lexicographically sortable unique identifier)").
func newEventID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulidEntropy).String()
}

// idLess reports whether a sorts before b under the total order EventRecord.ID
// defines; kept as a named helper since several components (Log, Archiver)
// need to reason about id ordering explicitly rather than relying on
// Go's default string comparison happening to agree with it (it does,
// for ULIDs, but the helper documents the invariant at the call sites).
func idLess(a, b string) bool {
	return strings.Compare(a, b) < 0
}
