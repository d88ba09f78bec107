package eventmachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBehaviorRegistry_RegisterAndResolveAction(t *testing.T) {
	reg := NewBehaviorRegistry()
	reg.RegisterAction("noop", func(env Envelope, raise func(Event)) error { return nil })

	fn, err := reg.resolveAction("noop")
	require.NoError(t, err)
	require.NoError(t, fn(Envelope{}, func(Event) {}))
}

func TestBehaviorRegistry_UnknownActionError(t *testing.T) {
	reg := NewBehaviorRegistry()
	_, err := reg.resolveAction("missing")
	require.Error(t, err)
	var nf *BehaviorNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestBehaviorRegistry_FakeTakesPrecedenceOverReal(t *testing.T) {
	reg := NewBehaviorRegistry()
	reg.RegisterGuard("ready", func(env Envelope) (bool, error) { return false, nil })
	reg.FakeGuard("ready", func(env Envelope) (bool, error) { return true, nil })

	fn, err := reg.resolveGuard("ready")
	require.NoError(t, err)
	ok, err := fn(Envelope{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBehaviorRegistry_ResetFakesRevertsToReal(t *testing.T) {
	reg := NewBehaviorRegistry()
	reg.RegisterGuard("ready", func(env Envelope) (bool, error) { return false, nil })
	reg.FakeGuard("ready", func(env Envelope) (bool, error) { return true, nil })
	reg.ResetFakes()

	fn, err := reg.resolveGuard("ready")
	require.NoError(t, err)
	ok, err := fn(Envelope{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBehaviorRegistry_CalculatorAndResultRoundTrip(t *testing.T) {
	reg := NewBehaviorRegistry()
	reg.RegisterCalculator("triple", func(env Envelope) error { return nil })
	reg.RegisterResult("label", func(env Envelope) (any, error) { return "done", nil })

	calc, err := reg.resolveCalculator("triple")
	require.NoError(t, err)
	require.NoError(t, calc(Envelope{}))

	res, err := reg.resolveResult("label")
	require.NoError(t, err)
	v, err := res(Envelope{})
	require.NoError(t, err)
	require.Equal(t, "done", v)
}

func TestBehaviorRegistry_EventSchema(t *testing.T) {
	reg := NewBehaviorRegistry()
	schema := []FieldSchema{{Path: "amount", Type: FieldNumber, Required: true}}
	reg.RegisterEventSchema("DEPOSIT", schema)

	got, ok := reg.eventSchema("DEPOSIT")
	require.True(t, ok)
	require.Equal(t, schema, got)

	_, ok = reg.eventSchema("UNKNOWN")
	require.False(t, ok)
}

func TestBehaviorRegistry_ActionPropagatesError(t *testing.T) {
	reg := NewBehaviorRegistry()
	sentinel := errors.New("boom")
	reg.RegisterAction("fails", func(env Envelope, raise func(Event)) error { return sentinel })

	fn, err := reg.resolveAction("fails")
	require.NoError(t, err)
	require.ErrorIs(t, fn(Envelope{}, func(Event) {}), sentinel)
}
